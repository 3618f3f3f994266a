package domain

import "github.com/shopspring/decimal"

type Zone struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
}

type City struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Zones []Zone `json:"zones"`
}

// FindZone returns the zone with id inside the city.
func (c City) FindZone(id string) (Zone, bool) {
	for _, z := range c.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return Zone{}, false
}

// DeliveryZone is the shopper's current delivery selection. FeeSet is false
// until a zone is chosen.
type DeliveryZone struct {
	CityID  string          `json:"cityId,omitempty"`
	ZoneID  string          `json:"zoneId,omitempty"`
	BaseFee decimal.Decimal `json:"baseFee"`
	FeeSet  bool            `json:"feeSet"`
}

// WithCity selects a new city, resetting the zone and fee.
func (d DeliveryZone) WithCity(cityID string) DeliveryZone {
	return DeliveryZone{CityID: cityID}
}

// WithZone selects a zone inside the current city and takes its base fee.
func (d DeliveryZone) WithZone(zone Zone) DeliveryZone {
	return DeliveryZone{
		CityID:  d.CityID,
		ZoneID:  zone.ID,
		BaseFee: zone.DeliveryFee,
		FeeSet:  true,
	}
}

// Fee returns the base fee, zero while unset.
func (d DeliveryZone) Fee() decimal.Decimal {
	if !d.FeeSet {
		return decimal.Zero
	}
	return d.BaseFee
}
