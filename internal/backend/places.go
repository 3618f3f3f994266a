package backend

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"storefront-core/internal/domain"
)

type wireCity struct {
	ID    flexID     `json:"id"`
	Name  string     `json:"name"`
	Zones []wireZone `json:"zones"`
}

type wireZone struct {
	ID          flexID          `json:"id"`
	Name        string          `json:"name"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
}

func (c *Client) ListCities(ctx context.Context) ([]domain.City, error) {
	var wire []wireCity
	if err := c.do(ctx, http.MethodGet, "places/city", "", nil, &wire); err != nil {
		return nil, err
	}
	cities := make([]domain.City, 0, len(wire))
	for _, wc := range wire {
		city := domain.City{ID: string(wc.ID), Name: wc.Name, Zones: make([]domain.Zone, 0, len(wc.Zones))}
		for _, wz := range wc.Zones {
			city.Zones = append(city.Zones, domain.Zone{ID: string(wz.ID), Name: wz.Name, DeliveryFee: wz.DeliveryFee})
		}
		cities = append(cities, city)
	}
	return cities, nil
}
