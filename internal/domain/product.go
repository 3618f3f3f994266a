package domain

import "github.com/shopspring/decimal"

// Product is owned by the catalog collaborator and never mutated here.
type Product struct {
	ID               string          `json:"id"`
	SKU              string          `json:"skuId"`
	Name             string          `json:"name,omitempty"`
	PriceBefore      decimal.Decimal `json:"priceBefore"`
	PriceAfter       decimal.Decimal `json:"priceAfter"`
	MaxOrderQuantity int             `json:"maxOrderQuantity"`
	AvailableStock   int             `json:"availableStock"`
	CategoryIDs      []string        `json:"categoryIds,omitempty"`
}

// QuantityLimit is min(MaxOrderQuantity, AvailableStock). A non-positive bound
// is treated as absent; 0 means unlimited.
func (p Product) QuantityLimit() int {
	limit := 0
	for _, bound := range []int{p.MaxOrderQuantity, p.AvailableStock} {
		if bound <= 0 {
			continue
		}
		if limit == 0 || bound < limit {
			limit = bound
		}
	}
	return limit
}
