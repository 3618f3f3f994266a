package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"storefront-core/internal/domain"
)

type wireProduct struct {
	ID               flexID          `json:"id"`
	SKU              flexID          `json:"skuId"`
	Name             string          `json:"name"`
	PriceBefore      decimal.Decimal `json:"priceBefore"`
	PriceAfter       decimal.Decimal `json:"priceAfter"`
	MaxOrderQuantity int             `json:"maxOrderQuantity"`
	AvailableStock   int             `json:"availableStock"`
	CategoryIDs      []flexID        `json:"categoryIds"`
}

func (c *Client) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var w wireProduct
	if err := c.do(ctx, http.MethodGet, "products/"+url.PathEscape(id), "", nil, &w); err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID:               string(w.ID),
		SKU:              string(w.SKU),
		Name:             w.Name,
		PriceBefore:      w.PriceBefore,
		PriceAfter:       w.PriceAfter,
		MaxOrderQuantity: w.MaxOrderQuantity,
		AvailableStock:   w.AvailableStock,
	}
	if p.ID == "" {
		p.ID = id
	}
	for _, cat := range w.CategoryIDs {
		p.CategoryIDs = append(p.CategoryIDs, string(cat))
	}
	return p, nil
}
