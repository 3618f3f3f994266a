package backend

import (
	"context"
	"net/http"
	"net/url"

	"storefront-core/internal/domain"
)

type wireCartLine struct {
	ProductID flexID `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// GetCart returns the authenticated shopper's cart as stored by the order service.
func (c *Client) GetCart(ctx context.Context, token string) ([]domain.CartLine, error) {
	var wire []wireCartLine
	if err := c.do(ctx, http.MethodGet, "cart", token, nil, &wire); err != nil {
		return nil, err
	}
	lines := make([]domain.CartLine, 0, len(wire))
	for _, w := range wire {
		if w.ProductID == "" || w.Quantity < 1 {
			continue
		}
		lines = append(lines, domain.CartLine{ProductID: string(w.ProductID), Quantity: w.Quantity})
	}
	return lines, nil
}

// ChangeCart applies an incremental quantity change; a positive delta on an
// absent product adds a line.
func (c *Client) ChangeCart(ctx context.Context, token, productID string, delta int) error {
	body := map[string][]map[string]int{
		"productId": {{productID: delta}},
	}
	return c.do(ctx, http.MethodPost, "cart", token, body, nil)
}

func (c *Client) DeleteCartLine(ctx context.Context, token, productID string) error {
	return c.do(ctx, http.MethodDelete, "cart/"+url.PathEscape(productID), token, nil, nil)
}
