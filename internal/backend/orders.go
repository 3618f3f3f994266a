package backend

import (
	"context"
	"net/http"
	"strings"

	"storefront-core/internal/domain"
)

type wirePaymentOption struct {
	PaymentID flexID `json:"paymentId"`
	NameEN    string `json:"name_en"`
	NameAR    string `json:"name_ar"`
	Logo      string `json:"logo"`
}

func (c *Client) PaymentMethods(ctx context.Context, token string) ([]domain.PaymentOption, error) {
	var wire []wirePaymentOption
	if err := c.do(ctx, http.MethodGet, "orders/payment-methods", token, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.PaymentOption, 0, len(wire))
	for _, w := range wire {
		out = append(out, domain.PaymentOption{
			PaymentID: string(w.PaymentID),
			NameEN:    w.NameEN,
			NameAR:    w.NameAR,
			Logo:      w.Logo,
		})
	}
	return out, nil
}

type submitOrderResponse struct {
	URL string `json:"url"`
}

// SubmitOrder places the order. A returned url means online payment capture is
// still required; no url means the order is confirmed.
func (c *Client) SubmitOrder(ctx context.Context, token string, req domain.OrderRequest) (domain.OrderOutcome, error) {
	if req.ExtraPhones == nil {
		req.ExtraPhones = []string{}
	}
	var res submitOrderResponse
	if err := c.do(ctx, http.MethodPost, "orders/order", token, req, &res); err != nil {
		return domain.OrderOutcome{}, err
	}
	if u := strings.TrimSpace(res.URL); u != "" {
		return domain.OrderOutcome{RedirectURL: u}, nil
	}
	return domain.OrderOutcome{Confirmed: true}, nil
}
