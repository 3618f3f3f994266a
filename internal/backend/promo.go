package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"storefront-core/internal/domain"
)

type PromoTestRequest struct {
	Code      string            `json:"code"`
	UserID    string            `json:"userId"`
	CityID    string            `json:"cityId"`
	ZoneID    string            `json:"zoneId"`
	CartItems []domain.CartLine `json:"cartItems"`
}

type PromoTestResponse struct {
	Valid     bool `json:"valid"`
	PromoCode struct {
		Target string `json:"target"`
	} `json:"promoCode"`
	DiscountAmount        decimal.Decimal `json:"discountAmount"`
	DiscountedDeliveryFee decimal.Decimal `json:"discountedDeliveryFee"`
	Message               string          `json:"message"`
}

// TestPromo asks the backend whether code applies to the given cart and location.
func (c *Client) TestPromo(ctx context.Context, token string, req PromoTestRequest) (PromoTestResponse, error) {
	if req.CartItems == nil {
		req.CartItems = []domain.CartLine{}
	}
	var res PromoTestResponse
	err := c.do(ctx, http.MethodPost, "promocodes/test", token, req, &res)
	if err == nil {
		return res, nil
	}
	if rejected, ok := promoRejection(err); ok {
		return rejected, nil
	}
	return PromoTestResponse{}, err
}

// promoRejection reads a 400/422 carrying {valid:false, message} as an
// ordinary invalid-code answer.
func promoRejection(err error) (PromoTestResponse, bool) {
	var se *StatusError
	if !errors.As(err, &se) {
		return PromoTestResponse{}, false
	}
	if se.Status != http.StatusBadRequest && se.Status != http.StatusUnprocessableEntity {
		return PromoTestResponse{}, false
	}
	var res PromoTestResponse
	if json.Unmarshal(unwrapData(se.Body), &res) != nil || res.Valid || res.Message == "" {
		return PromoTestResponse{}, false
	}
	return res, true
}
