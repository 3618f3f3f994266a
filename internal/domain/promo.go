package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PromoTarget says whether a discount reduces the product subtotal or the delivery fee.
type PromoTarget string

const (
	PromoTargetProducts PromoTarget = "PRODUCTS"
	PromoTargetDelivery PromoTarget = "DELIVERY"
)

// ParsePromoTarget normalises backend spellings; unknown values map to PRODUCTS.
func ParsePromoTarget(raw string) PromoTarget {
	if strings.EqualFold(strings.TrimSpace(raw), string(PromoTargetDelivery)) {
		return PromoTargetDelivery
	}
	return PromoTargetProducts
}

// PromoApplication is the result of validating a promo code against a cart and
// location. Basis is the dependency version it was computed against.
type PromoApplication struct {
	Code                  string          `json:"code"`
	Target                PromoTarget     `json:"target"`
	DiscountAmount        decimal.Decimal `json:"discountAmount"`
	DiscountedDeliveryFee decimal.Decimal `json:"discountedDeliveryFee"`
	Valid                 bool            `json:"valid"`
	Message               string          `json:"message,omitempty"`
	Basis                 uint64          `json:"-"`
}

// NormalizePromoCode trims and upper-cases a user-entered code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
