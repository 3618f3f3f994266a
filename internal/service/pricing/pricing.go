// Package pricing derives cart totals from lines, product prices, the delivery
// fee and a trusted promo application.
package pricing

import (
	"github.com/shopspring/decimal"

	"storefront-core/internal/domain"
)

type Input struct {
	Lines       []domain.CartLine
	Products    map[string]domain.Product
	Promo       *domain.PromoApplication
	DeliveryFee decimal.Decimal
}

type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	AfterDiscount    decimal.Decimal `json:"afterDiscount"`
	DeliveryFee      decimal.Decimal `json:"deliveryFee"`
	GrandTotal       decimal.Decimal `json:"grandTotal"`
	ItemCount        int             `json:"itemCount"`
	PriceBeforeTotal decimal.Decimal `json:"priceBeforeTotal"`
	Savings          decimal.Decimal `json:"savings"`
	MissingProducts  []string        `json:"missingProducts,omitempty"`
}

// Calculate is pure. Lines whose product is unknown are priced at zero and
// reported in MissingProducts. Only a valid promo is honoured; callers must
// pass nil for an application that is no longer trusted.
func Calculate(in Input) Totals {
	var t Totals
	subtotal := decimal.Zero
	before := decimal.Zero
	for _, line := range in.Lines {
		t.ItemCount += line.Quantity
		p, ok := in.Products[line.ProductID]
		if !ok {
			t.MissingProducts = append(t.MissingProducts, line.ProductID)
			continue
		}
		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(p.PriceAfter.Mul(qty))
		priceBefore := p.PriceBefore
		if priceBefore.LessThan(p.PriceAfter) {
			priceBefore = p.PriceAfter
		}
		before = before.Add(priceBefore.Mul(qty))
	}

	discount := decimal.Zero
	fee := in.DeliveryFee
	if promo := in.Promo; promo != nil && promo.Valid {
		switch promo.Target {
		case domain.PromoTargetProducts:
			discount = promo.DiscountAmount
		case domain.PromoTargetDelivery:
			fee = promo.DiscountedDeliveryFee
		}
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if fee.IsNegative() {
		fee = decimal.Zero
	}

	afterDiscount := decimal.Max(decimal.Zero, subtotal.Sub(discount))

	t.Subtotal = subtotal
	t.Discount = discount
	t.AfterDiscount = afterDiscount
	t.DeliveryFee = fee
	t.GrandTotal = afterDiscount.Add(fee)
	t.PriceBeforeTotal = before
	t.Savings = before.Sub(subtotal)
	return t
}
