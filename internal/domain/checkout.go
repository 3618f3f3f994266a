package domain

import "strings"

// PaymentMethod is the shopper's payment choice at checkout.
type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// ParsePaymentMethod accepts COD/ONLINE in any case; anything else is empty.
func ParsePaymentMethod(raw string) PaymentMethod {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(PaymentCOD):
		return PaymentCOD
	case string(PaymentOnline):
		return PaymentOnline
	default:
		return ""
	}
}

type Recipient struct {
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	Phone       string   `json:"phone"`
	Address     string   `json:"address"`
	ExtraPhones []string `json:"extraPhones,omitempty"`
}

// PaymentOption is one entry of the order service's payment catalogue.
type PaymentOption struct {
	PaymentID string `json:"paymentId"`
	NameEN    string `json:"name_en"`
	NameAR    string `json:"name_ar"`
	Logo      string `json:"logo,omitempty"`
}

// OrderRequest is the body sent to the order collaborator on submission.
type OrderRequest struct {
	CityID        string   `json:"cityId"`
	ZoneID        string   `json:"zoneId"`
	Address       string   `json:"address"`
	Phone         string   `json:"phone"`
	PromoCode     string   `json:"promocode,omitempty"`
	PaymentMethod string   `json:"paymentMethod"`
	FirstName     string   `json:"firstname"`
	LastName      string   `json:"lastname"`
	ExtraPhones   []string `json:"extraPhones"`
}

// OrderOutcome distinguishes an online-payment redirect from an immediate confirmation.
type OrderOutcome struct {
	RedirectURL string `json:"redirectUrl,omitempty"`
	Confirmed   bool   `json:"confirmed"`
}

// NeedsRedirect reports whether the shopper must be sent to the payment page.
func (o OrderOutcome) NeedsRedirect() bool {
	return o.RedirectURL != ""
}
