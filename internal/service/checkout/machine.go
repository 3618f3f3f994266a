// Package checkout drives the location → recipient → payment flow and the
// final order submission.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
)

var (
	// ErrIllegalTransition is returned when the requested move is not allowed
	// from the current step.
	ErrIllegalTransition = errors.New("checkout: illegal transition")
	// ErrSubmitFailed hides the order service's failure detail from the shopper.
	ErrSubmitFailed = errors.New("checkout: order could not be placed, please try again")
)

type Step int

const (
	StepLocation  Step = 1
	StepRecipient Step = 2
	StepPayment   Step = 3
	StepSubmitted Step = 4
)

func (s Step) String() string {
	switch s {
	case StepLocation:
		return "location"
	case StepRecipient:
		return "recipient"
	case StepPayment:
		return "payment"
	case StepSubmitted:
		return "submitted"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Facts is the location data owned outside the machine.
type Facts struct {
	CityID string
	ZoneID string
}

// OrderContext is everything Submit needs from the surrounding session.
// PromoCode must only be set when the promo is currently trusted.
type OrderContext struct {
	Identity  domain.Identity
	Facts     Facts
	ItemCount int
	PromoCode string
}

type Submitter interface {
	SubmitOrder(ctx context.Context, token string, req domain.OrderRequest) (domain.OrderOutcome, error)
}

type View struct {
	Step          Step                 `json:"step"`
	StepName      string               `json:"stepName"`
	Recipient     domain.Recipient     `json:"recipient"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod,omitempty"`
	ProviderID    string               `json:"providerId,omitempty"`
	Submitting    bool                 `json:"submitting"`
	Outcome       *domain.OrderOutcome `json:"outcome,omitempty"`
}

type Machine struct {
	orders Submitter
	logger *zap.Logger

	mu         sync.Mutex
	step       Step
	recipient  domain.Recipient
	method     domain.PaymentMethod
	providerID string
	submitting bool
	outcome    *domain.OrderOutcome
}

func New(orders Submitter, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{orders: orders, logger: logger, step: StepLocation}
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{
		Step:          m.step,
		StepName:      m.step.String(),
		Recipient:     m.recipient,
		PaymentMethod: m.method,
		ProviderID:    m.providerID,
		Submitting:    m.submitting,
	}
	v.Recipient.ExtraPhones = append([]string(nil), m.recipient.ExtraPhones...)
	if m.outcome != nil {
		out := *m.outcome
		v.Outcome = &out
	}
	return v
}

// Advance moves one step forward once the current step's data is complete.
func (m *Machine) Advance(facts Facts) (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepLocation:
		if err := checkFacts(facts); err != nil {
			return m.step, err
		}
		m.step = StepRecipient
	case StepRecipient:
		if err := checkRecipient(m.recipient); err != nil {
			return m.step, err
		}
		m.step = StepPayment
	default:
		return m.step, fmt.Errorf("%w: cannot advance from %s", ErrIllegalTransition, m.step)
	}
	return m.step, nil
}

// Back returns to the previous step keeping entered data.
func (m *Machine) Back() (Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepRecipient, StepPayment:
		if m.submitting {
			return m.step, fmt.Errorf("%w: submission in progress", ErrIllegalTransition)
		}
		m.step--
		return m.step, nil
	default:
		return m.step, fmt.Errorf("%w: cannot go back from %s", ErrIllegalTransition, m.step)
	}
}

func (m *Machine) SetRecipient(r domain.Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step == StepSubmitted {
		return fmt.Errorf("%w: order already submitted", ErrIllegalTransition)
	}
	r.ExtraPhones = append([]string(nil), r.ExtraPhones...)
	m.recipient = r
	return nil
}

// SelectPayment records the payment choice. providerID is kept only for
// online payment.
func (m *Machine) SelectPayment(method domain.PaymentMethod, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step == StepSubmitted {
		return fmt.Errorf("%w: order already submitted", ErrIllegalTransition)
	}
	switch method {
	case domain.PaymentCOD:
		providerID = ""
	case domain.PaymentOnline:
	default:
		return domain.Invalid("paymentMethod", "must be COD or ONLINE")
	}
	m.method = method
	m.providerID = strings.TrimSpace(providerID)
	return nil
}

// Reset discards the checkout data and returns to the location step. The
// outcome of the last placed order is kept for View.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitting {
		return
	}
	m.step = StepLocation
	m.recipient = domain.Recipient{}
	m.method = ""
	m.providerID = ""
}

// Submit places the order. On failure the machine stays at the payment step.
func (m *Machine) Submit(ctx context.Context, oc OrderContext) (domain.OrderOutcome, error) {
	m.mu.Lock()
	if m.step != StepPayment {
		step := m.step
		m.mu.Unlock()
		return domain.OrderOutcome{}, fmt.Errorf("%w: cannot submit from %s", ErrIllegalTransition, step)
	}
	if m.submitting {
		m.mu.Unlock()
		return domain.OrderOutcome{}, fmt.Errorf("%w: submission in progress", ErrIllegalTransition)
	}
	req, err := m.buildRequestLocked(oc)
	if err != nil {
		m.mu.Unlock()
		return domain.OrderOutcome{}, err
	}
	m.submitting = true
	m.mu.Unlock()

	outcome, err := m.orders.SubmitOrder(ctx, oc.Identity.Token, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitting = false
	if err != nil {
		m.logger.Warn("checkout: order submission failed",
			zap.String("user_id", oc.Identity.UserID),
			zap.String("payment_method", req.PaymentMethod),
			zap.Error(err),
		)
		return domain.OrderOutcome{}, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	m.step = StepSubmitted
	m.outcome = &outcome
	m.logger.Info("checkout: order submitted",
		zap.String("user_id", oc.Identity.UserID),
		zap.Bool("redirect", outcome.NeedsRedirect()),
	)
	return outcome, nil
}

func (m *Machine) buildRequestLocked(oc OrderContext) (domain.OrderRequest, error) {
	if !oc.Identity.Authenticated() {
		return domain.OrderRequest{}, domain.ErrAuthRequired
	}
	if oc.ItemCount < 1 {
		return domain.OrderRequest{}, domain.Invalid("cart", "cart is empty")
	}
	if err := checkFacts(oc.Facts); err != nil {
		return domain.OrderRequest{}, err
	}
	if err := checkRecipient(m.recipient); err != nil {
		return domain.OrderRequest{}, err
	}

	var paymentMethod string
	switch m.method {
	case domain.PaymentCOD:
		paymentMethod = string(domain.PaymentCOD)
	case domain.PaymentOnline:
		if m.providerID == "" {
			return domain.OrderRequest{}, domain.Invalid("providerId", "choose an online payment provider")
		}
		paymentMethod = m.providerID
	default:
		return domain.OrderRequest{}, domain.Invalid("paymentMethod", "choose a payment method")
	}

	r := m.recipient
	return domain.OrderRequest{
		CityID:        oc.Facts.CityID,
		ZoneID:        oc.Facts.ZoneID,
		Address:       strings.TrimSpace(r.Address),
		Phone:         strings.TrimSpace(r.Phone),
		PromoCode:     oc.PromoCode,
		PaymentMethod: paymentMethod,
		FirstName:     strings.TrimSpace(r.FirstName),
		LastName:      strings.TrimSpace(r.LastName),
		ExtraPhones:   nonBlank(r.ExtraPhones),
	}, nil
}

func checkFacts(f Facts) error {
	if strings.TrimSpace(f.CityID) == "" {
		return domain.Invalid("cityId", "select a city")
	}
	if strings.TrimSpace(f.ZoneID) == "" {
		return domain.Invalid("zoneId", "select a zone")
	}
	return nil
}

func checkRecipient(r domain.Recipient) error {
	fields := []struct{ name, value string }{
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"phone", r.Phone},
		{"address", r.Address},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return domain.Invalid(f.name, "required")
		}
	}
	return nil
}

func nonBlank(phones []string) []string {
	out := make([]string, 0, len(phones))
	for _, p := range phones {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
