// Package promo validates promo codes against the order service and tracks
// whether an applied code still matches the cart and location it was checked
// against.
package promo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-core/internal/backend"
	"storefront-core/internal/domain"
)

// ErrSuperseded is returned to a validation call whose result was overtaken by
// a newer call or a cancel.
var ErrSuperseded = errors.New("promo: validation superseded")

type State string

const (
	StateUnapplied  State = "unapplied"
	StateApplying   State = "applying"
	StateApplied    State = "applied"
	StateStale      State = "stale"
	StateReapplying State = "reapplying"
)

// Tester is the order service's promo check.
type Tester interface {
	TestPromo(ctx context.Context, token string, req backend.PromoTestRequest) (backend.PromoTestResponse, error)
}

// Request carries everything a validation depends on. Version identifies that
// set of dependencies.
type Request struct {
	Code     string
	Identity domain.Identity
	CityID   string
	ZoneID   string
	Lines    []domain.CartLine
	Version  uint64
	BaseFee  decimal.Decimal
}

// View is what the shopper sees of the validator.
type View struct {
	State       State                    `json:"state"`
	Code        string                   `json:"code,omitempty"`
	Application *domain.PromoApplication `json:"application,omitempty"`
}

type Validator struct {
	tester Tester
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	code   string
	app    domain.PromoApplication
	basis  uint64
	gen    uint64
	cancel context.CancelFunc
}

func NewValidator(tester Tester, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{tester: tester, logger: logger, state: StateUnapplied}
}

// Apply validates a newly entered code. Missing preconditions are rejected
// locally without calling the backend.
func (v *Validator) Apply(ctx context.Context, req Request) (domain.PromoApplication, error) {
	code := domain.NormalizePromoCode(req.Code)
	if code == "" {
		return domain.PromoApplication{}, domain.Invalid("code", "enter a promo code")
	}
	if err := checkPreconditions(req); err != nil {
		return domain.PromoApplication{}, err
	}
	return v.run(ctx, req, code, StateApplying)
}

// Invalidate marks a held code as stale because something it depends on
// changed. It reports whether a code is held and needs revalidating.
func (v *Validator) Invalidate(version uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == StateUnapplied {
		return false
	}
	if version <= v.basis {
		return true
	}
	v.abortLocked()
	v.state = StateStale
	v.basis = version
	return true
}

// Revalidate re-checks a stale code against req. When req lacks a city or zone
// the code stays held and stale until the next change.
func (v *Validator) Revalidate(ctx context.Context, req Request) (domain.PromoApplication, error) {
	v.mu.Lock()
	switch {
	case v.state == StateUnapplied:
		v.mu.Unlock()
		return domain.PromoApplication{}, nil
	case req.Version < v.basis, v.state != StateStale && req.Version == v.basis:
		app := v.app
		v.mu.Unlock()
		return app, nil
	}
	code := v.code
	if !req.Identity.Authenticated() {
		v.resetLocked()
		v.mu.Unlock()
		return domain.PromoApplication{}, domain.ErrAuthRequired
	}
	if req.CityID == "" || req.ZoneID == "" {
		v.abortLocked()
		v.state = StateStale
		v.basis = req.Version
		v.mu.Unlock()
		return domain.PromoApplication{}, nil
	}
	v.mu.Unlock()

	app, err := v.run(ctx, req, code, StateReapplying)
	if err != nil && !errors.Is(err, ErrSuperseded) {
		v.logger.Warn("promo: revalidation reset the code", zap.String("code", code), zap.Error(err))
	}
	return app, err
}

// Cancel drops the code and aborts any call in flight.
func (v *Validator) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.abortLocked()
	v.resetLocked()
}

// Trusted returns the application only if it is applied and was computed
// against version.
func (v *Validator) Trusted(version uint64) (domain.PromoApplication, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateApplied || !v.app.Valid || v.app.Basis != version {
		return domain.PromoApplication{}, false
	}
	return v.app, true
}

// Pending reports whether a held code is waiting for (re)validation.
func (v *Validator) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch v.state {
	case StateApplying, StateStale, StateReapplying:
		return true
	}
	return false
}

func (v *Validator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Validator) View() View {
	v.mu.Lock()
	defer v.mu.Unlock()
	view := View{State: v.state, Code: v.code}
	if v.state == StateApplied {
		app := v.app
		view.Application = &app
	}
	return view
}

func (v *Validator) run(ctx context.Context, req Request, code string, state State) (domain.PromoApplication, error) {
	v.mu.Lock()
	v.abortLocked()
	v.gen++
	gen := v.gen
	callCtx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.state = state
	v.code = code
	v.basis = req.Version
	v.mu.Unlock()

	res, err := v.tester.TestPromo(callCtx, req.Identity.Token, backend.PromoTestRequest{
		Code:      code,
		UserID:    req.Identity.UserID,
		CityID:    req.CityID,
		ZoneID:    req.ZoneID,
		CartItems: domain.CloneLines(req.Lines),
	})
	cancel()

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return domain.PromoApplication{}, ErrSuperseded
	}
	v.cancel = nil
	if err != nil {
		v.resetLocked()
		return domain.PromoApplication{}, fmt.Errorf("validate promo %q: %w", code, err)
	}
	if !res.Valid {
		v.resetLocked()
		msg := res.Message
		if msg == "" {
			msg = "code is not valid for this order"
		}
		return domain.PromoApplication{Code: code, Message: msg}, fmt.Errorf("%w: %s", domain.ErrPromoInvalid, msg)
	}

	app := domain.PromoApplication{
		Code:                  code,
		Target:                domain.ParsePromoTarget(res.PromoCode.Target),
		DiscountAmount:        res.DiscountAmount,
		DiscountedDeliveryFee: res.DiscountedDeliveryFee,
		Valid:                 true,
		Message:               res.Message,
		Basis:                 req.Version,
	}
	if app.Target == domain.PromoTargetDelivery && app.DiscountedDeliveryFee.GreaterThan(req.BaseFee) {
		app.DiscountedDeliveryFee = req.BaseFee
	}
	v.app = app
	v.state = StateApplied
	return app, nil
}

func (v *Validator) abortLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
		v.gen++
	}
}

func (v *Validator) resetLocked() {
	v.state = StateUnapplied
	v.code = ""
	v.app = domain.PromoApplication{}
	v.basis = 0
}

func checkPreconditions(req Request) error {
	if !req.Identity.Authenticated() {
		return domain.ErrAuthRequired
	}
	if req.CityID == "" {
		return domain.Invalid("cityId", "select a city first")
	}
	if req.ZoneID == "" {
		return domain.Invalid("zoneId", "select a zone first")
	}
	return nil
}
