package session

import (
	"context"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/checkout"
)

func (s *Session) Checkout() checkout.View {
	s.touch()
	return s.checkout.View()
}

func (s *Session) AdvanceCheckout() (checkout.View, error) {
	s.touch()
	s.mu.Lock()
	facts := checkout.Facts{CityID: s.zone.CityID, ZoneID: s.zone.ZoneID}
	m := s.checkout
	s.mu.Unlock()
	_, err := m.Advance(facts)
	return m.View(), err
}

func (s *Session) BackCheckout() (checkout.View, error) {
	s.touch()
	m := s.currentCheckout()
	_, err := m.Back()
	return m.View(), err
}

func (s *Session) SetRecipient(r domain.Recipient) (checkout.View, error) {
	s.touch()
	m := s.currentCheckout()
	err := m.SetRecipient(r)
	return m.View(), err
}

func (s *Session) SelectPayment(method domain.PaymentMethod, providerID string) (checkout.View, error) {
	s.touch()
	m := s.currentCheckout()
	err := m.SelectPayment(method, providerID)
	return m.View(), err
}

func (s *Session) PaymentMethods(ctx context.Context) ([]domain.PaymentOption, error) {
	s.touch()
	id := s.Identity()
	if !id.Authenticated() {
		return nil, domain.ErrAuthRequired
	}
	return s.deps.Orders.PaymentMethods(ctx, id.Token)
}

// SubmitOrder places the order. Cart and location stay locked for the whole
// submission so the order matches what the shopper saw; the promo code is sent
// only when it is trusted for the current state.
func (s *Session) SubmitOrder(ctx context.Context) (domain.OrderOutcome, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.EnsureLoaded(ctx); err != nil {
		return domain.OrderOutcome{}, err
	}
	oc := checkout.OrderContext{
		Identity:  s.identity,
		Facts:     checkout.Facts{CityID: s.zone.CityID, ZoneID: s.zone.ZoneID},
		ItemCount: s.store.ItemCount(),
	}
	if app, ok := s.promo.Trusted(s.version); ok {
		oc.PromoCode = app.Code
	}

	outcome, err := s.checkout.Submit(ctx, oc)
	if err != nil {
		return domain.OrderOutcome{}, err
	}

	// The placed order ends this checkout; the next one starts from scratch
	// with the outcome still visible.
	s.checkout.Reset()
	s.promo.Cancel()
	if err := s.store.Refresh(ctx); err != nil {
		s.logger.Warn("session: cart refresh after order failed", zap.Error(err))
	}
	s.version++
	return outcome, nil
}

func (s *Session) currentCheckout() *checkout.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkout
}
