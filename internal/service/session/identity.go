package session

import (
	"context"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/service/cart"
	"storefront-core/internal/service/cartsync"
	"storefront-core/internal/service/checkout"
)

// Login moves the session onto the shopper's server cart, folding the guest
// cart stored under guestID into it. On failure the session is unchanged.
func (s *Session) Login(ctx context.Context, guestID string, identity domain.Identity) (cartsync.MergeReport, error) {
	if !identity.Authenticated() {
		return cartsync.MergeReport{}, domain.ErrAuthRequired
	}
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	sameUser := s.identity.UserID == identity.UserID
	remoteBackend, remote := s.remote, s.store
	if !sameUser {
		remoteBackend = cart.NewRemoteBackend(s.deps.Remote, identity.Token, s.deps.Logger)
		remote = cart.NewStore(remoteBackend, s.deps.Catalog, s.deps.Logger)
	} else {
		remoteBackend.SetToken(identity.Token)
	}

	var guest *cart.Store
	switch {
	case !s.identity.Authenticated() && guestID == s.guestID:
		guest = s.store
	case guestID != "":
		guest = s.guestStore(guestID)
	}

	var report cartsync.MergeReport
	if guest != nil {
		var err error
		report, err = s.deps.Merger.Merge(ctx, guest, remote)
		if err != nil {
			return report, err
		}
	} else if err := remote.Load(ctx); err != nil {
		return report, err
	}

	if !sameUser {
		s.promo.Cancel()
		if s.identity.Authenticated() {
			s.checkout = checkout.New(s.deps.Orders, s.deps.Logger)
		}
	}
	if guestID != "" {
		s.guestID = guestID
	}
	s.identity = identity
	s.remote = remoteBackend
	s.store = remote
	s.badge.Watch(remote)
	s.version++
	s.promo.Invalidate(s.version)

	s.logger.Info("session: logged in",
		zap.String("user_id", identity.UserID),
		zap.Int("merged", len(report.Added)),
		zap.Int("kept", len(report.Kept)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// Logout returns the session to a guest cart under guestID. The server cart is
// left as it is.
func (s *Session) Logout(guestID string) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.promo.Cancel()
	s.checkout = checkout.New(s.deps.Orders, s.deps.Logger)
	s.identity = domain.Identity{}
	s.remote = nil
	s.guestID = guestID
	s.store = s.guestStore(guestID)
	s.badge.Watch(s.store)
	s.version++
}

// renewToken keeps a rotated bearer token for calls made on the shopper's behalf.
func (s *Session) renewToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.identity.Authenticated() || s.identity.Token == token {
		return
	}
	s.identity.Token = token
	if s.remote != nil {
		s.remote.SetToken(token)
	}
}
