// Package session ties one shopper's cart, delivery location, promo code and
// checkout together and keeps them consistent with each other.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/repository/guestcart"
	"storefront-core/internal/service/cart"
	"storefront-core/internal/service/cartsync"
	"storefront-core/internal/service/checkout"
	"storefront-core/internal/service/pricing"
	"storefront-core/internal/service/promo"
)

type Catalog interface {
	GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error)
	Limit(ctx context.Context, productID string) (int, error)
}

type Places interface {
	City(ctx context.Context, cityID string) (domain.City, error)
	Zone(ctx context.Context, cityID, zoneID string) (domain.Zone, error)
}

type Orders interface {
	checkout.Submitter
	PaymentMethods(ctx context.Context, token string) ([]domain.PaymentOption, error)
}

// Deps are shared by every session.
type Deps struct {
	Guests            guestcart.Repository
	Remote            cart.RemoteCart
	Catalog           Catalog
	Places            Places
	Promo             promo.Tester
	Orders            Orders
	Merger            *cartsync.Merger
	Logger            *zap.Logger
	RevalidateTimeout time.Duration
}

// Summary is the priced view of a session.
type Summary struct {
	Mode         domain.CartMode     `json:"mode"`
	Lines        []domain.CartLine   `json:"lines"`
	Totals       pricing.Totals      `json:"totals"`
	Promo        promo.View          `json:"promo"`
	PromoPending bool                `json:"promoPending"`
	Location     domain.DeliveryZone `json:"location"`
	Version      uint64              `json:"version"`
}

type Session struct {
	deps   Deps
	logger *zap.Logger

	// mu serialises every cart and location change, backend I/O included.
	mu       sync.Mutex
	guestID  string
	identity domain.Identity
	store    *cart.Store
	remote   *cart.RemoteBackend
	zone     domain.DeliveryZone
	version  uint64
	checkout *checkout.Machine

	promo    *promo.Validator
	badge    *cartsync.Broadcaster
	lastSeen atomic.Int64
}

// New builds a session. With an authenticated identity the cart lives on the
// order service, otherwise in guest storage under guestID.
func New(deps Deps, guestID string, identity domain.Identity) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Merger == nil {
		deps.Merger = cartsync.NewMerger(cartsync.PolicyAddMissing, deps.Catalog, deps.Logger)
	}
	if deps.RevalidateTimeout <= 0 {
		deps.RevalidateTimeout = 10 * time.Second
	}
	s := &Session{
		deps:     deps,
		logger:   deps.Logger,
		guestID:  guestID,
		identity: identity,
		promo:    promo.NewValidator(deps.Promo, deps.Logger),
		checkout: checkout.New(deps.Orders, deps.Logger),
		badge:    cartsync.NewBroadcaster(),
	}
	if identity.Authenticated() {
		s.remote = cart.NewRemoteBackend(deps.Remote, identity.Token, deps.Logger)
		s.store = cart.NewStore(s.remote, deps.Catalog, deps.Logger)
	} else {
		s.store = s.guestStore(guestID)
	}
	s.badge.Watch(s.store)
	s.touch()
	return s
}

func (s *Session) guestStore(guestID string) *cart.Store {
	return cart.NewStore(cart.NewLocalBackend(s.deps.Guests, guestID), s.deps.Catalog, s.deps.Logger)
}

func (s *Session) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Badge is the item-count broadcaster for this session.
func (s *Session) Badge() *cartsync.Broadcaster { return s.badge }

// Summary prices a consistent snapshot of the cart. A promo whose validation
// is outstanding contributes no discount.
func (s *Session) Summary(ctx context.Context) (Summary, error) {
	s.touch()
	s.mu.Lock()
	if err := s.store.EnsureLoaded(ctx); err != nil {
		s.mu.Unlock()
		return Summary{}, err
	}
	snap := s.store.Snapshot()
	zone := s.zone
	version := s.version
	s.mu.Unlock()

	ids := make([]string, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.deps.Catalog.GetMany(ctx, ids)
	if err != nil {
		return Summary{}, err
	}

	view := s.promo.View()
	in := pricing.Input{Lines: snap.Lines, Products: products, DeliveryFee: zone.Fee()}
	app, trusted := s.promo.Trusted(version)
	if trusted {
		in.Promo = &app
	}
	return Summary{
		Mode:         snap.Mode,
		Lines:        snap.Lines,
		Totals:       pricing.Calculate(in),
		Promo:        view,
		PromoPending: !trusted && view.State != promo.StateUnapplied,
		Location:     zone,
		Version:      version,
	}, nil
}

func (s *Session) AddLine(ctx context.Context, productID string, qty int) (Summary, error) {
	return s.mutateCart(ctx, func(ctx context.Context, store *cart.Store) error {
		return store.AddLine(ctx, productID, qty)
	})
}

func (s *Session) ChangeQuantity(ctx context.Context, productID string, delta int) (Summary, error) {
	return s.mutateCart(ctx, func(ctx context.Context, store *cart.Store) error {
		return store.ChangeQuantity(ctx, productID, delta)
	})
}

func (s *Session) RemoveLine(ctx context.Context, productID string) (Summary, error) {
	return s.mutateCart(ctx, func(ctx context.Context, store *cart.Store) error {
		return store.RemoveLine(ctx, productID)
	})
}

// RefreshCount re-reads the cart from its backend and returns the badge count.
func (s *Session) RefreshCount(ctx context.Context) (int, error) {
	s.touch()
	s.mu.Lock()
	before := s.store.Version()
	count, err := s.badge.Refresh(ctx, s.store)
	var req promo.Request
	var held bool
	if err == nil && s.store.Version() != before {
		req, held = s.bumpLocked()
	}
	s.mu.Unlock()
	if held {
		s.revalidate(ctx, req)
	}
	return count, err
}

// SelectCity changes the delivery city. The zone and its fee are cleared.
func (s *Session) SelectCity(ctx context.Context, cityID string) (Summary, error) {
	s.touch()
	city, err := s.deps.Places.City(ctx, cityID)
	if err != nil {
		return Summary{}, err
	}
	s.mu.Lock()
	if s.zone.CityID == city.ID {
		s.mu.Unlock()
		return s.Summary(ctx)
	}
	s.zone = s.zone.WithCity(city.ID)
	req, held := s.bumpLocked()
	s.mu.Unlock()
	if held {
		s.revalidate(ctx, req)
	}
	return s.Summary(ctx)
}

// SelectZone picks a zone inside the selected city and takes its fee.
func (s *Session) SelectZone(ctx context.Context, zoneID string) (Summary, error) {
	s.touch()
	s.mu.Lock()
	cityID := s.zone.CityID
	s.mu.Unlock()
	if cityID == "" {
		return Summary{}, domain.Invalid("cityId", "select a city first")
	}
	zone, err := s.deps.Places.Zone(ctx, cityID, zoneID)
	if err != nil {
		return Summary{}, err
	}

	s.mu.Lock()
	if s.zone.CityID != cityID {
		s.mu.Unlock()
		return Summary{}, domain.Invalid("zoneId", "city changed, select the zone again")
	}
	if s.zone.FeeSet && s.zone.ZoneID == zone.ID {
		s.mu.Unlock()
		return s.Summary(ctx)
	}
	s.zone = s.zone.WithZone(zone)
	req, held := s.bumpLocked()
	s.mu.Unlock()
	if held {
		s.revalidate(ctx, req)
	}
	return s.Summary(ctx)
}

// ApplyPromo validates code against the current cart and location. A call
// overtaken by a cart or location change is not an error; the change
// revalidates the code itself.
func (s *Session) ApplyPromo(ctx context.Context, code string) (Summary, error) {
	s.touch()
	s.mu.Lock()
	req := s.promoRequestLocked(code)
	s.mu.Unlock()

	if err := s.applyPromo(ctx, req); err != nil {
		return Summary{}, err
	}
	return s.Summary(ctx)
}

// applyPromo runs req and catches up with any change that landed between
// building req and the validator taking it: such a change found no held code
// to invalidate, so the result would otherwise stay untrusted forever.
func (s *Session) applyPromo(ctx context.Context, req promo.Request) error {
	_, err := s.promo.Apply(ctx, req)
	if errors.Is(err, promo.ErrSuperseded) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	overtaken := s.version != req.Version
	next := s.promoRequestLocked("")
	s.mu.Unlock()
	if overtaken {
		s.revalidate(ctx, next)
	}
	return nil
}

func (s *Session) CancelPromo(ctx context.Context) (Summary, error) {
	s.touch()
	s.promo.Cancel()
	return s.Summary(ctx)
}

func (s *Session) mutateCart(ctx context.Context, fn func(context.Context, *cart.Store) error) (Summary, error) {
	s.touch()
	s.mu.Lock()
	before := s.store.Version()
	if err := fn(ctx, s.store); err != nil {
		s.mu.Unlock()
		return Summary{}, err
	}
	var req promo.Request
	var held bool
	if s.store.Version() != before {
		req, held = s.bumpLocked()
	}
	s.mu.Unlock()

	if held {
		s.revalidate(ctx, req)
	}
	return s.Summary(ctx)
}

// bumpLocked records a dependency change and marks a held promo stale. The
// returned request describes the new state for revalidation.
func (s *Session) bumpLocked() (promo.Request, bool) {
	s.version++
	held := s.promo.Invalidate(s.version)
	return s.promoRequestLocked(""), held
}

func (s *Session) promoRequestLocked(code string) promo.Request {
	return promo.Request{
		Code:     code,
		Identity: s.identity,
		CityID:   s.zone.CityID,
		ZoneID:   s.zone.ZoneID,
		Lines:    s.store.Lines(),
		Version:  s.version,
		BaseFee:  s.zone.Fee(),
	}
}

// revalidate outlives the request that triggered it so a dropped connection
// does not discard the shopper's code.
func (s *Session) revalidate(ctx context.Context, req promo.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deps.RevalidateTimeout)
	defer cancel()
	if _, err := s.promo.Revalidate(ctx, req); err != nil && !errors.Is(err, promo.ErrSuperseded) {
		s.logger.Debug("session: promo revalidation failed", zap.Uint64("version", req.Version), zap.Error(err))
	}
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}
