// Package cart holds the shopper's cart lines and keeps them in step with
// whichever backing store owns the cart.
package cart

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
)

// Limits resolves a product's quantity limit; 0 means unlimited.
type Limits interface {
	Limit(ctx context.Context, productID string) (int, error)
}

// Snapshot is a consistent read of the store.
type Snapshot struct {
	Mode      domain.CartMode   `json:"mode"`
	Lines     []domain.CartLine `json:"lines"`
	ItemCount int               `json:"itemCount"`
	Version   uint64            `json:"version"`
}

// Store is the in-memory mirror of a cart. Mutations are serialised and are
// applied to the mirror only once the backend has accepted them.
type Store struct {
	backend Backend
	limits  Limits
	logger  *zap.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	lines     []domain.CartLine
	loaded    bool
	version   uint64
	nextID    int
	listeners map[int]func(Snapshot)
}

func NewStore(backend Backend, limits Limits, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:   backend,
		limits:    limits,
		logger:    logger,
		lines:     []domain.CartLine{},
		listeners: make(map[int]func(Snapshot)),
	}
}

func (s *Store) Mode() domain.CartMode {
	return s.backend.Mode()
}

func (s *Store) Lines() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneLines(s.lines)
}

func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CountItems(s.lines)
}

// Version increments on every applied change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// OnChange registers fn to run after every applied change. The returned func
// removes it.
func (s *Store) OnChange(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Load replaces the mirror with the backend's lines.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.loadLocked(ctx)
}

// Refresh is Load under the name callers use for re-syncing with the server.
func (s *Store) Refresh(ctx context.Context) error {
	return s.Load(ctx)
}

// EnsureLoaded loads once.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.Loaded() {
		return nil
	}
	return s.loadLocked(ctx)
}

// AddLine adds a new line. A zero quantity means 1. A product that already has
// a line is rejected rather than incremented.
func (s *Store) AddLine(ctx context.Context, productID string, qty int) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Invalid("productId", "required")
	}
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return domain.Invalid("quantity", "must be positive")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	current := s.Lines()
	if domain.IndexOfLine(current, productID) >= 0 {
		return domain.ErrAlreadyInCart
	}
	if err := s.checkLimit(ctx, productID, qty); err != nil {
		return err
	}
	next := append(current, domain.CartLine{ProductID: productID, Quantity: qty})
	return s.commitLocked(ctx, Change{Kind: ChangeAdd, ProductID: productID, Quantity: qty}, next)
}

// ChangeQuantity moves a line's quantity by delta. Going above the limit is
// refused with nothing sent to the backend; going below 1 removes the line.
func (s *Store) ChangeQuantity(ctx context.Context, productID string, delta int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}

	current := s.Lines()
	idx := domain.IndexOfLine(current, productID)
	if idx < 0 {
		return domain.ErrNotFound
	}
	if delta == 0 {
		return nil
	}
	newQty := current[idx].Quantity + delta
	if newQty < 1 {
		return s.removeLocked(ctx, current, idx)
	}
	if delta > 0 {
		if err := s.checkLimit(ctx, productID, newQty); err != nil {
			return err
		}
	}
	current[idx].Quantity = newQty
	return s.commitLocked(ctx, Change{Kind: ChangeDelta, ProductID: productID, Quantity: delta}, current)
}

// RemoveLine deletes the line; removing an absent line does nothing.
func (s *Store) RemoveLine(ctx context.Context, productID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	current := s.Lines()
	idx := domain.IndexOfLine(current, productID)
	if idx < 0 {
		return nil
	}
	return s.removeLocked(ctx, current, idx)
}

func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	return s.commitLocked(ctx, Change{Kind: ChangeClear}, []domain.CartLine{})
}

func (s *Store) removeLocked(ctx context.Context, current []domain.CartLine, idx int) error {
	productID := current[idx].ProductID
	next := append(current[:idx:idx], current[idx+1:]...)
	return s.commitLocked(ctx, Change{Kind: ChangeRemove, ProductID: productID}, next)
}

func (s *Store) checkLimit(ctx context.Context, productID string, qty int) error {
	if s.limits == nil {
		return nil
	}
	limit, err := s.limits.Limit(ctx, productID)
	if err != nil {
		return err
	}
	if limit > 0 && qty > limit {
		return domain.ErrOutOfBounds
	}
	return nil
}

func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {
	lines, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	s.apply(dedupe(lines), true)
	return nil
}

func (s *Store) commitLocked(ctx context.Context, change Change, next []domain.CartLine) error {
	committed, err := s.backend.Commit(ctx, change, next)
	if err != nil {
		s.logger.Warn("cart store: commit failed",
			zap.String("mode", string(s.backend.Mode())),
			zap.String("change", change.Kind.String()),
			zap.String("product_id", change.ProductID),
			zap.Error(err),
		)
		return err
	}
	s.apply(dedupe(committed), false)
	return nil
}

func (s *Store) apply(lines []domain.CartLine, load bool) {
	s.mu.Lock()
	changed := !load || !sameLines(s.lines, lines) || !s.loaded
	s.lines = lines
	s.loaded = true
	if changed {
		s.version++
	}
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Mode:      s.backend.Mode(),
		Lines:     domain.CloneLines(s.lines),
		ItemCount: domain.CountItems(s.lines),
		Version:   s.version,
	}
}

// dedupe keeps the first line per product and drops empty quantities.
func dedupe(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 || domain.IndexOfLine(out, l.ProductID) >= 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

func sameLines(a, b []domain.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
