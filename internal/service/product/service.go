package product

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront-core/internal/domain"
)

// Catalog is the read-only product collaborator.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// lookupTimeout bounds a shared catalog call once it no longer follows the
// context of the caller that started it.
const lookupTimeout = 10 * time.Second

type entry struct {
	product   domain.Product
	expiresAt time.Time
}

type Service struct {
	catalog Catalog
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]entry
}

func New(catalog Catalog, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog: catalog,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]entry),
	}
}

// Get returns the product, serving from cache while fresh. Concurrent misses
// for the same id share one backend call.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	if id == "" {
		return domain.Product{}, domain.Invalid("productId", "required")
	}
	if p, ok := s.cached(id); ok {
		return p, nil
	}
	ch := s.group.DoChan(id, func() (any, error) {
		if p, ok := s.cached(id); ok {
			return p, nil
		}
		// joined callers must not inherit the first caller's cancellation
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		p, err := s.catalog.GetProduct(fctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		if p.ID == "" {
			p.ID = id
		}
		s.store(p)
		return p, nil
	})
	select {
	case <-ctx.Done():
		return domain.Product{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Product{}, res.Err
		}
		return res.Val.(domain.Product), nil
	}
}

// GetMany resolves every id it can. Ids the catalog does not know are left out
// of the map; any other failure aborts.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		p, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("product lookup: unknown product", zap.String("product_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = p
	}
	return out, nil
}

// Limit returns the product's quantity limit, 0 meaning unlimited.
func (s *Service) Limit(ctx context.Context, id string) (int, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.QuantityLimit(), nil
}

func (s *Service) cached(id string) (domain.Product, bool) {
	if s.ttl <= 0 {
		return domain.Product{}, false
	}
	s.mu.RLock()
	e, ok := s.cache[id]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expiresAt) {
		return domain.Product{}, false
	}
	return e.product, true
}

func (s *Service) store(p domain.Product) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.cache[p.ID] = entry{product: p, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
}
