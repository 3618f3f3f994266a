// Package places serves the city and zone directory used for delivery.
package places

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront-core/internal/domain"
)

// fetchTimeout bounds a shared directory call independently of its callers.
const fetchTimeout = 10 * time.Second

type Directory interface {
	ListCities(ctx context.Context) ([]domain.City, error)
}

type Service struct {
	dir Directory
	ttl time.Duration
	now func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	cities    []domain.City
	fetchedAt time.Time
}

func New(dir Directory, ttl time.Duration) *Service {
	return &Service{dir: dir, ttl: ttl, now: time.Now}
}

func (s *Service) Cities(ctx context.Context) ([]domain.City, error) {
	s.mu.RLock()
	cached, fresh := s.cities, s.cities != nil && s.ttl > 0 && s.now().Sub(s.fetchedAt) < s.ttl
	s.mu.RUnlock()
	if fresh {
		return cached, nil
	}
	ch := s.group.DoChan("cities", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		cities, err := s.dir.ListCities(fctx)
		if err != nil {
			return nil, err
		}
		if cities == nil {
			cities = []domain.City{}
		}
		s.mu.Lock()
		s.cities = cities
		s.fetchedAt = s.now()
		s.mu.Unlock()
		return cities, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		// serve the last known directory rather than failing the shopper
		if cached != nil {
			return cached, nil
		}
		return nil, res.Err
	}
	return res.Val.([]domain.City), nil
}

func (s *Service) City(ctx context.Context, cityID string) (domain.City, error) {
	if cityID == "" {
		return domain.City{}, domain.Invalid("cityId", "required")
	}
	cities, err := s.Cities(ctx)
	if err != nil {
		return domain.City{}, err
	}
	for _, c := range cities {
		if c.ID == cityID {
			return c, nil
		}
	}
	return domain.City{}, domain.ErrNotFound
}

// Zone returns zoneID, which must belong to cityID.
func (s *Service) Zone(ctx context.Context, cityID, zoneID string) (domain.Zone, error) {
	if zoneID == "" {
		return domain.Zone{}, domain.Invalid("zoneId", "required")
	}
	city, err := s.City(ctx, cityID)
	if err != nil {
		return domain.Zone{}, err
	}
	zone, ok := city.FindZone(zoneID)
	if !ok {
		return domain.Zone{}, domain.Invalid("zoneId", "not in selected city")
	}
	return zone, nil
}
