package guestcart

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront-core/internal/config"
	"storefront-core/internal/db"
	"storefront-core/internal/migrate"
)

// Purger is implemented by stores whose entries do not expire on their own.
type Purger interface {
	PurgeIdle(ctx context.Context, ttl time.Duration) (int64, error)
}

// Open connects the store named by cfg.GuestCartStore. The Postgres store
// applies migrations first. The returned func releases the connection.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (Repository, func(), error) {
	switch cfg.GuestCartStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedis(client, cfg.GuestCartTTL, logger), func() { _ = client.Close() }, nil
	case "postgres", "":
		pool, err := db.Connect(ctx, cfg.DBConnString)
		if err != nil {
			return nil, nil, fmt.Errorf("connect db: %w", err)
		}
		if err := migrate.Apply(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return NewPostgres(pool, logger), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown guest cart store %q (want postgres or redis)", cfg.GuestCartStore)
	}
}
