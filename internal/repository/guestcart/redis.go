package guestcart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storefront-core/internal/domain"
)

// RedisRepo keeps guest carts as JSON strings with a sliding TTL.
type RedisRepo struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisRepo {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRepo{client: client, ttl: ttl, logger: logger}
}

func (r *RedisRepo) Load(ctx context.Context, guestID string) ([]domain.CartLine, error) {
	data, err := r.client.Get(ctx, redisKey(guestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []domain.CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return DecodeLines(data)
}

func (r *RedisRepo) Save(ctx context.Context, guestID string, lines []domain.CartLine) error {
	raw, err := EncodeLines(lines)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(guestID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	r.logger.Debug("guest cart repo: save", zap.String("anonymous_id", guestID), zap.Int("lines", len(lines)))
	return nil
}

func (r *RedisRepo) Delete(ctx context.Context, guestID string) error {
	if err := r.client.Del(ctx, redisKey(guestID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func redisKey(guestID string) string {
	return fmt.Sprintf("guestcart:%s", guestID)
}
