package guestcart

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"storefront-core/internal/domain"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *postgresRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &postgresRepo{pool: pool, logger: logger}
}

func (r *postgresRepo) Load(ctx context.Context, guestID string) ([]domain.CartLine, error) {
	const q = `
SELECT lines::text
FROM guest_carts
WHERE anonymous_id = $1
`
	var raw string
	err := r.pool.QueryRow(ctx, q, guestID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []domain.CartLine{}, nil
		}
		r.logger.Warn("guest cart repo: load failed", zap.String("anonymous_id", guestID), zap.Error(err))
		return nil, err
	}
	lines, err := DecodeLines([]byte(raw))
	if err != nil {
		return nil, err
	}
	r.logger.Debug("guest cart repo: load", zap.String("anonymous_id", guestID), zap.Int("lines", len(lines)))
	return lines, nil
}

func (r *postgresRepo) Save(ctx context.Context, guestID string, lines []domain.CartLine) error {
	raw, err := EncodeLines(lines)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO guest_carts (anonymous_id, lines, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (anonymous_id) DO UPDATE SET
    lines = EXCLUDED.lines,
    updated_at = EXCLUDED.updated_at
`
	if _, err := r.pool.Exec(ctx, q, guestID, string(raw)); err != nil {
		r.logger.Warn("guest cart repo: save failed", zap.String("anonymous_id", guestID), zap.Error(err))
		return err
	}
	r.logger.Debug("guest cart repo: save", zap.String("anonymous_id", guestID), zap.Int("lines", len(lines)))
	return nil
}

func (r *postgresRepo) Delete(ctx context.Context, guestID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM guest_carts WHERE anonymous_id = $1`, guestID); err != nil {
		return err
	}
	r.logger.Debug("guest cart repo: delete", zap.String("anonymous_id", guestID))
	return nil
}

func (r *postgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// PurgeIdle removes guest carts untouched for longer than ttl.
func (r *postgresRepo) PurgeIdle(ctx context.Context, ttl time.Duration) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM guest_carts WHERE updated_at < $1`, time.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
