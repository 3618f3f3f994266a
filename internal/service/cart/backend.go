package cart

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"storefront-core/internal/domain"
	"storefront-core/internal/repository/guestcart"
)

type ChangeKind int

const (
	ChangeAdd ChangeKind = iota
	ChangeDelta
	ChangeRemove
	ChangeClear
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdd:
		return "add"
	case ChangeDelta:
		return "delta"
	case ChangeRemove:
		return "remove"
	case ChangeClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Quantity is the new line's quantity for
// ChangeAdd and the signed delta for ChangeDelta.
type Change struct {
	Kind      ChangeKind
	ProductID string
	Quantity  int
}

// Backend is where a cart actually lives. Commit receives both the change and
// the lines the store expects afterwards and returns the authoritative lines.
type Backend interface {
	Mode() domain.CartMode
	Load(ctx context.Context) ([]domain.CartLine, error)
	Commit(ctx context.Context, change Change, next []domain.CartLine) ([]domain.CartLine, error)
}

// LocalBackend keeps an anonymous shopper's cart in guest cart storage.
type LocalBackend struct {
	repo    guestcart.Repository
	guestID string
}

func NewLocalBackend(repo guestcart.Repository, guestID string) *LocalBackend {
	return &LocalBackend{repo: repo, guestID: guestID}
}

func (b *LocalBackend) Mode() domain.CartMode { return domain.CartModeLocal }

func (b *LocalBackend) Load(ctx context.Context) ([]domain.CartLine, error) {
	lines, err := b.repo.Load(ctx, b.guestID)
	if err != nil {
		return nil, fmt.Errorf("%w: load guest cart: %w", domain.ErrNetworkFailure, err)
	}
	return lines, nil
}

func (b *LocalBackend) Commit(ctx context.Context, _ Change, next []domain.CartLine) ([]domain.CartLine, error) {
	if err := b.repo.Save(ctx, b.guestID, next); err != nil {
		return nil, fmt.Errorf("%w: save guest cart: %w", domain.ErrNetworkFailure, err)
	}
	return next, nil
}

// RemoteCart is the order service's cart API.
type RemoteCart interface {
	GetCart(ctx context.Context, token string) ([]domain.CartLine, error)
	ChangeCart(ctx context.Context, token, productID string, delta int) error
	DeleteCartLine(ctx context.Context, token, productID string) error
}

// RemoteBackend drives the authenticated cart held by the order service.
type RemoteBackend struct {
	client RemoteCart
	logger *zap.Logger

	mu    sync.RWMutex
	token string
}

func NewRemoteBackend(client RemoteCart, token string, logger *zap.Logger) *RemoteBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteBackend{client: client, token: token, logger: logger}
}

func (b *RemoteBackend) Mode() domain.CartMode { return domain.CartModeRemote }

// SetToken swaps the bearer token after the shopper's session was renewed.
func (b *RemoteBackend) SetToken(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

func (b *RemoteBackend) bearer() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

func (b *RemoteBackend) Load(ctx context.Context) ([]domain.CartLine, error) {
	return b.client.GetCart(ctx, b.bearer())
}

func (b *RemoteBackend) Commit(ctx context.Context, change Change, next []domain.CartLine) ([]domain.CartLine, error) {
	token := b.bearer()
	var err error
	switch change.Kind {
	case ChangeAdd, ChangeDelta:
		err = b.client.ChangeCart(ctx, token, change.ProductID, change.Quantity)
	case ChangeRemove:
		err = b.client.DeleteCartLine(ctx, token, change.ProductID)
	case ChangeClear:
		err = b.clear(ctx, token)
	default:
		err = fmt.Errorf("unsupported cart change %d", change.Kind)
	}
	if err != nil {
		return nil, err
	}

	// The change is already applied server side; a failed re-read must not
	// report it as failed.
	lines, err := b.client.GetCart(ctx, token)
	if err != nil {
		b.logger.Warn("remote cart: refetch after change failed", zap.String("change", change.Kind.String()), zap.Error(err))
		return next, nil
	}
	return lines, nil
}

func (b *RemoteBackend) clear(ctx context.Context, token string) error {
	lines, err := b.client.GetCart(ctx, token)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if err := b.client.DeleteCartLine(ctx, token, l.ProductID); err != nil {
			return err
		}
	}
	return nil
}
