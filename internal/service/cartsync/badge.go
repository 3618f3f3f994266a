package cartsync

import (
	"context"
	"sync"

	"storefront-core/internal/service/cart"
)

// Broadcaster publishes the cart item count to subscribers.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    int
	count     int
	listeners map[int]func(int)
	unwatch   func()
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]func(int))}
}

// Subscribe registers fn and immediately hands it the current count.
func (b *Broadcaster) Subscribe(fn func(int)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	count := b.count
	b.mu.Unlock()
	fn(count)
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) Publish(count int) {
	b.mu.Lock()
	b.count = count
	listeners := make([]func(int), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(count)
	}
}

func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Watch follows store's changes, replacing any store watched before.
func (b *Broadcaster) Watch(store *cart.Store) {
	unwatch := store.OnChange(func(s cart.Snapshot) { b.Publish(s.ItemCount) })
	b.mu.Lock()
	prev := b.unwatch
	b.unwatch = unwatch
	b.mu.Unlock()
	if prev != nil {
		prev()
	}
	b.Publish(store.ItemCount())
}

// Refresh re-reads store from its backend and republishes the count.
func (b *Broadcaster) Refresh(ctx context.Context, store *cart.Store) (int, error) {
	if err := store.Refresh(ctx); err != nil {
		return b.Count(), err
	}
	count := store.ItemCount()
	b.Publish(count)
	return count, nil
}
