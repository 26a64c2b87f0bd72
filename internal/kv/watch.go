package kv

import (
	"context"
	"sync"
)

// Change is published after a successful write or delete.
type Change struct {
	Key     string
	Deleted bool
}

// Watched decorates a Store with change notifications. Subscribers are
// called synchronously after the write commits, in write order.
type Watched struct {
	Store

	mu     sync.RWMutex
	subs   map[int]func(Change)
	nextID int
}

// NewWatched wraps s.
func NewWatched(s Store) *Watched {
	return &Watched{Store: s, subs: make(map[int]func(Change))}
}

// Subscribe registers fn and returns a function that removes it.
func (w *Watched) Subscribe(fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Set writes through and notifies subscribers.
func (w *Watched) Set(ctx context.Context, key, value string) error {
	if err := w.Store.Set(ctx, key, value); err != nil {
		return err
	}
	w.publish(Change{Key: key})
	return nil
}

// Delete removes through and notifies subscribers.
func (w *Watched) Delete(ctx context.Context, key string) error {
	if err := w.Store.Delete(ctx, key); err != nil {
		return err
	}
	w.publish(Change{Key: key, Deleted: true})
	return nil
}

func (w *Watched) publish(c Change) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, fn := range w.subs {
		fn(c)
	}
}
