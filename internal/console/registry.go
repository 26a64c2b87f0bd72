package console

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/kv"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
)

// Registry tracks the open sessions of one server.
type Registry struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry that opens sessions with deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, sessions: make(map[string]*Session)}
}

// Open opens a session and registers it.
func (r *Registry) Open(ctx context.Context, username, roomID string) (*Session, error) {
	s, err := Open(ctx, r.deps, username, roomID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close closes and forgets the session with id.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("console: session %s not found", id)
	}
	s.Close()
	return nil
}

// Logout logs the session with id out and forgets it.
func (r *Registry) Logout(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("console: session %s not found", id)
	}
	return s.Logout(ctx)
}

// List returns the open sessions ordered by id.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// TouchAll refreshes presence for every open session.
func (r *Registry) TouchAll(ctx context.Context) {
	for _, s := range r.List() {
		if err := s.Touch(ctx); err != nil {
			log.Printf("console: heartbeat %s: %v", s.ID(), err)
		}
	}
}

// CloseAll closes every session, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// WatchPresence subscribes to presence writes on w and sends every session
// of the changed room an EventPresence with the live presence list. Changes
// are coalesced per room and delivered from one goroutine, because storage
// notifications run while the gateway holds its lock. The returned function
// unsubscribes and waits for delivery to stop.
func (r *Registry) WatchPresence(w *kv.Watched) (stop func()) {
	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		wake    = make(chan struct{}, 1)
		quit    = make(chan struct{})
		done    = make(chan struct{})
	)
	unsub := w.Subscribe(func(c kv.Change) {
		if persist.Family(c.Key) != "presence" {
			return
		}
		mu.Lock()
		pending[persist.RoomOf(c.Key)] = struct{}{}
		mu.Unlock()
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			case <-wake:
			}
			mu.Lock()
			rooms := pending
			pending = make(map[string]struct{})
			mu.Unlock()
			for room := range rooms {
				r.broadcastPresence(context.Background(), room)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(quit)
			<-done
		})
	}
}

func (r *Registry) broadcastPresence(ctx context.Context, room string) {
	var entries []persist.PresenceEntry
	for _, s := range r.List() {
		if s.Room() != room {
			continue
		}
		if entries == nil {
			entries = r.deps.Gateway.Presence(ctx, room)
		}
		s.notifyPresence(entries)
	}
}
