package crosstab

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/transcript"
)

// ErrNotJoined is returned when broadcasting before any room was joined.
var ErrNotJoined = errors.New("crosstab: no room joined")

// Hooks are called from the pump goroutine after an incoming event was
// applied. Hooks must not call Join or Leave.
type Hooks struct {
	// OnMode receives every MODE_CHANGE. The last one wins.
	OnMode func(chat.Mode)
	// OnApplied is called for message events that changed the transcript.
	OnApplied func(Event)
}

// Synchronizer connects one session's transcript to its room channel.
type Synchronizer struct {
	hub   *Hub
	store *transcript.Store
	hooks Hooks

	mu   sync.Mutex
	ch   *Channel
	quit chan struct{}
	done chan struct{}
}

// NewSynchronizer returns a synchronizer that has not joined any room.
func NewSynchronizer(hub *Hub, store *transcript.Store, hooks Hooks) *Synchronizer {
	return &Synchronizer{hub: hub, store: store, hooks: hooks}
}

// Join leaves the current room, if any, and opens the channel of room. Events
// still queued for the previous room are discarded.
func (s *Synchronizer) Join(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
	s.ch = s.hub.Open(room)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	go s.pump(s.ch, s.quit, s.done)
}

// Leave closes the current channel and waits for the pump to exit. Nothing
// is applied to the store once Leave returns, including envelopes that were
// still queued.
func (s *Synchronizer) Leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

func (s *Synchronizer) leaveLocked() {
	if s.ch == nil {
		return
	}
	close(s.quit)
	s.ch.Close()
	<-s.done
	s.ch = nil
	s.quit = nil
	s.done = nil
}

// Room returns the joined room id, or "" before Join.
func (s *Synchronizer) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return ""
	}
	return s.ch.Room()
}

// BroadcastNew announces a locally appended message.
func (s *Synchronizer) BroadcastNew(m chat.Message) error {
	env, err := NewMessageEnvelope(m)
	if err != nil {
		return err
	}
	return s.post(env)
}

// BroadcastUpdate announces a locally replaced message.
func (s *Synchronizer) BroadcastUpdate(m chat.Message) error {
	env, err := UpdateMessageEnvelope(m)
	if err != nil {
		return err
	}
	return s.post(env)
}

// BroadcastMode announces a mode change.
func (s *Synchronizer) BroadcastMode(mode chat.Mode) error {
	env, err := ModeChangeEnvelope(mode)
	if err != nil {
		return err
	}
	return s.post(env)
}

func (s *Synchronizer) post(env Envelope) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return ErrNotJoined
	}
	ch.Post(env)
	return nil
}

// Apply decodes env and applies it to the local transcript. It reports
// whether anything changed. New messages with a known id and updates of an
// unknown id are no-ops.
func (s *Synchronizer) Apply(env Envelope) (Event, bool, error) {
	ev, err := env.Decode()
	if err != nil {
		return Event{}, false, err
	}
	switch ev.Kind {
	case KindNewMessage:
		return ev, s.store.Append(ev.Message), nil
	case KindUpdateMessage:
		return ev, s.store.Replace(ev.Message), nil
	case KindModeChange:
		return ev, true, nil
	}
	return ev, false, fmt.Errorf("crosstab: unhandled kind %q", ev.Kind)
}

func (s *Synchronizer) pump(ch *Channel, quit, done chan struct{}) {
	defer close(done)
	for {
		// quit wins over a backlog in the closed inbox.
		select {
		case <-quit:
			return
		default:
		}
		select {
		case <-quit:
			return
		case env, ok := <-ch.Inbox():
			if !ok {
				return
			}
			s.deliver(ch.Room(), env)
		}
	}
}

func (s *Synchronizer) deliver(room string, env Envelope) {
	ev, changed, err := s.Apply(env)
	if err != nil {
		log.Printf("crosstab: %s: dropping envelope: %v", room, err)
		return
	}
	if !changed {
		return
	}
	switch ev.Kind {
	case KindModeChange:
		if s.hooks.OnMode != nil {
			s.hooks.OnMode(ev.Mode)
		}
	default:
		if s.hooks.OnApplied != nil {
			s.hooks.OnApplied(ev)
		}
	}
}
