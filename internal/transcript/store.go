// Package transcript holds the ordered, id-keyed list of messages for the
// active room of one console session.
package transcript

import (
	"sync"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
)

// ChangeKind says how a mutation touched the transcript.
type ChangeKind string

const (
	ChangeAppend  ChangeKind = "append"
	ChangeReplace ChangeKind = "replace"
	ChangeReset   ChangeKind = "reset"
)

// Change describes one committed mutation. Message is empty for resets.
type Change struct {
	Kind    ChangeKind
	Message chat.Message
	Len     int
}

// Observer receives committed changes in mutation order.
type Observer func(Change)

// Turn is one role/content pair of the linearized history sent to a model.
type Turn struct {
	Role    chat.Role
	Content string
}

// Store is the canonical in-memory transcript. All mutations go through a
// single mutex so at most one entry exists per id, and observers are invoked
// while the lock is held so they see changes in commit order. Observers must
// not call back into the Store.
type Store struct {
	mu        sync.Mutex
	msgs      []chat.Message
	index     map[string]int
	observers map[int]Observer
	nextObs   int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		index:     make(map[string]int),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn for every future change and returns a function that
// removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Append adds msg at the end. It returns false, changing nothing, when a
// message with the same id already exists.
func (s *Store) Append(msg chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[msg.ID]; ok {
		return false
	}
	msg = msg.Clone()
	s.index[msg.ID] = len(s.msgs)
	s.msgs = append(s.msgs, msg)
	s.notify(Change{Kind: ChangeAppend, Message: msg.Clone(), Len: len(s.msgs)})
	return true
}

// Replace swaps the message with msg.ID wholesale, keeping its position. It
// never inserts: an unknown id returns false.
func (s *Store) Replace(msg chat.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[msg.ID]
	if !ok {
		return false
	}
	s.msgs[i] = msg.Clone()
	s.notify(Change{Kind: ChangeReplace, Message: msg.Clone(), Len: len(s.msgs)})
	return true
}

// Update applies fn to a copy of the message with the given id and stores
// the result in place. The id cannot be changed by fn.
func (s *Store) Update(id string, fn func(*chat.Message)) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	m := s.msgs[i].Clone()
	fn(&m)
	m.ID = id
	s.msgs[i] = m
	s.notify(Change{Kind: ChangeReplace, Message: m.Clone(), Len: len(s.msgs)})
	return m.Clone(), true
}

// Reset replaces the whole transcript, dropping later duplicates of an id.
func (s *Store) Reset(msgs []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = make([]chat.Message, 0, len(msgs))
	s.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		if _, dup := s.index[m.ID]; dup {
			continue
		}
		s.index[m.ID] = len(s.msgs)
		s.msgs = append(s.msgs, m.Clone())
	}
	s.notify(Change{Kind: ChangeReset, Len: len(s.msgs)})
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.msgs[i].Clone(), true
}

// Has reports whether a message with id exists.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// Messages returns a deep copy of the transcript in order.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Clone()
	}
	return out
}

// History linearizes the transcript into role/content turns, skipping the
// message with id exclude (the in-flight placeholder) and empty entries.
func (s *Store) History(exclude string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := make([]Turn, 0, len(s.msgs))
	for _, m := range s.msgs {
		if m.ID == exclude || m.Content == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// notify must be called with s.mu held.
func (s *Store) notify(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}
