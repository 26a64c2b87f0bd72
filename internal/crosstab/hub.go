package crosstab

import "sync"

// DefaultInboxSize is the per-channel buffer used when none is configured.
const DefaultInboxSize = 64

// Hub owns one named broadcast channel per room id.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Channel]struct{}
	inboxSize int
	dropped   func(room string)
}

// NewHub creates a hub whose channels buffer inboxSize envelopes.
func NewHub(inboxSize int) *Hub {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Hub{rooms: make(map[string]map[*Channel]struct{}), inboxSize: inboxSize}
}

// OnDrop registers fn to be called whenever a full inbox drops an envelope.
func (h *Hub) OnDrop(fn func(room string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = fn
}

// Channel is one session's handle on a room channel.
type Channel struct {
	hub    *Hub
	room   string
	inbox  chan Envelope
	closed bool
}

// Open subscribes a new handle to room.
func (h *Hub) Open(room string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &Channel{hub: h, room: room, inbox: make(chan Envelope, h.inboxSize)}
	members := h.rooms[room]
	if members == nil {
		members = make(map[*Channel]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	return c
}

// Members returns the number of open handles in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Room returns the room this handle belongs to.
func (c *Channel) Room() string { return c.room }

// Inbox yields envelopes posted by other handles. It is closed by Close.
func (c *Channel) Inbox() <-chan Envelope { return c.inbox }

// Post delivers env to every other open handle of the room without
// blocking. A full inbox drops the envelope. It returns the number of
// handles that received it.
func (c *Channel) Post(env Envelope) int {
	h := c.hub
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c.closed {
		return 0
	}
	n := 0
	for peer := range h.rooms[c.room] {
		if peer == c {
			continue
		}
		select {
		case peer.inbox <- env:
			n++
		default:
			if h.dropped != nil {
				h.dropped(c.room)
			}
		}
	}
	return n
}

// Close unsubscribes the handle and closes its inbox. It is safe to call
// more than once.
func (c *Channel) Close() {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if members := h.rooms[c.room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	close(c.inbox)
}
