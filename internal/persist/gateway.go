// Package persist maps console state onto the local key/value store.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/kv"
)

// Storage keys.
const (
	SessionKey  = "omni_session"
	UsersKey    = "omni_users"
	FeedbackKey = "omni_feedback_logs"

	historyPrefix  = "omni_history_"
	modePrefix     = "omni_mode_"
	presencePrefix = "omni_presence_"
	contextPrefix  = "omni_context_"
)

// DefaultPresenceTTL is how long a presence entry stays visible without a
// refresh.
const DefaultPresenceTTL = 2 * time.Minute

// HistoryKey is the transcript key of a room.
func HistoryKey(room string) string { return historyPrefix + room }

// ModeKey is the mode key of a room.
func ModeKey(room string) string { return modePrefix + room }

// PresenceKey is the presence key of a room.
func PresenceKey(room string) string { return presencePrefix + room }

// ContextKey is the domain/tool selection key of a room.
func ContextKey(room string) string { return contextPrefix + room }

// Family names the kind of data stored under key: session, users, feedback,
// history, mode, presence, context or other.
func Family(key string) string {
	switch key {
	case SessionKey:
		return "session"
	case UsersKey:
		return "users"
	case FeedbackKey:
		return "feedback"
	}
	for _, p := range []struct{ prefix, family string }{
		{historyPrefix, "history"},
		{modePrefix, "mode"},
		{presencePrefix, "presence"},
		{contextPrefix, "context"},
	} {
		if strings.HasPrefix(key, p.prefix) {
			return p.family
		}
	}
	return "other"
}

// RoomOf returns the room id of a per-room key, or "".
func RoomOf(key string) string {
	for _, prefix := range []string{historyPrefix, modePrefix, presencePrefix, contextPrefix} {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix)
		}
	}
	return ""
}

// Options configure a Gateway.
type Options struct {
	PresenceTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Gateway reads and writes console state. It never lets a storage problem
// escape as anything other than an error return or a logged fallback.
type Gateway struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	lastWrite map[string]string
}

// New returns a gateway over store.
func New(store kv.Store, opts Options) *Gateway {
	g := &Gateway{
		store:     store,
		ttl:       opts.PresenceTTL,
		now:       opts.Now,
		lastWrite: make(map[string]string),
	}
	if g.ttl <= 0 {
		g.ttl = DefaultPresenceTTL
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Store returns the underlying key/value store.
func (g *Gateway) Store() kv.Store { return g.store }

// SaveTranscript stores the room's messages. A write whose bytes equal the
// previous write of the same room is skipped; it reports whether it wrote.
func (g *Gateway) SaveTranscript(ctx context.Context, room string, msgs []chat.Message) (bool, error) {
	data, err := json.Marshal(msgs)
	if err != nil {
		return false, fmt.Errorf("persist: encode transcript %s: %w", room, err)
	}
	key := HistoryKey(room)

	g.mu.Lock()
	defer g.mu.Unlock()
	if prev, ok := g.lastWrite[key]; ok && prev == string(data) {
		return false, nil
	}
	if err := g.store.Set(ctx, key, string(data)); err != nil {
		return false, fmt.Errorf("persist: save transcript %s: %w", room, err)
	}
	g.lastWrite[key] = string(data)
	return true, nil
}

// LoadTranscript returns the stored messages of room. Missing, empty or
// corrupt data yields a single welcome message for username.
func (g *Gateway) LoadTranscript(ctx context.Context, room, username string) []chat.Message {
	welcome := []chat.Message{chat.WelcomeMessage(username)}
	raw, err := g.store.Get(ctx, HistoryKey(room))
	if errors.Is(err, kv.ErrNotFound) {
		return welcome
	}
	if err != nil {
		log.Printf("persist: load transcript %s: %v", room, err)
		return welcome
	}
	var msgs []chat.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		log.Printf("persist: load transcript %s: corrupt data: %v", room, err)
		return welcome
	}
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			log.Printf("persist: load transcript %s: corrupt message: %v", room, err)
			return welcome
		}
	}
	if len(msgs) == 0 {
		return welcome
	}
	return msgs
}

// DeleteTranscript removes the stored history of room.
func (g *Gateway) DeleteTranscript(ctx context.Context, room string) error {
	key := HistoryKey(room)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.lastWrite, key)
	if err := g.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("persist: delete transcript %s: %w", room, err)
	}
	return nil
}

// Rooms lists rooms that have a stored transcript.
func (g *Gateway) Rooms(ctx context.Context) ([]string, error) {
	keys, err := g.store.Keys(ctx, historyPrefix)
	if err != nil {
		return nil, fmt.Errorf("persist: list rooms: %w", err)
	}
	rooms := make([]string, 0, len(keys))
	for _, k := range keys {
		rooms = append(rooms, k[len(historyPrefix):])
	}
	return rooms, nil
}

// SaveMode stores the room mode.
func (g *Gateway) SaveMode(ctx context.Context, room string, mode chat.Mode) error {
	if _, err := chat.ParseMode(string(mode)); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return g.setJSON(ctx, ModeKey(room), mode)
}

// LoadMode returns the stored mode of room, ModeResearch when unset or
// invalid.
func (g *Gateway) LoadMode(ctx context.Context, room string) chat.Mode {
	var s string
	if !g.getJSON(ctx, ModeKey(room), &s) {
		return chat.ModeResearch
	}
	mode, err := chat.ParseMode(s)
	if err != nil {
		log.Printf("persist: load mode %s: %v", room, err)
		return chat.ModeResearch
	}
	return mode
}

// roomContext is the stored domain/tool selection of a room.
type roomContext struct {
	Domain    string   `json:"domain,omitempty"`
	SubDomain string   `json:"subDomain,omitempty"`
	Tools     []string `json:"tools,omitempty"`
}

// SaveContext stores the domain, sub-domain and tool selection of state.
func (g *Gateway) SaveContext(ctx context.Context, state chat.RoomState) error {
	return g.setJSON(ctx, ContextKey(state.RoomID), roomContext{
		Domain:    state.ActiveDomain,
		SubDomain: state.ActiveSubDomain,
		Tools:     state.Tools(),
	})
}

// LoadRoomState returns the full persisted state of room: its mode and its
// domain/tool selection.
func (g *Gateway) LoadRoomState(ctx context.Context, room string) chat.RoomState {
	state := chat.NewRoomState(room)
	state.ActiveMode = g.LoadMode(ctx, room)
	var rc roomContext
	if g.getJSON(ctx, ContextKey(room), &rc) {
		state.ActiveDomain = rc.Domain
		state.ActiveSubDomain = rc.SubDomain
		for _, t := range rc.Tools {
			state.ActiveTools[t] = true
		}
	}
	return state
}

// Identity is the remembered login of this device.
type Identity struct {
	Username string    `json:"username"`
	RoomID   string    `json:"roomId,omitempty"`
	LoggedIn time.Time `json:"loggedIn"`
}

// SaveIdentity remembers the logged-in user.
func (g *Gateway) SaveIdentity(ctx context.Context, id Identity) error {
	if id.LoggedIn.IsZero() {
		id.LoggedIn = g.now()
	}
	return g.setJSON(ctx, SessionKey, id)
}

// LoadIdentity returns the remembered identity, if any.
func (g *Gateway) LoadIdentity(ctx context.Context) (Identity, bool) {
	var id Identity
	if !g.getJSON(ctx, SessionKey, &id) || id.Username == "" {
		return Identity{}, false
	}
	return id, true
}

// ClearIdentity forgets the logged-in user.
func (g *Gateway) ClearIdentity(ctx context.Context) error {
	if err := g.store.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("persist: clear identity: %w", err)
	}
	return nil
}

// FeedbackEntry is one audit record of a rating.
type FeedbackEntry struct {
	User      string        `json:"user"`
	RoomID    string        `json:"roomId"`
	MessageID string        `json:"messageId"`
	Feedback  chat.Feedback `json:"feedback"`
	Timestamp time.Time     `json:"timestamp"`
}

// AppendFeedback adds e to the feedback audit log.
func (g *Gateway) AppendFeedback(ctx context.Context, e FeedbackEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = g.now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var entries []FeedbackEntry
	g.getJSON(ctx, FeedbackKey, &entries)
	entries = append(entries, e)
	return g.setJSON(ctx, FeedbackKey, entries)
}

// FeedbackLog returns the full feedback audit log.
func (g *Gateway) FeedbackLog(ctx context.Context) []FeedbackEntry {
	var entries []FeedbackEntry
	g.getJSON(ctx, FeedbackKey, &entries)
	return entries
}

// PresenceEntry is one user seen in a room.
type PresenceEntry struct {
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
}

// TouchPresence records username as present in room now.
func (g *Gateway) TouchPresence(ctx context.Context, room, username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := g.livePresence(ctx, room)
	seen[username] = g.now()
	return g.setJSON(ctx, PresenceKey(room), seen)
}

// RemovePresence drops username from room.
func (g *Gateway) RemovePresence(ctx context.Context, room, username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := g.livePresence(ctx, room)
	delete(seen, username)
	return g.setJSON(ctx, PresenceKey(room), seen)
}

// Presence lists users seen in room within the TTL, sorted by name.
func (g *Gateway) Presence(ctx context.Context, room string) []PresenceEntry {
	g.mu.Lock()
	seen := g.livePresence(ctx, room)
	g.mu.Unlock()
	out := make([]PresenceEntry, 0, len(seen))
	for u, ts := range seen {
		out = append(out, PresenceEntry{Username: u, LastSeen: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// livePresence must be called with g.mu held.
func (g *Gateway) livePresence(ctx context.Context, room string) map[string]time.Time {
	seen := map[string]time.Time{}
	g.getJSON(ctx, PresenceKey(room), &seen)
	if seen == nil {
		seen = map[string]time.Time{}
	}
	cutoff := g.now().Add(-g.ttl)
	for u, ts := range seen {
		if ts.Before(cutoff) {
			delete(seen, u)
		}
	}
	return seen
}

// UserRecord is a registered console user.
type UserRecord struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// LoadUsers returns the user directory keyed by username.
func (g *Gateway) LoadUsers(ctx context.Context) (map[string]UserRecord, error) {
	users := map[string]UserRecord{}
	raw, err := g.store.Get(ctx, UsersKey)
	if errors.Is(err, kv.ErrNotFound) {
		return users, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load users: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("persist: load users: %w", err)
	}
	return users, nil
}

// SaveUsers replaces the user directory.
func (g *Gateway) SaveUsers(ctx context.Context, users map[string]UserRecord) error {
	return g.setJSON(ctx, UsersKey, users)
}

func (g *Gateway) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: encode %s: %w", key, err)
	}
	if err := g.store.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("persist: save %s: %w", key, err)
	}
	return nil
}

// getJSON decodes key into v and reports whether it did. Missing keys are
// silent; read and decode failures are logged.
func (g *Gateway) getJSON(ctx context.Context, key string, v any) bool {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Printf("persist: load %s: %v", key, err)
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		log.Printf("persist: load %s: corrupt data: %v", key, err)
		return false
	}
	return true
}
