// Package console holds the session-scoped context of one browser tab: its
// transcript, its room state, its cross-tab channel and the wiring that
// streams model responses into it.
package console

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/compose"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/crosstab"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/metrics"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/mirror"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/stream"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/transcript"
	"github.com/google/uuid"
)

var (
	// ErrBusy is returned by Send while a response is still streaming.
	ErrBusy = errors.New("console: a response is still streaming")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("console: session closed")
	// ErrEmptyInput is returned when there is neither text nor an attachment.
	ErrEmptyInput = errors.New("console: message is empty")
	// ErrUnknownMessage is returned when a message id is not in the transcript.
	ErrUnknownMessage = errors.New("console: unknown message")
	// ErrInvalid wraps rejected user input such as an unknown mode or domain.
	ErrInvalid = errors.New("console: invalid input")
)

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalid, err)
}

// eventBuffer is the capacity of a session's event channel.
const eventBuffer = 256

// Deps are the shared collaborators of every session.
type Deps struct {
	Gateway *persist.Gateway
	Hub     *crosstab.Hub
	// Model defaults to llm.Unavailable.
	Model   llm.Model
	Mirror  mirror.Notifier
	Metrics *metrics.Metrics

	FragmentTimeout   time.Duration
	SystemInstruction string
}

// EventKind tells a subscriber what changed.
type EventKind string

const (
	EventAppend   EventKind = "append"
	EventReplace  EventKind = "replace"
	EventReset    EventKind = "reset"
	EventMode     EventKind = "mode"
	EventContext  EventKind = "context"
	EventPresence EventKind = "presence"
)

// Event is one change a tab must render.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Message *chat.Message   `json:"message,omitempty"`
	Mode    chat.Mode       `json:"mode,omitempty"`
	State   *chat.RoomState `json:"state,omitempty"`
	// Len is the transcript length after a message change.
	Len      int                     `json:"len,omitempty"`
	Presence []persist.PresenceEntry `json:"presence,omitempty"`
}

// SendInput is one submission from the input bar.
type SendInput struct {
	Text        string
	Search      bool
	Attachments []chat.Attachment
}

// Session is one open tab.
type Session struct {
	id       string
	username string
	deps     Deps
	store    *transcript.Store
	sync     *crosstab.Synchronizer
	unsub    func()
	sending  atomic.Bool

	mu    sync.Mutex
	state chat.RoomState

	evMu   sync.Mutex
	events chan Event
	closed bool
}

// Open restores roomID for username and joins its cross-tab channel.
func Open(ctx context.Context, deps Deps, username, roomID string) (*Session, error) {
	if strings.TrimSpace(username) == "" {
		return nil, invalid(errors.New("username is required"))
	}
	if err := chat.ValidateRoomID(roomID); err != nil {
		return nil, invalid(err)
	}
	if deps.Model == nil {
		deps.Model = llm.Unavailable{}
	}
	if deps.Mirror == nil {
		deps.Mirror = mirror.Nop{}
	}
	if deps.SystemInstruction == "" {
		deps.SystemInstruction = llm.SystemInstruction
	}

	s := &Session{
		id:       uuid.NewString(),
		username: username,
		deps:     deps,
		store:    transcript.New(),
		events:   make(chan Event, eventBuffer),
	}
	s.unsub = s.store.Subscribe(s.onChange)
	s.sync = crosstab.NewSynchronizer(deps.Hub, s.store, crosstab.Hooks{
		OnMode:    s.onRemoteMode,
		OnApplied: s.onRemoteApplied,
	})
	if err := s.enter(ctx, roomID); err != nil {
		s.unsub()
		return nil, err
	}
	deps.Metrics.SessionOpened()
	log.Printf("console: %s: %s opened %s", s.id, username, roomID)
	return s, nil
}

// enter loads roomID and joins its channel. The previous channel is left
// first so that nothing queued for the old room reaches the new transcript.
func (s *Session) enter(ctx context.Context, roomID string) error {
	s.sync.Leave()

	g := s.deps.Gateway
	state := g.LoadRoomState(ctx, roomID)
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.store.Reset(g.LoadTranscript(ctx, roomID, s.username))
	s.sync.Join(roomID)

	if err := g.TouchPresence(ctx, roomID, s.username); err != nil {
		log.Printf("console: %s: presence: %v", s.id, err)
	}
	if err := g.SaveIdentity(ctx, persist.Identity{Username: s.username, RoomID: roomID}); err != nil {
		return fmt.Errorf("console: save identity: %w", err)
	}
	s.emit(Event{Kind: EventContext, State: &state})
	return nil
}

// ID is the session id.
func (s *Session) ID() string { return s.id }

// Username is the signed-in user.
func (s *Session) Username() string { return s.username }

// Room is the current room id.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RoomID
}

// State returns a copy of the room state.
func (s *Session) State() chat.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(s.state)
}

// Transcript returns a snapshot of the messages.
func (s *Session) Transcript() []chat.Message { return s.store.Messages() }

// Events yields changes to render. It is closed by Close. A subscriber that
// falls behind loses events and should reload the transcript.
func (s *Session) Events() <-chan Event { return s.events }

// Busy reports whether a response is streaming.
func (s *Session) Busy() bool { return s.sending.Load() }

// Send composes input against the room context, appends the user message,
// streams the model response into a new assistant message and persists the
// settled transcript. Only one send runs at a time per session.
func (s *Session) Send(ctx context.Context, in SendInput) (stream.Result, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Attachments) == 0 {
		return stream.Result{}, ErrEmptyInput
	}
	if s.isClosed() {
		return stream.Result{}, ErrClosed
	}
	if !s.sending.CompareAndSwap(false, true) {
		return stream.Result{}, ErrBusy
	}
	defer s.sending.Store(false)

	intent := chat.IntentChat
	if in.Search {
		intent = chat.IntentSearch
	}
	state := s.State()
	out := compose.Compose(compose.FromState(text, intent, state, in.Attachments))

	history := compose.History(s.store.History(""))
	user := chat.NewUserMessage(s.username, out.Display, intent, in.Attachments)
	s.store.Append(user)
	s.broadcast(crosstab.KindNewMessage, s.sync.BroadcastNew(user))
	s.persist(context.WithoutCancel(ctx), state.RoomID)

	agg := &stream.Aggregator{
		Store:           s.store,
		FragmentTimeout: s.deps.FragmentTimeout,
		OnSnapshot: func(msg chat.Message, kind transcript.ChangeKind) {
			if kind == transcript.ChangeAppend {
				s.broadcast(crosstab.KindNewMessage, s.sync.BroadcastNew(msg))
				return
			}
			s.broadcast(crosstab.KindUpdateMessage, s.sync.BroadcastUpdate(msg))
		},
		OnSettle: func(res stream.Result) { s.settle(context.WithoutCancel(ctx), state.RoomID, res) },
	}
	req := llm.Request{
		SystemInstruction: s.deps.SystemInstruction,
		History:           history,
		Parts:             out.Parts,
		Search:            intent == chat.IntentSearch,
	}
	return agg.Run(ctx, s.deps.Model, req, intent), nil
}

func (s *Session) settle(ctx context.Context, room string, res stream.Result) {
	s.persist(ctx, room)

	outcome := metrics.OutcomeOK
	switch {
	case res.Cancelled:
		outcome = metrics.OutcomeCancelled
	case res.Failed():
		outcome = metrics.OutcomeFailed
	}
	s.deps.Metrics.StreamSettled(outcome, res.Fragments, res.Duration.Seconds())

	p := mirror.PostFromMessage(room, res.Message)
	p.Failed = res.Failed()
	mirror.Best(ctx, s.deps.Mirror, p)
}

// persist writes the transcript of room unless it is unchanged.
func (s *Session) persist(ctx context.Context, room string) {
	wrote, err := s.deps.Gateway.SaveTranscript(ctx, room, s.store.Messages())
	switch {
	case err != nil:
		log.Printf("console: %s: %v", s.id, err)
		s.deps.Metrics.PersistWrite("error")
	case wrote:
		s.deps.Metrics.PersistWrite("written")
	default:
		s.deps.Metrics.PersistWrite("skipped")
	}
}

// SetMode changes the room's workspace mode and tells the other tabs.
func (s *Session) SetMode(ctx context.Context, mode chat.Mode) error {
	if _, err := chat.ParseMode(string(mode)); err != nil {
		return invalid(err)
	}
	if s.isClosed() {
		return ErrClosed
	}
	room := s.applyMode(mode)
	if err := s.deps.Gateway.SaveMode(ctx, room, mode); err != nil {
		return fmt.Errorf("console: set mode: %w", err)
	}
	s.broadcast(crosstab.KindModeChange, s.sync.BroadcastMode(mode))
	return nil
}

func (s *Session) applyMode(mode chat.Mode) string {
	s.mu.Lock()
	s.state.ActiveMode = mode
	room := s.state.RoomID
	s.mu.Unlock()
	s.emit(Event{Kind: EventMode, Mode: mode})
	return room
}

// SetDomain selects a catalog domain, or clears it when domain is empty.
// The discipline and toolkits belong to a domain and are cleared with it.
func (s *Session) SetDomain(ctx context.Context, domain string) error {
	if domain != "" {
		d, ok := chat.LookupDomain(domain)
		if !ok {
			return invalid(fmt.Errorf("unknown domain %q", domain))
		}
		domain = d.Name
	}
	return s.updateContext(ctx, func(st *chat.RoomState) error {
		if st.ActiveDomain == domain {
			return nil
		}
		st.ActiveDomain = domain
		st.ActiveSubDomain = ""
		st.ActiveTools = map[string]bool{}
		return nil
	})
}

// SetSubDomain selects a discipline of the active domain. Selecting the
// active discipline again, or passing "", clears it.
func (s *Session) SetSubDomain(ctx context.Context, sub string) error {
	return s.updateContext(ctx, func(st *chat.RoomState) error {
		if err := chat.ValidateSelection(st.ActiveDomain, sub, ""); err != nil {
			return invalid(err)
		}
		if sub == "" || strings.EqualFold(sub, st.ActiveSubDomain) {
			st.ActiveSubDomain = ""
			return nil
		}
		d, _ := chat.LookupDomain(st.ActiveDomain)
		st.ActiveSubDomain = canonical(d.SubDomains, sub)
		return nil
	})
}

// ToggleTool switches a toolkit of the active domain on or off.
func (s *Session) ToggleTool(ctx context.Context, tool string) error {
	if tool == "" {
		return invalid(errors.New("tool name is required"))
	}
	return s.updateContext(ctx, func(st *chat.RoomState) error {
		if err := chat.ValidateSelection(st.ActiveDomain, "", tool); err != nil {
			return invalid(err)
		}
		d, _ := chat.LookupDomain(st.ActiveDomain)
		names := make([]string, len(d.Tools))
		for i, t := range d.Tools {
			names[i] = t.Name
		}
		st.ToggleTool(canonical(names, tool))
		return nil
	})
}

func (s *Session) updateContext(ctx context.Context, fn func(*chat.RoomState) error) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	next := cloneState(s.state)
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.mu.Unlock()

	if err := s.deps.Gateway.SaveContext(ctx, next); err != nil {
		return fmt.Errorf("console: save context: %w", err)
	}
	s.emit(Event{Kind: EventContext, State: &next})
	return nil
}

// SetFeedback attaches a rating to a message, records it in the audit log
// and shares the updated message with the other tabs.
func (s *Session) SetFeedback(ctx context.Context, id string, fb chat.Feedback) (chat.Message, error) {
	if err := fb.Validate(); err != nil {
		return chat.Message{}, invalid(err)
	}
	if s.isClosed() {
		return chat.Message{}, ErrClosed
	}
	msg, ok := s.store.Update(id, func(m *chat.Message) { m.Feedback = &fb })
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	room := s.Room()
	entry := persist.FeedbackEntry{
		User:      s.username,
		RoomID:    room,
		MessageID: id,
		Feedback:  fb,
		Timestamp: time.Now(),
	}
	if err := s.deps.Gateway.AppendFeedback(ctx, entry); err != nil {
		log.Printf("console: %s: feedback log: %v", s.id, err)
	}
	s.broadcast(crosstab.KindUpdateMessage, s.sync.BroadcastUpdate(msg))
	s.persist(ctx, room)
	return msg, nil
}

// SwitchRoom leaves the current room and restores roomID in its place.
func (s *Session) SwitchRoom(ctx context.Context, roomID string) error {
	if err := chat.ValidateRoomID(roomID); err != nil {
		return invalid(err)
	}
	if s.isClosed() {
		return ErrClosed
	}
	if !s.sending.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.sending.Store(false)

	old := s.Room()
	if old == roomID {
		return nil
	}
	if err := s.deps.Gateway.RemovePresence(ctx, old, s.username); err != nil {
		log.Printf("console: %s: presence: %v", s.id, err)
	}
	log.Printf("console: %s: %s -> %s", s.id, old, roomID)
	return s.enter(ctx, roomID)
}

// Touch refreshes the user's presence in the current room.
func (s *Session) Touch(ctx context.Context) error {
	return s.deps.Gateway.TouchPresence(ctx, s.Room(), s.username)
}

// Close leaves the room channel and closes Events. It is safe to call more
// than once.
func (s *Session) Close() {
	s.evMu.Lock()
	if s.closed {
		s.evMu.Unlock()
		return
	}
	s.closed = true
	s.evMu.Unlock()

	s.sync.Leave()
	s.unsub()

	s.evMu.Lock()
	close(s.events)
	s.evMu.Unlock()
	s.deps.Metrics.SessionClosed()
	log.Printf("console: %s: closed", s.id)
}

// Logout removes the user from the room's presence, forgets the saved
// identity and closes the session.
func (s *Session) Logout(ctx context.Context) error {
	var errs []error
	if err := s.deps.Gateway.RemovePresence(ctx, s.Room(), s.username); err != nil {
		errs = append(errs, err)
	}
	if err := s.deps.Gateway.ClearIdentity(ctx); err != nil {
		errs = append(errs, err)
	}
	s.Close()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("console: logout: %w", err)
	}
	return nil
}

func (s *Session) onChange(c transcript.Change) {
	ev := Event{Len: c.Len}
	switch c.Kind {
	case transcript.ChangeAppend:
		ev.Kind = EventAppend
	case transcript.ChangeReplace:
		ev.Kind = EventReplace
	case transcript.ChangeReset:
		ev.Kind = EventReset
	}
	if c.Kind != transcript.ChangeReset {
		m := c.Message
		ev.Message = &m
	}
	s.emit(ev)
}

func (s *Session) onRemoteMode(mode chat.Mode) {
	s.deps.Metrics.Envelope(string(crosstab.KindModeChange), "applied")
	s.applyMode(mode)
}

// onRemoteApplied persists the transcript after another tab settled a
// message, so the last tab to see a settled state writes it. Snapshots of a
// message that is still streaming are only rendered.
func (s *Session) onRemoteApplied(ev crosstab.Event) {
	s.deps.Metrics.Envelope(string(ev.Kind), "applied")
	if ev.Message.Streaming {
		return
	}
	s.persist(context.Background(), s.Room())
}

func (s *Session) notifyPresence(entries []persist.PresenceEntry) {
	s.emit(Event{Kind: EventPresence, Presence: entries})
}

func (s *Session) broadcast(kind crosstab.Kind, err error) {
	if err != nil {
		log.Printf("console: %s: broadcast %s: %v", s.id, kind, err)
		return
	}
	s.deps.Metrics.Envelope(string(kind), "sent")
}

// emit never blocks: a full buffer drops the event.
func (s *Session) emit(ev Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		log.Printf("console: %s: event buffer full, dropping %s", s.id, ev.Kind)
	}
}

func (s *Session) isClosed() bool {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	return s.closed
}

func cloneState(st chat.RoomState) chat.RoomState {
	out := st
	out.ActiveTools = make(map[string]bool, len(st.ActiveTools))
	for k, v := range st.ActiveTools {
		out.ActiveTools[k] = v
	}
	return out
}

func canonical(names []string, s string) string {
	for _, n := range names {
		if strings.EqualFold(n, s) {
			return n
		}
	}
	return s
}
