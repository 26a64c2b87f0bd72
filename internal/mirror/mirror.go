// Package mirror copies settled console messages to team chat platforms.
// Mirroring is one-way and best effort: a failed post is logged and never
// touches the transcript.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
)

// maxContentLen keeps posts under the smallest platform limit (Discord).
const maxContentLen = 1900

// Post is one settled message to mirror.
type Post struct {
	RoomID  string
	Sender  string
	Role    chat.Role
	Content string
	Sources []chat.Source
	Failed  bool
}

// PostFromMessage builds a Post for msg in room.
func PostFromMessage(room string, msg chat.Message) Post {
	return Post{
		RoomID:  room,
		Sender:  msg.Sender,
		Role:    msg.Role,
		Content: msg.Content,
		Sources: msg.Sources,
	}
}

// Title is the headline shown above the content.
func (p Post) Title() string {
	return fmt.Sprintf("[%s] %s", p.RoomID, p.Role.Label(p.Sender))
}

// Body is the content truncated to the platform limit.
func (p Post) Body() string {
	if len(p.Content) <= maxContentLen {
		return p.Content
	}
	return p.Content[:maxContentLen] + "…"
}

// Color is the sidebar color hint.
func (p Post) Color() string {
	switch {
	case p.Failed:
		return "#e53935"
	case p.Role == chat.RoleAssistant:
		return "#2196f3"
	}
	return "#36a64f"
}

// SourceLines renders one "title: uri" line per source.
func (p Post) SourceLines() string {
	lines := make([]string, 0, len(p.Sources))
	for _, s := range p.Sources {
		lines = append(lines, fmt.Sprintf("%s: %s", s.Title, s.URI))
	}
	return strings.Join(lines, "\n")
}

// Notifier delivers posts to one destination.
type Notifier interface {
	Notify(ctx context.Context, p Post) error
}

// Multi fans a post out to every notifier and joins their errors.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, p Post) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every post.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Post) error { return nil }

// Best calls n and logs a failure instead of returning it.
func Best(ctx context.Context, n Notifier, p Post) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, p); err != nil {
		log.Printf("mirror: %s: %v", p.RoomID, err)
	}
}

// Mock records posts.
type Mock struct {
	mu    sync.Mutex
	posts []Post
	Err   error
}

// Notify implements Notifier.
func (m *Mock) Notify(_ context.Context, p Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, p)
	return m.Err
}

// Posts returns a copy of recorded posts.
func (m *Mock) Posts() []Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Post(nil), m.posts...)
}
