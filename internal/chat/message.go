// Package chat defines the console's data model: messages, sources,
// attachments and per-room session state.
package chat

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WelcomeID is the deterministic id of the synthesized welcome message.
const WelcomeID = "welcome"

// FallbackSourceTitle is used when a citation has no title and its uri
// cannot be parsed.
const FallbackSourceTitle = "Technical Document"

// Role identifies who authored a message. Only RoleUser and RoleAssistant
// exist; ParseRole rejects everything else.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole converts a wire string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	}
	return "", fmt.Errorf("chat: invalid role %q", s)
}

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Label returns the display label used when rendering a message.
func (r Role) Label(sender string) string {
	switch r {
	case RoleUser:
		if sender == "" {
			return "Operator: Unknown"
		}
		return "Operator: " + sender
	case RoleAssistant:
		return "OmniExpert"
	}
	return string(r)
}

// HistoryRole is the role name the model API expects for this author.
func (r Role) HistoryRole() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "model"
	}
	return string(r)
}

// Intent records whether a message was a plain chat turn or a search.
type Intent string

const (
	IntentChat   Intent = "chat"
	IntentSearch Intent = "search"
)

// ParseIntent converts a wire string into an Intent. Empty means chat.
func ParseIntent(s string) (Intent, error) {
	switch strings.ToLower(s) {
	case "", string(IntentChat):
		return IntentChat, nil
	case string(IntentSearch):
		return IntentSearch, nil
	}
	return "", fmt.Errorf("chat: invalid intent %q", s)
}

// Source is a grounding citation attached to an assistant message.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// SourceTitle picks the display title for a citation: the given title, else
// the uri's hostname without a leading "www.", else FallbackSourceTitle.
func SourceTitle(uri, title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	u, err := url.Parse(uri)
	if err != nil || u.Hostname() == "" {
		return FallbackSourceTitle
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// FeedbackType is a thumbs-up or thumbs-down rating.
type FeedbackType string

const (
	FeedbackUp   FeedbackType = "up"
	FeedbackDown FeedbackType = "down"
)

// Feedback is a user's rating of an assistant message.
type Feedback struct {
	Type    FeedbackType `json:"type"`
	Comment string       `json:"comment,omitempty"`
}

// Validate checks the rating type.
func (f Feedback) Validate() error {
	if f.Type != FeedbackUp && f.Type != FeedbackDown {
		return fmt.Errorf("chat: invalid feedback type %q", f.Type)
	}
	return nil
}

// Attachment is a user-supplied file sent alongside a prompt. Data holds the
// base64-encoded payload.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
	Size     int64  `json:"size"`
}

// NewAttachment encodes raw file bytes into an Attachment.
func NewAttachment(name, mimeType string, raw []byte) Attachment {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Attachment{
		Name:     name,
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(raw),
		Size:     int64(len(raw)),
	}
}

// Message is one entry of a transcript. Content of an assistant message is
// append-only while Streaming is set. The aggregator clears Streaming on the
// final snapshot of a stream, and only then is the message settled.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Sender      string       `json:"sender,omitempty"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Intent      Intent       `json:"intent"`
	Thinking    string       `json:"thinking,omitempty"`
	Sources     []Source     `json:"sources,omitempty"`
	Feedback    *Feedback    `json:"feedback,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Streaming   bool         `json:"streaming,omitempty"`
}

// NewID returns a fresh message id.
func NewID() string {
	return uuid.NewString()
}

// NewUserMessage creates a user message authored by sender.
func NewUserMessage(sender, content string, intent Intent, attachments []Attachment) Message {
	return Message{
		ID:          NewID(),
		Role:        RoleUser,
		Sender:      sender,
		Content:     content,
		Timestamp:   time.Now(),
		Intent:      intent,
		Attachments: attachments,
	}
}

// NewAssistantMessage creates the empty placeholder an aggregator streams into.
func NewAssistantMessage(intent Intent) Message {
	return Message{
		ID:        NewID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		Intent:    intent,
		Streaming: true,
	}
}

// WelcomeMessage is shown in rooms that have no stored history.
func WelcomeMessage(username string) Message {
	return Message{
		ID:   WelcomeID,
		Role: RoleAssistant,
		Content: fmt.Sprintf("### OmniExpert Prototype Console v3.2\n\n"+
			"Welcome, **%s**. I am operating in **Advanced Prototype Mode**.\n\n"+
			"I can generate full technical specs, architectures, runnable code patches, "+
			"and verification tests across all domains.\n\n"+
			"**Ready to prototype. What are we building today?**", username),
		Timestamp: time.Now(),
		Intent:    IntentChat,
	}
}

// Validate checks the fields a remote payload must carry before it may touch
// a transcript.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("chat: message id is required")
	}
	if !m.Role.Valid() {
		return fmt.Errorf("chat: invalid role %q", m.Role)
	}
	if m.Intent != "" {
		if _, err := ParseIntent(string(m.Intent)); err != nil {
			return err
		}
	}
	if m.Feedback != nil {
		if err := m.Feedback.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a copy that shares no slices or pointers with m.
func (m Message) Clone() Message {
	c := m
	if m.Sources != nil {
		c.Sources = append([]Source(nil), m.Sources...)
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Feedback != nil {
		fb := *m.Feedback
		c.Feedback = &fb
	}
	return c
}
