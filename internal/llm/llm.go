// Package llm is the client side of the hosted model capability: submit a
// conversation and read back a lazy sequence of response fragments.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// DefaultModel is the model used when configuration does not name one.
const DefaultModel = "gemini-3-pro-preview"

// DefaultThinkingBudget is the maximum thinking budget for DefaultModel.
const DefaultThinkingBudget = 32768

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("llm: api key not configured")

// Citation is a grounding reference attached to a fragment. Title may be empty.
type Citation struct {
	URI   string
	Title string
}

// Fragment is one incremental unit of a streamed response.
type Fragment struct {
	Text      string
	Thinking  string
	Citations []Citation
}

// Turn is one prior exchange in the conversation history. Role is "user" or
// "model".
type Turn struct {
	Role string
	Text string
}

// InlineData is a base64 payload sent as part of the current message.
type InlineData struct {
	MIMEType string
	Data     string
}

// Part is either text or inline data.
type Part struct {
	Text       string
	InlineData *InlineData
}

// Request is the full input of one model call.
type Request struct {
	SystemInstruction string
	History           []Turn
	Parts             []Part
	// Search enables the web-search grounding tool.
	Search bool
}

// Stream is a single-pass, finite sequence of fragments. Next returns io.EOF
// once the sequence is exhausted; any other error terminates the stream.
type Stream interface {
	Next(ctx context.Context) (Fragment, error)
	Close() error
}

// Model starts streamed generations.
type Model interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// APIError is a non-success response from the model endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: api error %d: %s", e.StatusCode, e.Message)
}

// ErrMalformedFragment wraps fragments that could not be decoded.
var ErrMalformedFragment = errors.New("llm: malformed fragment")

// Unavailable is the Model used when no API key is configured. Every stream
// fails with ErrNotConfigured.
type Unavailable struct{}

// Stream implements Model.
func (Unavailable) Stream(context.Context, Request) (Stream, error) {
	return nil, ErrNotConfigured
}
