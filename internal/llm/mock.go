package llm

import (
	"context"
	"io"
	"sync"
	"time"
)

// MockModel returns scripted streams and records every request.
type MockModel struct {
	mu       sync.Mutex
	Requests []Request
	// Fragments are delivered in order by every stream.
	Fragments []Fragment
	// StreamErr, when set, is returned by Stream itself.
	StreamErr error
	// Err, when set, is returned by Next after all fragments.
	Err error
	// Delay is slept before each fragment.
	Delay time.Duration
}

// Stream records req and returns a ScriptedStream over m.Fragments.
func (m *MockModel) Stream(ctx context.Context, req Request) (Stream, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	return &ScriptedStream{Fragments: m.Fragments, Err: m.Err, Delay: m.Delay}, nil
}

// Calls returns a copy of the recorded requests.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.Requests...)
}

// ScriptedStream yields Fragments, then Err or io.EOF.
type ScriptedStream struct {
	Fragments []Fragment
	Err       error
	Delay     time.Duration

	pos    int
	closed bool
}

// Next returns the next scripted fragment.
func (s *ScriptedStream) Next(ctx context.Context) (Fragment, error) {
	if s.closed {
		return Fragment{}, io.EOF
	}
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Fragment{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return Fragment{}, err
	}
	if s.pos < len(s.Fragments) {
		f := s.Fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.Err != nil {
		return Fragment{}, s.Err
	}
	return Fragment{}, io.EOF
}

// Close marks the stream exhausted.
func (s *ScriptedStream) Close() error {
	s.closed = true
	return nil
}
