// Package stream folds a model's fragment sequence into one assistant
// message of a transcript.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/transcript"
)

// ErrorContent replaces the whole content of a message whose stream failed.
const ErrorContent = "ERROR: Prototype node disconnected. Response sequence terminated."

// DefaultFragmentTimeout bounds the wait for any single fragment.
const DefaultFragmentTimeout = 60 * time.Second

// ErrFragmentTimeout is reported when no fragment arrived within the
// per-fragment bound.
var ErrFragmentTimeout = errors.New("stream: fragment timeout")

// Result describes how one aggregation ended.
type Result struct {
	MessageID string
	Message   chat.Message
	Fragments int
	// Err is non-nil when the stream failed or was cancelled.
	Err       error
	Cancelled bool
	Duration  time.Duration
}

// Failed reports whether the content was replaced by ErrorContent.
func (r Result) Failed() bool { return r.Err != nil && !r.Cancelled }

// Aggregator drives one assistant message from placeholder to settled state.
// Fragments are applied strictly in arrival order and every applied fragment
// produces exactly one snapshot. One last snapshot clears Streaming, carrying
// the error content when the stream failed.
type Aggregator struct {
	Store           *transcript.Store
	FragmentTimeout time.Duration

	// OnSnapshot is called after each store write with the committed message.
	// kind is ChangeAppend for the placeholder and ChangeReplace afterwards.
	// The settling snapshot is the only one with Streaming unset.
	OnSnapshot func(msg chat.Message, kind transcript.ChangeKind)
	// OnSettle is called exactly once when the message reaches its final state.
	OnSettle func(Result)
}

// citations keeps citations keyed by uri in first-seen order. The first
// non-empty title for a uri wins.
type citations struct {
	order  []string
	titles map[string]string
}

func (c *citations) add(list []llm.Citation) {
	if c.titles == nil {
		c.titles = make(map[string]string)
	}
	for _, cit := range list {
		if cit.URI == "" {
			continue
		}
		title, seen := c.titles[cit.URI]
		if !seen {
			c.order = append(c.order, cit.URI)
			c.titles[cit.URI] = strings.TrimSpace(cit.Title)
			continue
		}
		if title == "" {
			c.titles[cit.URI] = strings.TrimSpace(cit.Title)
		}
	}
}

func (c *citations) sources() []chat.Source {
	if len(c.order) == 0 {
		return nil
	}
	out := make([]chat.Source, 0, len(c.order))
	for _, uri := range c.order {
		out = append(out, chat.Source{URI: uri, Title: chat.SourceTitle(uri, c.titles[uri])})
	}
	return out
}

// Run appends a placeholder assistant message with the given intent, streams
// req from model into it and settles it. It always settles, including on
// failure and on cancellation of ctx.
func (a *Aggregator) Run(ctx context.Context, model llm.Model, req llm.Request, intent chat.Intent) Result {
	start := time.Now()
	msg := chat.NewAssistantMessage(intent)
	a.Store.Append(msg)
	a.snapshot(msg, transcript.ChangeAppend)

	res := Result{MessageID: msg.ID}
	var (
		content  strings.Builder
		thinking strings.Builder
		cites    citations
	)

	err := a.consume(ctx, model, req, func(f llm.Fragment) {
		res.Fragments++
		content.WriteString(f.Text)
		thinking.WriteString(f.Thinking)
		cites.add(f.Citations)
		msg = a.commit(msg, func(m *chat.Message) {
			m.Content = content.String()
			m.Thinking = thinking.String()
			m.Sources = cites.sources()
		})
		a.snapshot(msg, transcript.ChangeReplace)
	})

	failed := false
	switch {
	case err == nil:
	case ctx.Err() != nil:
		res.Err = err
		res.Cancelled = true
		log.Printf("stream: %s: cancelled after %d fragments", msg.ID, res.Fragments)
	default:
		res.Err = err
		failed = true
		log.Printf("stream: %s: %v", msg.ID, err)
	}

	msg = a.commit(msg, func(m *chat.Message) {
		m.Streaming = false
		if failed {
			m.Content = ErrorContent
		}
	})
	a.snapshot(msg, transcript.ChangeReplace)

	res.Message = msg.Clone()
	res.Duration = time.Since(start)
	if a.OnSettle != nil {
		a.OnSettle(res)
	}
	return res
}

func (a *Aggregator) consume(ctx context.Context, model llm.Model, req llm.Request, apply func(llm.Fragment)) error {
	s, err := model.Stream(ctx, req)
	if err != nil {
		return fmt.Errorf("stream: start: %w", err)
	}
	defer s.Close()

	timeout := a.FragmentTimeout
	if timeout <= 0 {
		timeout = DefaultFragmentTimeout
	}
	for {
		f, err := a.next(ctx, s, timeout)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		apply(f)
	}
}

func (a *Aggregator) next(ctx context.Context, s llm.Stream, timeout time.Duration) (llm.Fragment, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	f, err := s.Next(fctx)
	if err != nil && err != io.EOF && ctx.Err() == nil && fctx.Err() == context.DeadlineExceeded {
		return f, ErrFragmentTimeout
	}
	return f, err
}

// commit applies fn to the stored message so that fields the aggregator does
// not own, such as feedback, survive. A message that left the store is
// updated locally.
func (a *Aggregator) commit(msg chat.Message, fn func(*chat.Message)) chat.Message {
	if stored, ok := a.Store.Update(msg.ID, fn); ok {
		return stored
	}
	fn(&msg)
	return msg
}

func (a *Aggregator) snapshot(msg chat.Message, kind transcript.ChangeKind) {
	if a.OnSnapshot != nil {
		a.OnSnapshot(msg.Clone(), kind)
	}
}
