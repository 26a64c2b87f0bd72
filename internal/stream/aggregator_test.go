package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/transcript"
)

type recorder struct {
	snaps   []chat.Message
	kinds   []transcript.ChangeKind
	settled []Result
}

func newAggregator(store *transcript.Store, rec *recorder) *Aggregator {
	return &Aggregator{
		Store:           store,
		FragmentTimeout: time.Second,
		OnSnapshot: func(m chat.Message, k transcript.ChangeKind) {
			rec.snaps = append(rec.snaps, m)
			rec.kinds = append(rec.kinds, k)
		},
		OnSettle: func(r Result) { rec.settled = append(rec.settled, r) },
	}
}

func TestRun_AccumulatesOneSnapshotPerFragment(t *testing.T) {
	store := transcript.New()
	rec := &recorder{}
	model := &llm.MockModel{Fragments: []llm.Fragment{{Text: "Hel"}, {Text: "lo "}, {Text: "world"}}}

	res := newAggregator(store, rec).Run(context.Background(), model, llm.Request{}, chat.IntentChat)

	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if len(rec.snaps) != 5 {
		t.Fatalf("snapshots = %d, want 5 (placeholder + 3 + settle)", len(rec.snaps))
	}
	if rec.kinds[0] != transcript.ChangeAppend || rec.snaps[0].Content != "" {
		t.Errorf("first snapshot should be the empty placeholder: %+v", rec.snaps[0])
	}
	wantLens := []int{3, 6, 11}
	for i, want := range wantLens {
		if got := len(rec.snaps[i+1].Content); got != want {
			t.Errorf("snapshot %d content length = %d, want %d", i+1, got, want)
		}
	}
	got, ok := store.Get(res.MessageID)
	if !ok || got.Content != "Hello world" || got.Role != chat.RoleAssistant {
		t.Errorf("stored message = %+v", got)
	}
	if len(rec.settled) != 1 || res.Fragments != 3 {
		t.Errorf("settled = %d, fragments = %d", len(rec.settled), res.Fragments)
	}
}

func TestRun_OnlySettleSnapshotIsNotStreaming(t *testing.T) {
	tests := []struct {
		name  string
		model *llm.MockModel
	}{
		{"success", &llm.MockModel{Fragments: []llm.Fragment{{Text: "a"}, {Text: "b"}}}},
		{"failure", &llm.MockModel{Fragments: []llm.Fragment{{Text: "a"}}, Err: errors.New("reset")}},
		{"no fragments", &llm.MockModel{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := transcript.New()
			rec := &recorder{}
			res := newAggregator(store, rec).Run(context.Background(), tt.model, llm.Request{}, chat.IntentChat)

			last := len(rec.snaps) - 1
			for i, snap := range rec.snaps[:last] {
				if !snap.Streaming {
					t.Errorf("snapshot %d is not streaming", i)
				}
			}
			if rec.snaps[last].Streaming || res.Message.Streaming {
				t.Error("settle snapshot still streaming")
			}
			if got, _ := store.Get(res.MessageID); got.Streaming {
				t.Error("stored message still streaming")
			}
		})
	}
}

func TestRun_KeepsFieldsSetWhileStreaming(t *testing.T) {
	store := transcript.New()
	agg := &Aggregator{
		Store:           store,
		FragmentTimeout: time.Second,
		OnSnapshot: func(m chat.Message, k transcript.ChangeKind) {
			if m.Content == "first" {
				store.Update(m.ID, func(m *chat.Message) {
					m.Feedback = &chat.Feedback{Type: chat.FeedbackUp}
				})
			}
		},
	}
	model := &llm.MockModel{Fragments: []llm.Fragment{{Text: "first"}, {Text: " second"}}}

	res := agg.Run(context.Background(), model, llm.Request{}, chat.IntentChat)

	got, _ := store.Get(res.MessageID)
	if got.Feedback == nil || got.Feedback.Type != chat.FeedbackUp {
		t.Errorf("feedback lost: %+v", got.Feedback)
	}
	if got.Content != "first second" {
		t.Errorf("Content = %q", got.Content)
	}
	if res.Message.Feedback == nil {
		t.Error("result should carry the stored feedback")
	}
}

func TestRun_EmptyFragmentStillSnapshots(t *testing.T) {
	store := transcript.New()
	rec := &recorder{}
	model := &llm.MockModel{Fragments: []llm.Fragment{{Text: "a"}, {}, {Text: "b"}}}

	newAggregator(store, rec).Run(context.Background(), model, llm.Request{}, chat.IntentChat)

	if len(rec.snaps) != 5 {
		t.Fatalf("snapshots = %d, want 5", len(rec.snaps))
	}
	if rec.snaps[2].Content != "a" {
		t.Errorf("empty fragment changed content: %q", rec.snaps[2].Content)
	}
}

func TestRun_DeduplicatesCitations(t *testing.T) {
	store := transcript.New()
	rec := &recorder{}
	model := &llm.MockModel{Fragments: []llm.Fragment{
		{Text: "x", Citations: []llm.Citation{{URI: "https://a.dev/1", Title: ""}, {URI: "https://b.dev", Title: "B"}}},
		{Text: "y", Citations: []llm.Citation{{URI: "https://a.dev/1", Title: "A"}, {URI: "https://b.dev", Title: "B2"}}},
		{Text: "z", Citations: []llm.Citation{{URI: "https://a.dev/1", Title: "A2"}}},
	}}

	res := newAggregator(store, rec).Run(context.Background(), model, llm.Request{}, chat.IntentSearch)

	src := res.Message.Sources
	if len(src) != 2 {
		t.Fatalf("sources = %+v, want 2 entries", src)
	}
	if src[0].URI != "https://a.dev/1" || src[0].Title != "A" {
		t.Errorf("sources[0] = %+v, want first non-empty title A", src[0])
	}
	if src[1].Title != "B" {
		t.Errorf("sources[1] = %+v, want B", src[1])
	}
	// After the first fragment, the untitled citation falls back to its host.
	if got := rec.snaps[1].Sources[0].Title; got != "a.dev" {
		t.Errorf("fallback title = %q, want a.dev", got)
	}
	if res.Message.Intent != chat.IntentSearch {
		t.Errorf("Intent = %q", res.Message.Intent)
	}
}

func TestRun_ZeroFragmentsSettles(t *testing.T) {
	store := transcript.New()
	rec := &recorder{}

	res := newAggregator(store, rec).Run(context.Background(), &llm.MockModel{}, llm.Request{}, chat.IntentChat)

	if res.Err != nil || len(rec.settled) != 1 {
		t.Fatalf("res = %+v, settled = %d", res, len(rec.settled))
	}
	got, ok := store.Get(res.MessageID)
	if !ok || got.Content != "" {
		t.Errorf("stored = %+v, want empty assistant message", got)
	}
}

func TestRun_ErrorSubstitution(t *testing.T) {
	tests := []struct {
		name  string
		model *llm.MockModel
	}{
		{"start failure", &llm.MockModel{StreamErr: errors.New("dial failed")}},
		{"mid-stream failure", &llm.MockModel{Fragments: []llm.Fragment{{Text: "partial"}}, Err: errors.New("reset")}},
		{"malformed fragment", &llm.MockModel{Err: llm.ErrMalformedFragment}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := transcript.New()
			rec := &recorder{}
			res := newAggregator(store, rec).Run(context.Background(), tt.model, llm.Request{}, chat.IntentChat)

			if !res.Failed() {
				t.Fatalf("expected failure, got %+v", res)
			}
			got, _ := store.Get(res.MessageID)
			if got.Content != ErrorContent {
				t.Errorf("Content = %q, want error content", got.Content)
			}
			if last := rec.snaps[len(rec.snaps)-1]; last.Content != ErrorContent {
				t.Errorf("last snapshot = %q", last.Content)
			}
			if len(rec.settled) != 1 {
				t.Errorf("settled %d times", len(rec.settled))
			}
		})
	}
}

func TestRun_FragmentTimeoutIsFailure(t *testing.T) {
	store := transcript.New()
	rec := &recorder{}
	agg := newAggregator(store, rec)
	agg.FragmentTimeout = 10 * time.Millisecond
	model := &llm.MockModel{Fragments: []llm.Fragment{{Text: "slow"}}, Delay: time.Second}

	res := agg.Run(context.Background(), model, llm.Request{}, chat.IntentChat)

	if !errors.Is(res.Err, ErrFragmentTimeout) {
		t.Fatalf("Err = %v, want ErrFragmentTimeout", res.Err)
	}
	if res.Message.Content != ErrorContent {
		t.Errorf("Content = %q", res.Message.Content)
	}
}

func TestRun_CancellationKeepsPartialContent(t *testing.T) {
	store := transcript.New()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	agg := newAggregator(store, rec)
	agg.OnSnapshot = func(m chat.Message, k transcript.ChangeKind) {
		if m.Content == "first" {
			cancel()
		}
	}
	model := &llm.MockModel{Fragments: []llm.Fragment{{Text: "first"}, {Text: " second"}}}

	res := agg.Run(ctx, model, llm.Request{}, chat.IntentChat)

	if !res.Cancelled || res.Failed() {
		t.Fatalf("res = %+v, want cancelled", res)
	}
	if res.Message.Content != "first" {
		t.Errorf("Content = %q, want partial content kept", res.Message.Content)
	}
	if len(rec.settled) != 1 {
		t.Errorf("settled %d times", len(rec.settled))
	}
}
