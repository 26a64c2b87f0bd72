package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEReader_ReadEvent(t *testing.T) {
	input := "event: message\ndata: {\"a\":1}\n\n: comment\ndata: line1\ndata: line2\n\ndata: tail"
	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	if err != nil || typ != "message" || string(data) != `{"a":1}` {
		t.Fatalf("event 1 = %q %q %v", typ, data, err)
	}
	_, data, err = r.ReadEvent()
	if err != nil || string(data) != "line1\nline2" {
		t.Fatalf("event 2 = %q %v", data, err)
	}
	_, data, err = r.ReadEvent()
	if err != nil || string(data) != "tail" {
		t.Fatalf("event 3 = %q %v", data, err)
	}
	if _, _, err := r.ReadEvent(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecodeFragment(t *testing.T) {
	data := `{"candidates":[{"content":{"parts":[{"text":"plan","thought":true},{"text":"Hel"},{"text":"lo"}]},
		"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://a.dev","title":"A"}},{"web":{"uri":""}},{}]}}]}`
	f, err := decodeFragment([]byte(data))
	if err != nil {
		t.Fatalf("decodeFragment: %v", err)
	}
	if f.Text != "Hello" || f.Thinking != "plan" {
		t.Errorf("fragment = %+v", f)
	}
	if len(f.Citations) != 1 || f.Citations[0].URI != "https://a.dev" {
		t.Errorf("citations = %+v", f.Citations)
	}

	if _, err := decodeFragment([]byte("{not json")); !errors.Is(err, ErrMalformedFragment) {
		t.Errorf("malformed fragment err = %v", err)
	}
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	if _, err := NewGeminiClient(GeminiConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	c, err := NewGeminiClient(GeminiConfig{APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Model() != DefaultModel {
		t.Errorf("Model() = %q", c.Model())
	}
}

func TestGeminiClient_Stream(t *testing.T) {
	var got wireRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/test-model:streamGenerateContent") || r.URL.Query().Get("alt") != "sse" {
			t.Errorf("unexpected url %s", r.URL)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hi \"}]}}]}\n\n")
		io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"there\"}]}}]}\n\n")
	}))
	defer srv.Close()

	c, err := NewGeminiClient(GeminiConfig{APIKey: "secret", Model: "test-model", Endpoint: srv.URL, ThinkingBudget: 1024})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s, err := c.Stream(ctx, Request{
		SystemInstruction: "sys",
		History:           []Turn{{Role: "user", Text: "q"}, {Role: "model", Text: "a"}},
		Parts:             []Part{{Text: "now"}, {InlineData: &InlineData{MIMEType: "text/plain", Data: "aGk="}}},
		Search:            true,
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	var text strings.Builder
	for {
		f, err := s.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		text.WriteString(f.Text)
	}
	if text.String() != "Hi there" {
		t.Errorf("text = %q", text.String())
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("systemInstruction = %+v", got.SystemInstruction)
	}
	if len(got.Contents) != 3 || got.Contents[1].Role != "model" || len(got.Contents[2].Parts) != 2 {
		t.Errorf("contents = %+v", got.Contents)
	}
	if len(got.Tools) != 1 || got.Tools[0].GoogleSearch == nil {
		t.Errorf("tools = %+v", got.Tools)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ThinkingConfig.ThinkingBudget != 1024 {
		t.Errorf("generationConfig = %+v", got.GenerationConfig)
	}
}

func TestGeminiClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":429,"message":"quota exceeded"}}`)
	}))
	defer srv.Close()

	c, _ := NewGeminiClient(GeminiConfig{APIKey: "k", Endpoint: srv.URL})
	_, err := c.Stream(context.Background(), Request{Parts: []Part{{Text: "x"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "quota exceeded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestSSEStream_NextHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := newSSEStream(pr)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestScriptedStream(t *testing.T) {
	boom := errors.New("boom")
	m := &MockModel{Fragments: []Fragment{{Text: "a"}}, Err: boom}
	s, err := m.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if f, err := s.Next(context.Background()); err != nil || f.Text != "a" {
		t.Fatalf("first = %+v %v", f, err)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("terminal err = %v", err)
	}
	if len(m.Calls()) != 1 {
		t.Errorf("Calls = %d", len(m.Calls()))
	}
}
