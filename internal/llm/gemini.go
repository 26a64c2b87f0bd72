package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the base URL of the Generative Language API.
const DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// maxErrorBody bounds how much of a failed response is read into an APIError.
const maxErrorBody = 64 * 1024

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey         string
	Model          string
	Endpoint       string
	ThinkingBudget int
	HTTPClient     *http.Client
}

// GeminiClient streams generations from the Gemini API over SSE.
type GeminiClient struct {
	apiKey   string
	model    string
	endpoint string
	budget   int
	http     *http.Client
}

// NewGeminiClient validates cfg and returns a client. A missing model or
// endpoint falls back to the defaults.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	c := &GeminiClient{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		budget:   cfg.ThinkingBudget,
		http:     cfg.HTTPClient,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.http == nil {
		// No client timeout: streams are bounded by the caller's context.
		c.http = &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}}
	}
	return c, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	Thought    bool            `json:"thought,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireThinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget,omitempty"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

type wireGenerationConfig struct {
	ThinkingConfig *wireThinkingConfig `json:"thinkingConfig,omitempty"`
}

type wireTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

type wireRequest struct {
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	Contents          []wireContent         `json:"contents"`
	Tools             []wireTool            `json:"tools,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireResponse struct {
	Candidates []struct {
		Content           wireContent `json:"content"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GeminiClient) buildRequest(req Request) wireRequest {
	w := wireRequest{}
	if req.SystemInstruction != "" {
		w.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.SystemInstruction}}}
	}
	for _, t := range req.History {
		w.Contents = append(w.Contents, wireContent{Role: t.Role, Parts: []wirePart{{Text: t.Text}}})
	}
	cur := wireContent{Role: "user"}
	for _, p := range req.Parts {
		wp := wirePart{Text: p.Text}
		if p.InlineData != nil {
			wp = wirePart{InlineData: &wireInlineData{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}}
		}
		cur.Parts = append(cur.Parts, wp)
	}
	w.Contents = append(w.Contents, cur)
	if req.Search {
		w.Tools = []wireTool{{GoogleSearch: &struct{}{}}}
	}
	if c.budget > 0 {
		w.GenerationConfig = &wireGenerationConfig{ThinkingConfig: &wireThinkingConfig{
			ThinkingBudget:  c.budget,
			IncludeThoughts: true,
		}}
	}
	return w
}

// Stream starts a streamed generation. The returned Stream owns the response
// body and must be closed.
func (c *GeminiClient) Stream(ctx context.Context, req Request) (Stream, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.endpoint, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseAPIError(resp)
	}
	return newSSEStream(resp.Body), nil
}

func parseAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var w wireResponse
	if err := json.Unmarshal(data, &w); err == nil && w.Error != nil && w.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: w.Error.Message}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// sseStream adapts an SSE response body into a Stream. Reads happen on a
// goroutine so Next can honour its context while a read is blocked.
type sseStream struct {
	body   io.ReadCloser
	events chan sseResult
	done   chan struct{}
}

type sseResult struct {
	frag Fragment
	err  error
}

func newSSEStream(body io.ReadCloser) *sseStream {
	s := &sseStream{
		body:   body,
		events: make(chan sseResult),
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

func (s *sseStream) read() {
	defer close(s.events)
	r := NewSSEReader(s.body)
	for {
		_, data, err := r.ReadEvent()
		if err != nil {
			s.send(sseResult{err: err})
			return
		}
		if len(bytes.TrimSpace(data)) == 0 || string(data) == "[DONE]" {
			continue
		}
		frag, err := decodeFragment(data)
		if !s.send(sseResult{frag: frag, err: err}) || err != nil {
			return
		}
	}
}

func (s *sseStream) send(r sseResult) bool {
	select {
	case s.events <- r:
		return true
	case <-s.done:
		return false
	}
}

// Next blocks for the next fragment, io.EOF at the end of the stream, or
// ctx.Err() when the context ends first.
func (s *sseStream) Next(ctx context.Context) (Fragment, error) {
	select {
	case r, ok := <-s.events:
		if !ok {
			return Fragment{}, io.EOF
		}
		return r.frag, r.err
	case <-ctx.Done():
		return Fragment{}, ctx.Err()
	}
}

// Close releases the response body and stops the reader goroutine.
func (s *sseStream) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.body.Close()
}

func decodeFragment(data []byte) (Fragment, error) {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return Fragment{}, fmt.Errorf("%w: %v", ErrMalformedFragment, err)
	}
	if w.Error != nil {
		return Fragment{}, &APIError{StatusCode: w.Error.Code, Message: w.Error.Message}
	}
	var f Fragment
	if len(w.Candidates) == 0 {
		return f, nil
	}
	cand := w.Candidates[0]
	var text, thinking strings.Builder
	for _, p := range cand.Content.Parts {
		if p.Thought {
			thinking.WriteString(p.Text)
		} else {
			text.WriteString(p.Text)
		}
	}
	f.Text = text.String()
	f.Thinking = thinking.String()
	if gm := cand.GroundingMetadata; gm != nil {
		for _, ch := range gm.GroundingChunks {
			if ch.Web == nil || ch.Web.URI == "" {
				continue
			}
			f.Citations = append(f.Citations, Citation{URI: ch.Web.URI, Title: ch.Web.Title})
		}
	}
	return f, nil
}
