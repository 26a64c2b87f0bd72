package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/auth"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/console"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/crosstab"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/db"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/kv"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/llm"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/metrics"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router   *gin.Engine
	sessions *console.Registry
	model    *llm.MockModel
	gateway  *persist.Gateway
}

func newTestServer(t *testing.T, burst int) *testServer {
	t.Helper()
	gdb, err := db.OpenMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	gw := persist.New(kv.NewGormStore(gdb), persist.Options{})
	model := &llm.MockModel{Fragments: []llm.Fragment{{Text: "hello "}, {Text: "there"}}}
	m := metrics.New()
	reg := console.NewRegistry(console.Deps{
		Gateway: gw,
		Hub:     crosstab.NewHub(16),
		Model:   model,
		Metrics: m,
	})
	t.Cleanup(reg.CloseAll)

	router, err := NewRouter(StartOpts{
		Sessions:   reg,
		Users:      auth.NewDirectory(gw, bcrypt.MinCost),
		Gateway:    gw,
		Metrics:    m,
		LoginRPS:   0.001,
		LoginBurst: burst,
	})
	require.NoError(t, err)
	return &testServer{router: router, sessions: reg, model: model, gateway: gw}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// openTab signs alice up and opens a session in room.
func (ts *testServer) openTab(t *testing.T, room string) sessionView {
	t.Helper()
	creds := map[string]string{"username": "alice", "password": "secret1"}
	if rec := ts.do(t, http.MethodPost, "/api/signup", creds); rec.Code != http.StatusCreated && rec.Code != http.StatusConflict {
		t.Fatalf("signup = %d %s", rec.Code, rec.Body)
	}
	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{
		"username": "alice", "password": "secret1", "room": room,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[sessionView](t, rec)
}

func TestNewRouter_RequiresDeps(t *testing.T) {
	_, err := NewRouter(StartOpts{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "registry is required")
}

func TestHealthAndCatalog(t *testing.T) {
	ts := newTestServer(t, 10)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = ts.do(t, http.MethodGet, "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Software Development")
}

func TestSignupAndLogin(t *testing.T) {
	ts := newTestServer(t, 20)
	tests := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"signup ok", "/api/signup", map[string]string{"username": "bob", "password": "hunter22"}, http.StatusCreated},
		{"signup duplicate", "/api/signup", map[string]string{"username": "bob", "password": "hunter22"}, http.StatusConflict},
		{"signup missing", "/api/signup", map[string]string{"username": "carol"}, http.StatusBadRequest},
		{"signup weak", "/api/signup", map[string]string{"username": "carol", "password": "abc"}, http.StatusBadRequest},
		{"login ok", "/api/login", map[string]string{"username": "bob", "password": "hunter22"}, http.StatusOK},
		{"login wrong password", "/api/login", map[string]string{"username": "bob", "password": "nope-nope"}, http.StatusUnauthorized},
		{"login unknown user", "/api/login", map[string]string{"username": "zed", "password": "whatever"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, 2)
	body := map[string]string{"username": "bob", "password": "hunter22"}
	ts.do(t, http.MethodPost, "/api/login", body)
	ts.do(t, http.MethodPost, "/api/login", body)
	rec := ts.do(t, http.MethodPost, "/api/login", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestOpenSession_BadCredentials(t *testing.T) {
	ts := newTestServer(t, 10)
	rec := ts.do(t, http.MethodPost, "/api/sessions", map[string]string{
		"username": "ghost", "password": "secret1", "room": "alpha",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, 10)
	view := ts.openTab(t, "alpha")
	require.Equal(t, "alpha", view.State.RoomID)
	require.Len(t, view.Transcript, 1)
	base := "/api/sessions/" + view.ID

	rec := ts.do(t, http.MethodPost, base+"/messages", map[string]any{"text": "what is a monad"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decode[struct {
		MessageID string       `json:"messageId"`
		Message   chat.Message `json:"message"`
		Fragments int          `json:"fragments"`
		Failed    bool         `json:"failed"`
	}](t, rec)
	require.Equal(t, "hello there", sent.Message.Content)
	require.Equal(t, 2, sent.Fragments)
	require.False(t, sent.Failed)

	rec = ts.do(t, http.MethodGet, base+"/transcript", nil)
	msgs := decode[struct {
		Messages []chat.Message `json:"messages"`
	}](t, rec).Messages
	require.Len(t, msgs, 3)

	rec = ts.do(t, http.MethodPost, base+"/messages/"+sent.MessageID+"/feedback", map[string]string{"type": "up"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, base+"/messages/nope/feedback", map[string]string{"type": "up"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/feedback", nil)
	require.Contains(t, rec.Body.String(), sent.MessageID)

	rec = ts.do(t, http.MethodGet, "/api/rooms/alpha/presence", nil)
	require.Contains(t, rec.Body.String(), `"username":"alice"`)

	rec = ts.do(t, http.MethodGet, "/api/rooms", nil)
	require.Contains(t, rec.Body.String(), "alpha")

	rec = ts.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSend_Validation(t *testing.T) {
	ts := newTestServer(t, 10)
	base := "/api/sessions/" + ts.openTab(t, "alpha").ID

	rec := ts.do(t, http.MethodPost, base+"/messages", map[string]any{"text": "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/messages", map[string]any{
		"text":        "see file",
		"attachments": []map[string]string{{"name": "a.txt", "mimeType": "text/plain", "data": "%%%"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/messages", map[string]any{
		"text": "see file",
		"attachments": []map[string]string{{
			"name": "a.txt", "mimeType": "text/plain",
			"data": base64.StdEncoding.EncodeToString([]byte("hello")),
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parts := ts.model.Calls()[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].InlineData)
}

func TestModeContextAndRoom(t *testing.T) {
	ts := newTestServer(t, 10)
	base := "/api/sessions/" + ts.openTab(t, "alpha").ID

	rec := ts.do(t, http.MethodPut, base+"/mode", map[string]string{"mode": "project"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, chat.ModeProject, decode[chat.RoomState](t, rec).ActiveMode)

	rec = ts.do(t, http.MethodPut, base+"/mode", map[string]string{"mode": "chaos"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, base+"/context", map[string]string{
		"domain": "CS Theory", "subDomain": "Algorithms", "toggleTool": "Proof Assistant",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[chat.RoomState](t, rec)
	require.Equal(t, "CS Theory", st.ActiveDomain)
	require.Equal(t, "Algorithms", st.ActiveSubDomain)
	require.Equal(t, []string{"Proof Assistant"}, st.Tools())

	rec = ts.do(t, http.MethodPut, base+"/context", map[string]string{"toggleTool": "Code Sandbox"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, base+"/room", map[string]string{"room": "beta"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "beta", decode[sessionView](t, rec).State.RoomID)

	rec = ts.do(t, http.MethodPut, base+"/room", map[string]string{"room": "bad room"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t, 10)
	view := ts.openTab(t, "alpha")

	rec := ts.do(t, http.MethodPost, "/api/sessions/"+view.ID+"/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, ts.gateway.Presence(context.Background(), "alpha"))
	_, ok := ts.sessions.Get(view.ID)
	require.False(t, ok)
}

func TestEvents_StreamUntilClosed(t *testing.T) {
	ts := newTestServer(t, 10)
	view := ts.openTab(t, "alpha")
	s, ok := ts.sessions.Get(view.ID)
	require.True(t, ok)
	require.NoError(t, s.SetMode(context.Background(), chat.ModeProject))
	s.Close()

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+view.ID+"/events", nil)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []string
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	require.Equal(t, []string{"connected", "reset", "context", "mode", "closed"}, events)
}

func TestEventName(t *testing.T) {
	tests := []struct {
		kind console.EventKind
		want string
	}{
		{console.EventAppend, "snapshot"},
		{console.EventReplace, "snapshot"},
		{console.EventReset, "reset"},
		{console.EventMode, "mode"},
		{console.EventContext, "context"},
		{console.EventPresence, "presence"},
	}
	for _, tt := range tests {
		if got := eventName(console.Event{Kind: tt.kind}); got != tt.want {
			t.Errorf("eventName(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, 10)
	ts.openTab(t, "alpha")

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "omni_sessions_open 1")
	require.Contains(t, rec.Body.String(), `omni_auth_attempts_total{op="login",result="ok"} 1`)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{console.ErrBusy, http.StatusConflict},
		{auth.ErrUserExists, http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrWeakPassword, http.StatusBadRequest},
		{console.ErrEmptyInput, http.StatusBadRequest},
		{console.ErrUnknownMessage, http.StatusNotFound},
		{console.ErrClosed, http.StatusGone},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestLimiterPool(t *testing.T) {
	p := newLimiterPool(0.001, 1)
	if !p.Allow("a") {
		t.Fatal("first request should pass")
	}
	if p.Allow("a") {
		t.Error("second request should be limited")
	}
	if !p.Allow("b") {
		t.Error("other clients have their own bucket")
	}
}
