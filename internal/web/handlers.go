package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/auth"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/chat"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/console"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/metrics"
	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/persist"
	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

// maxAttachmentSize bounds one decoded attachment.
const maxAttachmentSize = 20 << 20

// sessionKey is the gin context key of the resolved session.
const sessionKey = "session"

type handlers struct {
	sessions *console.Registry
	users    *auth.Directory
	gateway  *persist.Gateway
	metrics  *metrics.Metrics
	limiter  *limiterPool
}

func newHandlers(opts StartOpts) *handlers {
	return &handlers{
		sessions: opts.Sessions,
		users:    opts.Users,
		gateway:  opts.Gateway,
		metrics:  opts.Metrics,
		limiter:  newLimiterPool(opts.LoginRPS, opts.LoginBurst),
	}
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, console.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, console.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, console.ErrClosed):
		return http.StatusGone
	case auth.IsValidationError(err), errors.Is(err, console.ErrInvalid), errors.Is(err, console.ErrEmptyInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func abortWith(c *gin.Context, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		log.Printf("web: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": len(h.sessions.List())})
}

func (h *handlers) catalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"domains": chat.Catalog, "modes": []chat.Mode{chat.ModeResearch, chat.ModeProject}})
}

// limit rejects clients that exceed the login rate.
func (h *handlers) limit(c *gin.Context) {
	if !h.limiter.Allow(c.ClientIP()) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, slow down"})
		return
	}
	c.Next()
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *handlers) signup(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.users.Signup(c.Request.Context(), req.Username, req.Password); err != nil {
		h.metrics.AuthAttempt("signup", "rejected")
		abortWith(c, err)
		return
	}
	h.metrics.AuthAttempt("signup", "ok")
	c.JSON(http.StatusCreated, gin.H{"username": req.Username})
}

func (h *handlers) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.users.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		h.metrics.AuthAttempt("login", "rejected")
		abortWith(c, err)
		return
	}
	h.metrics.AuthAttempt("login", "ok")
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

func (h *handlers) rooms(c *gin.Context) {
	rooms, err := h.gateway.Rooms(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *handlers) presence(c *gin.Context) {
	room := c.Param("room")
	if err := chat.ValidateRoomID(room); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "users": h.gateway.Presence(c.Request.Context(), room)})
}

func (h *handlers) feedbackLog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": h.gateway.FeedbackLog(c.Request.Context())})
}

type openRequest struct {
	credentials
	Room string `json:"room"`
}

// sessionView is the JSON shape of an open tab.
type sessionView struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	State      chat.RoomState `json:"state"`
	Busy       bool           `json:"busy"`
	Transcript []chat.Message `json:"transcript,omitempty"`
}

func viewOf(s *console.Session, withTranscript bool) sessionView {
	v := sessionView{ID: s.ID(), Username: s.Username(), State: s.State(), Busy: s.Busy()}
	if withTranscript {
		v.Transcript = s.Transcript()
	}
	return v
}

// openSession authenticates the user and opens a tab in the requested room.
func (h *handlers) openSession(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := h.users.Login(ctx, req.Username, req.Password); err != nil {
		h.metrics.AuthAttempt("login", "rejected")
		abortWith(c, err)
		return
	}
	h.metrics.AuthAttempt("login", "ok")
	if req.Room == "" {
		if id, ok := h.gateway.LoadIdentity(ctx); ok && id.Username == req.Username && id.RoomID != "" {
			req.Room = id.RoomID
		} else {
			req.Room = "general"
		}
	}
	s, err := h.sessions.Open(ctx, req.Username, req.Room)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(s, true))
}

// session resolves :sid for the group's handlers.
func (h *handlers) session(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("sid"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func sessionOf(c *gin.Context) *console.Session {
	return c.MustGet(sessionKey).(*console.Session)
}

func (h *handlers) sessionInfo(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(sessionOf(c), false))
}

func (h *handlers) closeSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("sid")); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context(), c.Param("sid")); err != nil {
		abortWith(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) transcript(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": sessionOf(c).Transcript()})
}

type attachmentRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type sendRequest struct {
	Text        string              `json:"text"`
	Search      bool                `json:"search"`
	Attachments []attachmentRequest `json:"attachments"`
}

func decodeAttachments(in []attachmentRequest) ([]chat.Attachment, error) {
	out := make([]chat.Attachment, 0, len(in))
	for _, a := range in {
		if a.Name == "" || a.MIMEType == "" {
			return nil, fmt.Errorf("attachment name and mimeType are required")
		}
		raw, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: %w", a.Name, err)
		}
		if len(raw) > maxAttachmentSize {
			return nil, fmt.Errorf("attachment %s is %s, limit is %s",
				a.Name, humanize.Bytes(uint64(len(raw))), humanize.Bytes(maxAttachmentSize))
		}
		out = append(out, chat.NewAttachment(a.Name, a.MIMEType, raw))
	}
	return out, nil
}

// send streams one response. The request context cancels the stream; the
// partial content is kept.
func (h *handlers) send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	atts, err := decodeAttachments(req.Attachments)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := sessionOf(c).Send(c.Request.Context(), console.SendInput{
		Text:        req.Text,
		Search:      req.Search,
		Attachments: atts,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	body := gin.H{
		"messageId": res.MessageID,
		"message":   res.Message,
		"fragments": res.Fragments,
		"cancelled": res.Cancelled,
		"failed":    res.Failed(),
		"duration":  res.Duration.Round(time.Millisecond).String(),
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (h *handlers) feedback(c *gin.Context) {
	var fb chat.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := sessionOf(c).SetFeedback(c.Request.Context(), c.Param("id"), fb)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *handlers) setMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s := sessionOf(c)
	if err := s.SetMode(c.Request.Context(), chat.Mode(req.Mode)); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, s.State())
}

type contextRequest struct {
	Domain     *string `json:"domain"`
	SubDomain  *string `json:"subDomain"`
	ToggleTool string  `json:"toggleTool"`
}

// setContext applies the fields that are present, domain first.
func (h *handlers) setContext(c *gin.Context) {
	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s := sessionOf(c)
	ctx := c.Request.Context()
	if req.Domain != nil {
		if err := s.SetDomain(ctx, *req.Domain); err != nil {
			abortWith(c, err)
			return
		}
	}
	if req.SubDomain != nil {
		if err := s.SetSubDomain(ctx, *req.SubDomain); err != nil {
			abortWith(c, err)
			return
		}
	}
	if req.ToggleTool != "" {
		if err := s.ToggleTool(ctx, req.ToggleTool); err != nil {
			abortWith(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, s.State())
}

func (h *handlers) switchRoom(c *gin.Context) {
	var req struct {
		Room string `json:"room"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s := sessionOf(c)
	if err := s.SwitchRoom(c.Request.Context(), req.Room); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(s, true))
}
