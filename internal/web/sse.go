package web

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/choudharyanish1236-cloud/Omni-Expert/internal/console"
	"github.com/gin-gonic/gin"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

// events streams session changes until the client goes away or the session
// is closed. Only the first subscriber of a session receives each event.
func (h *handlers) events(c *gin.Context) {
	s := sessionOf(c)
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", gin.H{"session": s.ID(), "room": s.Room()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case ev, ok := <-s.Events():
			if !ok {
				writeSSE(c.Writer, "closed", gin.H{"session": s.ID()})
				c.Writer.Flush()
				return
			}
			writeSSE(c.Writer, eventName(ev), ev)
			c.Writer.Flush()
		}
	}
}

func eventName(ev console.Event) string {
	switch ev.Kind {
	case console.EventMode:
		return "mode"
	case console.EventContext:
		return "context"
	case console.EventReset:
		return "reset"
	case console.EventPresence:
		return "presence"
	}
	return "snapshot"
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
