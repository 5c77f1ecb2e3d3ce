package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type realtimeEventPayload struct {
	Topic     string `json:"topic,omitempty"`
	SpaceID   string `json:"spaceId,omitempty"`
	BoxID     string `json:"boxId,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// handleEvents streams the caller's store change events as server-sent events
// until the client disconnects.
func (h *httpHandler) handleEvents(c *gin.Context) {
	current := currentWorkspace(c)
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), current.UserID())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Source:    realtimeSourceBackend,
	})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				Topic:     message.Topic,
				SpaceID:   message.SpaceID,
				BoxID:     message.BoxID,
				Timestamp: message.Timestamp.Format(time.RFC3339Nano),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Timestamp: tick.UTC().Format(time.RFC3339Nano),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
}
