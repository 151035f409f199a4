package handlers

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/campuspool/backend/internal/services"
	"github.com/campuspool/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StreamHandler handles Server-Sent Events for real-time party updates:
// the open-party board and the leader's request inbox both ride this feed.
type StreamHandler struct {
	hub *services.PartyEventHub
}

func NewStreamHandler(hub *services.PartyEventHub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// StreamPartyEvents handles SSE connections for party event updates
// GET /api/events/stream
func (h *StreamHandler) StreamPartyEvents(c *gin.Context) {
	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()

	events := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
