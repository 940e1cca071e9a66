// Package livefeed streams live transcript segments to browser clients over
// a websocket.
package livefeed

import (
	"net/http"
	"time"

	"casevoice/internal/transcription"
	"casevoice/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Sessions is the slice of the transcription manager the feed needs.
type Sessions interface {
	Get(providerCallID string) (*transcription.Session, bool)
}

type Handler struct {
	Sessions Sessions

	upgrader websocket.Upgrader
}

func NewHandler(sessions Sessions) *Handler {
	return &Handler{
		Sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The browser app runs on its own origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleTranscriptFeed upgrades the request and relays transcript segments
// for one call until the session ends or the client goes away.
func (h *Handler) HandleTranscriptFeed(c *gin.Context) {
	log := logger.FromGin(c)

	callID := c.Param("provider_call_id")
	session, ok := h.Sessions.Get(callID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session for call"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "provider_call_id", callID, "err", err)
		return
	}
	defer conn.Close()

	segments, cancel := session.Subscribe()
	defer cancel()

	// Reads only matter for detecting the client closing its side.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info("transcript feed attached", "provider_call_id", callID)

	for {
		select {
		case <-clientGone:
			return
		case seg, ok := <-segments:
			if !ok {
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					deadline)
				return
			}
			if err := conn.WriteJSON(seg); err != nil {
				log.Warn("transcript feed write failed",
					"provider_call_id", callID, "err", err)
				return
			}
		}
	}
}
