package api

import (
	"net/http"
	"time"

	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/monitor"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is one message of the live feed
type Frame struct {
	Type      string            `json:"type"`
	Timestamp int64             `json:"timestamp"`
	Status    engine.Status     `json:"status"`
	Monitor   *monitor.Snapshot `json:"monitor,omitempty"`
}

func (s *Server) frame() Frame {
	f := Frame{
		Type:      "status",
		Timestamp: time.Now().UnixMilli(),
		Status:    s.gen.Status(),
	}
	if s.monitor != nil {
		snap := s.monitor.Snapshot()
		f.Monitor = &snap
	}
	return f
}

// handleWebSocket streams status and monitor frames at 10 Hz
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warnf("api", "WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	logging.Debugf("api", "WebSocket client connected from %s", conn.RemoteAddr())

	// the reader only notices the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.feedInterval)
	defer ticker.Stop()

	for {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s.frame()); err != nil {
			logging.Debugf("api", "WebSocket write error: %v", err)
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			logging.Debugf("api", "WebSocket client disconnected")
			return
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(writeWait))
			return
		}
	}
}
