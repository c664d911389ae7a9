package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/livestudio/studio/internal/media"
	"github.com/livestudio/studio/internal/studio"
)

func newUpgrader(allowedOrigins string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
}

// checkOrigin admits clients without an Origin header, same-origin pages and the configured
// display origins ("*" or a comma-separated list). Any other page is refused, since a
// connection can drive the session and take over capture.
func checkOrigin(allowedOrigins string) func(r *http.Request) bool {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] || allowed[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Studio is the part of the live session a display client drives.
type Studio interface {
	Snapshot() studio.Snapshot
	Do(ctx context.Context, action string) error
	SendHostMessage(text string) error
}

// Client represents a single WebSocket connection of a display.
type Client struct {
	ID       string
	JoinedAt time.Time
	hub      *Hub
	studio   Studio
	ingest   *Ingest
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
	ctx      context.Context
}

// ServeWs handles the WebSocket upgrade and runs the client loop. ingest may be nil when
// capture does not come from the browser. allowedOrigins uses the CORS_ALLOWED_ORIGINS format.
func ServeWs(ctx context.Context, hub *Hub, s Studio, ingest *Ingest, allowedOrigins string, logger *zap.Logger) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.String("origin", c.GetHeader("Origin")), zap.Error(err))
			return
		}

		id := uuid.New().String()
		client := &Client{
			ID:       id,
			JoinedAt: time.Now(),
			hub:      hub,
			studio:   s,
			ingest:   ingest,
			conn:     conn,
			send:     make(chan WSMessage, sendBuffer),
			logger:   logger.With(zap.String("client_id", id)),
			ctx:      ctx,
		}
		hub.Register(client)
		hub.SendToClient(client.ID, "snapshot", s.Snapshot())
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) sendToMe(event string, payload interface{}) {
	c.hub.SendToClient(c.ID, event, payload)
}

func (c *Client) readPump() {
	defer func() {
		if c.ingest != nil {
			c.ingest.Detach(c.ID)
		}
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handle(msg)
	}
}

func (c *Client) handle(msg WSMessage) {
	switch msg.Event {
	case "snapshot":
		c.sendToMe("snapshot", c.studio.Snapshot())
	case "action":
		var payload struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Action == "" {
			c.sendToMe("error", map[string]string{"message": "action required"})
			return
		}
		// Acquisitions wait on the capture agent, whose replies arrive on this same loop.
		go func() {
			if err := c.studio.Do(c.ctx, payload.Action); err != nil {
				c.logger.Info("action failed", zap.String("action", payload.Action), zap.Error(err))
				c.sendToMe("action_error", map[string]string{"action": payload.Action, "message": err.Error()})
			}
		}()
	case "message":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		if err := c.studio.SendHostMessage(payload.Text); err != nil {
			c.sendToMe("error", map[string]string{"message": err.Error()})
		}
	case "capture_hello":
		if c.ingest == nil {
			return
		}
		var payload struct {
			Display bool `json:"display"`
		}
		_ = json.Unmarshal(msg.Data, &payload)
		c.ingest.Attach(c.ID, payload.Display, c.sendToMe)
		// A fresh agent brings the camera up, as opening the page does.
		go func() {
			if err := c.studio.Do(c.ctx, studio.ActionCamera); err != nil {
				c.logger.Info("camera after agent attach", zap.Error(err))
			}
		}()
	case "capture_offer":
		if c.ingest == nil {
			return
		}
		var payload struct {
			RequestID string `json:"request_id"`
			Tracks    int    `json:"tracks"`
			Type      string `json:"type"`
			SDP       string `json:"sdp"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.SDP != "" {
			sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP}
			if err := c.ingest.HandleOffer(payload.RequestID, payload.Tracks, sdp, c.sendToMe); err != nil {
				c.logger.Warn("capture offer rejected", zap.String("request_id", payload.RequestID), zap.Error(err))
			}
		}
	case "capture_error":
		if c.ingest == nil {
			return
		}
		var payload struct {
			RequestID string `json:"request_id"`
			Name      string `json:"name"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err == nil {
			c.ingest.Fail(payload.RequestID, media.Classify(payload.Name, payload.Message))
		}
	case "capture_ice":
		if c.ingest == nil {
			return
		}
		var payload struct {
			RequestID string          `json:"request_id"`
			Candidate json.RawMessage `json:"candidate"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err == nil && len(payload.Candidate) > 0 {
			var cand webrtc.ICECandidateInit
			if json.Unmarshal(payload.Candidate, &cand) == nil {
				_ = c.ingest.HandleICE(payload.RequestID, cand)
			}
		}
	default:
		// ignore
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
