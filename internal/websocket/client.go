package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames are keepalives only; messages go through the REST API.
	maxMessageSize = 512

	// Enough for a long reply split into many chunks plus typing toggles.
	sendBuffer = 256
)

// Client is one browser tab subscribed to a visitor's event stream.
type Client struct {
	Hub *Hub

	Conn *websocket.Conn

	VisitorID string

	// Buffered channel of outbound frames. Closed by the hub only.
	Send chan []byte

	// initial renders the first frame. Called by the hub on registration.
	initial func() []byte

	connectedAt time.Time
}

func newClient(hub *Hub, conn *websocket.Conn, visitorID string, initial func() []byte) *Client {
	return &Client{
		Hub:         hub,
		Conn:        conn,
		VisitorID:   visitorID,
		Send:        make(chan []byte, sendBuffer),
		initial:     initial,
		connectedAt: time.Now(),
	}
}

// readPump keeps the read deadline alive. Browsers cannot send ping control
// frames, so any inbound text frame counts as a keepalive too.
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
		c.Hub.logger.Debug("Hub", "Client disconnected", map[string]interface{}{
			"visitor_id": c.VisitorID,
			"duration":   time.Since(c.connectedAt).String(),
		})
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Hub", "Unexpected websocket close", map[string]interface{}{
					"visitor_id": c.VisitorID,
					"error":      err.Error(),
				})
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump sends one websocket message per frame so the widget can parse
// each as JSON.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub (slow reader or shutdown).
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
