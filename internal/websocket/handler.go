package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a connection to the hub. initial, when non-nil, renders
// the first frame right after registration so the widget starts from the
// current state and misses no change. It blocks until the connection closes.
func ServeWs(hub *Hub, conn *websocket.Conn, visitorID string, initial func() []byte) {
	client := newClient(hub, conn, visitorID, initial)
	if !hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
