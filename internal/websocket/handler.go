package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs attaches an observer connection to the hub for one research session.
// A non-nil initial frame is delivered first, before any live events, so new
// observers see the session's current status immediately.
func ServeWs(hub *Hub, c *websocket.Conn, sessionID uuid.UUID, initial []byte) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionID, Send: make(chan []byte, 256)}
	if initial != nil {
		client.Send <- initial
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
