package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs replays the session's turns after afterSeq, then streams new ones
// until the connection closes. Watchers that join while a round is running
// may see a turn twice and should keep the highest seq they have applied.
func ServeWs(hub *Hub, conn *websocket.Conn, sessionID string, afterSeq int64, backlog Backlog) {
	client := newClient(hub, conn, sessionID, afterSeq, backlog)
	if !hub.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
