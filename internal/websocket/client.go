package websocket

import (
	"encoding/json"
	"time"

	"ai-consultation-be/pkg/consultation"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Watchers only send small control frames.
	maxControlSize = 1024

	// liveBuffer is the room left for live turns on top of the backlog.
	liveBuffer = 256

	// ControlReplay asks for every turn after AfterSeq again.
	ControlReplay = "replay"
)

// Backlog returns the recorded turns of a session with a sequence number
// above afterSeq.
type Backlog func(afterSeq int64) ([]consultation.TurnRecord, error)

// ControlFrame is the only message a watcher may send.
type ControlFrame struct {
	Type     string `json:"type"`
	AfterSeq int64  `json:"after_seq"`
}

// Client is one websocket connection watching a consultation.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	SessionID string

	// Send holds encoded frames waiting for the writer. The hub owns closing it.
	Send chan []byte

	backlog Backlog
}

// newClient builds a watcher whose send buffer already holds the turns
// recorded after afterSeq, so they are written before any live turn.
func newClient(hub *Hub, conn *websocket.Conn, sessionID string, afterSeq int64, backlog Backlog) *Client {
	var queued [][]byte
	if backlog != nil {
		records, err := backlog(afterSeq)
		if err != nil {
			hub.logger.Warn(module, "Backlog unavailable", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		}
		for _, record := range records {
			if data, err := encodeTurn(record); err == nil {
				queued = append(queued, data)
			}
		}
	}

	c := &Client{
		Hub:       hub,
		Conn:      conn,
		SessionID: sessionID,
		Send:      make(chan []byte, len(queued)+liveBuffer),
		backlog:   backlog,
	}
	for _, data := range queued {
		c.Send <- data
	}
	return c
}

func encodeTurn(record consultation.TurnRecord) ([]byte, error) {
	return json.Marshal(Message{Type: MessageTypeTurn, SessionID: record.SessionID, Data: record})
}

// handleControl serves one frame read from the watcher.
func (c *Client) handleControl(raw []byte) {
	var frame ControlFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type != ControlReplay {
		c.Hub.logger.Debug(module, "Ignoring watcher frame", map[string]interface{}{"session_id": c.SessionID})
		return
	}
	if c.backlog == nil {
		return
	}

	records, err := c.backlog(frame.AfterSeq)
	if err != nil {
		c.Hub.logger.Warn(module, "Replay failed", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
		return
	}
	for i, record := range records {
		data, err := encodeTurn(record)
		if err != nil {
			continue
		}
		if !c.Hub.sendTo(c, data) {
			c.Hub.logger.Warn(module, "Replay truncated", map[string]interface{}{
				"session_id": c.SessionID,
				"sent":       i,
				"requested":  len(records),
			})
			return
		}
	}
}

// readPump keeps the connection alive and serves replay requests.
func (c *Client) readPump() {
	defer func() {
		c.Hub.leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxControlSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn(module, "Unexpected close", map[string]interface{}{
					"session_id": c.SessionID,
					"error":      err.Error(),
				})
			}
			return
		}
		if msgType == websocket.TextMessage {
			c.handleControl(raw)
		}
	}
}

// writePump writes one text frame per queued message and pings idle watchers.
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
