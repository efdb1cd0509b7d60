package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/consultation"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	module = "Hub"

	// RedisChannel carries turn messages between instances.
	RedisChannel = "consultation_turns"

	MessageTypeTurn         = "turn"
	MessageTypeSessionEnded = "session_ended"
)

type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data"`
}

// clusterMessage is what travels over redis.
type clusterMessage struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

// Hub fans session events out to the websocket clients watching them.
// With redis every instance receives them, not only the one that ran the round.
type Hub struct {
	// Registered clients: SessionID -> watchers
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb    *redis.Client
	origin string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info(module, "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.SessionID]
	for i, c := range clients {
		if c == client {
			h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.SessionID]) == 0 {
		delete(h.clients, client.SessionID)
		h.logger.Info(module, "Last watcher left session", map[string]interface{}{"session_id": client.SessionID})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, id)
	}
}

// ClientCount returns the number of local watchers of a session.
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// TotalClients returns the number of local watchers across sessions.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.clients {
		n += len(clients)
	}
	return n
}

// Emit pushes the records to local watchers and, through redis, to the
// watchers connected to other instances.
func (h *Hub) Emit(ctx context.Context, records []consultation.TurnRecord) error {
	for _, r := range records {
		h.Notify(ctx, r.SessionID, MessageTypeTurn, r)
	}
	return nil
}

// Relay pushes one record to local watchers only. It serves events that
// every instance already receives, such as the NATS turn stream.
func (h *Hub) Relay(_ context.Context, record consultation.TurnRecord) error {
	data, err := encodeTurn(record)
	if err != nil {
		return err
	}
	h.deliver(record.SessionID, data)
	return nil
}

// Notify sends one message to every watcher of the session.
func (h *Hub) Notify(ctx context.Context, sessionID, msgType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: msgType, SessionID: sessionID, Data: payload})
	if err != nil {
		h.logger.Error(module, "Failed to encode message", map[string]interface{}{"session_id": sessionID, "error": err})
		return
	}

	h.deliver(sessionID, data)

	if h.rdb == nil {
		return
	}
	envelope, err := encodeCluster(h.origin, sessionID, data)
	if err != nil {
		h.logger.Error(module, "Failed to encode cluster message", map[string]interface{}{"session_id": sessionID, "error": err})
		return
	}
	if err := h.rdb.Publish(ctx, RedisChannel, envelope).Err(); err != nil {
		h.logger.Warn(module, "Redis publish failed", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
	}
}

// encodeCluster wraps an encoded message for the redis channel.
func encodeCluster(origin, sessionID string, data []byte) ([]byte, error) {
	return json.Marshal(clusterMessage{Origin: origin, SessionID: sessionID, Message: data})
}

func (h *Hub) deliver(sessionID string, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients[sessionID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn(module, "Client send buffer full, dropping client", map[string]interface{}{"session_id": sessionID})
		go h.leave(client)
	}
}

// sendTo queues data for one registered client without blocking. It
// reports false when the client is gone or its buffer is full.
func (h *Hub) sendTo(c *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients[c.SessionID] {
		if client != c {
			continue
		}
		select {
		case c.Send <- data:
			return true
		default:
			return false
		}
	}
	return false
}

// join registers a client. It reports false when the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters a client unless the hub has already stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// subscribeToRedis delivers messages published by other instances. Every
// instance subscribes to the one channel and keeps what its clients watch.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, RedisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg = m
		}

		var payload clusterMessage
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn(module, "Redis message parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if payload.Origin == h.origin {
			continue
		}
		h.deliver(payload.SessionID, payload.Message)
	}
}
