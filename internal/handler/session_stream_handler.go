package handler

import (
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/internal/service"
	internalWS "ai-consultation-be/internal/websocket"
	"ai-consultation-be/pkg/consultation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SessionStreamHandler upgrades watchers of a session to a websocket that
// receives every turn as it is recorded.
type SessionStreamHandler struct {
	service service.IConsultationService
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewSessionStreamHandler(service service.IConsultationService, hub *internalWS.Hub, log logger.ILogger) *SessionStreamHandler {
	return &SessionStreamHandler{service: service, hub: hub, logger: log}
}

func (h *SessionStreamHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	router.Get("/ws/sessions/:id", auth, h.ServeWs)
}

func (h *SessionStreamHandler) ServeWs(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if !h.service.Exists(sessionID) {
		return fiber.NewError(fiber.StatusNotFound, "Session not found")
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// after_seq lets a reconnecting watcher skip the turns it already has.
	afterSeq := int64(c.QueryInt("after_seq", 0))
	backlog := func(after int64) ([]consultation.TurnRecord, error) {
		return h.service.TurnsSince(sessionID, after)
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("SessionStreamHandler", "Starting WebSocket session", map[string]interface{}{
			"session_id": sessionID,
			"after_seq":  afterSeq,
		})
		internalWS.ServeWs(h.hub, conn, sessionID, afterSeq, backlog)
		h.logger.Info("SessionStreamHandler", "WebSocket session ended", map[string]interface{}{"session_id": sessionID})
	})(c)
}
