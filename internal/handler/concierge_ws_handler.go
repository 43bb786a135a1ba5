package handler

import (
	"context"
	"encoding/json"

	"entrust-concierge-be/internal/pkg/logger"
	"entrust-concierge-be/internal/pkg/serverutils"
	"entrust-concierge-be/internal/service"
	internalWS "entrust-concierge-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ConciergeWsHandler streams a visitor's conversation events.
type ConciergeWsHandler struct {
	service service.IConciergeService
	tokens  *serverutils.VisitorTokens
	hub     *internalWS.Hub
	logger  logger.ILogger
}

func NewConciergeWsHandler(svc service.IConciergeService, tokens *serverutils.VisitorTokens, hub *internalWS.Hub, log logger.ILogger) *ConciergeWsHandler {
	return &ConciergeWsHandler{
		service: svc,
		tokens:  tokens,
		hub:     hub,
		logger:  log,
	}
}

func (h *ConciergeWsHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/concierge/v1/ws", h.ServeWs)
}

// ServeWs authenticates the handshake with the visitor token (query "token"
// for browsers, Authorization header for tooling) and upgrades.
func (h *ConciergeWsHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		authHeader := c.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	visitorID, err := h.tokens.Parse(tokenStr)
	if err != nil {
		h.logger.Warn("ConciergeWsHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	// Loads the visitor's manager from storage here, off the hub loop, so the
	// snapshot taken at registration is an in-memory read.
	if _, err := h.service.GetSession(c.UserContext(), visitorID); err != nil {
		return err
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("ConciergeWsHandler", "Starting WebSocket session", map[string]interface{}{"visitor_id": visitorID})
		internalWS.ServeWs(h.hub, conn, visitorID, h.snapshotFrame(visitorID))
		h.logger.Info("ConciergeWsHandler", "WebSocket session ended", map[string]interface{}{"visitor_id": visitorID})
	})(c)
}

// snapshotFrame renders the first frame of a connection. A reconnecting widget
// catches up on turns delivered while it was away; frames that follow may
// repeat turns already in the snapshot and carry their index for that reason.
func (h *ConciergeWsHandler) snapshotFrame(visitorID string) func() []byte {
	return func() []byte {
		session, err := h.service.GetSession(context.Background(), visitorID)
		if err != nil {
			h.logger.Warn("ConciergeWsHandler", "Snapshot unavailable", map[string]interface{}{
				"visitor_id": visitorID,
				"error":      err.Error(),
			})
			return nil
		}
		frame, err := json.Marshal(fiber.Map{"type": "snapshot", "data": session})
		if err != nil {
			return nil
		}
		return frame
	}
}
