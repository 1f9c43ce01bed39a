package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-portal/internal/auth"
	"github.com/spec-kit/civic-portal/internal/domain"
	"github.com/spec-kit/civic-portal/internal/realtime"
	"github.com/spec-kit/civic-portal/internal/service"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

const wsUserKey = "ws_user"

// wsCommand is the inbound channel management frame.
type wsCommand struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// WSHandler upgrades connections and bridges them into the realtime registry.
// Browsers cannot set an Authorization header on the upgrade request, so the
// token rides in the "token" query parameter instead.
type WSHandler struct {
	registry       *realtime.Registry
	issues         *service.IssueService
	authMiddleware *auth.AuthMiddleware
	logger         *zap.Logger
}

// NewWSHandler constructs handler.
func NewWSHandler(registry *realtime.Registry, issues *service.IssueService, authMiddleware *auth.AuthMiddleware, logger *zap.Logger) *WSHandler {
	return &WSHandler{registry: registry, issues: issues, authMiddleware: authMiddleware, logger: logger}
}

// Upgrade authenticates the request and admits the websocket upgrade.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	actor, err := h.authMiddleware.ResolveToken(c, c.Query("token"))
	if err != nil {
		return err
	}
	c.Locals(wsUserKey, actor)
	return c.Next()
}

// Handle returns the websocket connection handler.
func (h *WSHandler) Handle() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *WSHandler) serve(conn *websocket.Conn) {
	actor, ok := conn.Locals(wsUserKey).(*domain.User)
	if !ok {
		_ = conn.Close()
		return
	}

	connID := uuid.NewString()
	session := h.registry.Register(connID, actor.ID)
	defer h.registry.Disconnect(connID)

	h.logger.Info("websocket connected",
		zap.String("conn_id", connID),
		zap.String("user_id", actor.ID))

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			select {
			case msg := <-session.Send():
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-session.Done():
				return
			}
		}
	}()

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		h.handleCommand(conn, connID, actor, cmd)
	}

	h.registry.Disconnect(connID)
	<-writeDone
	h.logger.Info("websocket disconnected", zap.String("conn_id", connID))
}

func (h *WSHandler) handleCommand(conn *websocket.Conn, connID string, actor *domain.User, cmd wsCommand) {
	switch cmd.Action {
	case "join":
		if err := h.authorizeJoin(actor, cmd.Channel); err != nil {
			_ = conn.WriteJSON(fiber.Map{"error": "join denied", "channel": cmd.Channel})
			return
		}
		h.registry.Join(connID, cmd.Channel)
	case "leave":
		h.registry.Leave(connID, cmd.Channel)
	default:
		_ = conn.WriteJSON(fiber.Map{"error": "unknown action"})
	}
}

// authorizeJoin gates subscription to shared channels. The per-user channel
// is joined automatically at registration and cannot be requested for other
// users; issue channels reuse the issue visibility rules.
func (h *WSHandler) authorizeJoin(actor *domain.User, channel string) error {
	switch {
	case channel == realtime.ChannelAdminDashboard:
		if !domain.IsAdmin(actor.Role) {
			return apperrors.NewForbidden("admin role required")
		}
		return nil
	case strings.HasPrefix(channel, "issue:"):
		issueID := strings.TrimPrefix(channel, "issue:")
		_, err := h.issues.GetIssue(context.Background(), actor, issueID)
		return err
	default:
		return apperrors.NewForbidden("unknown channel")
	}
}
