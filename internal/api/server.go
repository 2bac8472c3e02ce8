// Package api exposes the messaging operations over HTTP and the live push
// channel over websocket.
package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/yourorg/messaging/internal/auth"
	"github.com/yourorg/messaging/internal/hub"
	"github.com/yourorg/messaging/internal/service"
)

type Server struct {
	svc *service.Service
	hub *hub.Hub
	log *zap.SugaredLogger
}

func NewServer(svc *service.Service, h *hub.Hub, jv *auth.Validator, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(fiberlogger.New())

	s := &Server{svc: svc, hub: h, log: log}

	v1 := app.Group("/v1", JWTAuthMiddleware(jv))

	v1.Post("/conversations", s.createConversation)
	v1.Get("/conversations", s.listConversations)
	v1.Get("/conversations/:conv_id", s.getConversation)
	v1.Get("/conversations/:conv_id/messages", s.listMessages)
	v1.Post("/conversations/:conv_id/messages", s.sendMessage)
	v1.Post("/conversations/:conv_id/read", s.markRead)
	v1.Post("/conversations/:conv_id/typing", s.typing)
	v1.Put("/conversations/:conv_id/disappearing", s.setDisappearing)
	v1.Post("/conversations/:conv_id/participants", s.addParticipants)
	v1.Delete("/conversations/:conv_id/participants/:user_id", s.removeParticipant)
	v1.Patch("/messages/:msg_id", s.editMessage)
	v1.Delete("/messages/:msg_id", s.deleteMessage)
	v1.Post("/messages/:msg_id/reactions", s.toggleReaction)
	v1.Get("/messages/:msg_id/reactions", s.listReactions)

	v1.Get("/ws", websocket.New(s.wsHandler))

	return app
}

func JWTAuthMiddleware(jv *auth.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		const pref = "Bearer "
		if len(h) <= len(pref) || h[:len(pref)] != pref {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid auth"})
		}
		id, err := jv.Validate(h[len(pref):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", id.UserID)
		return c.Next()
	}
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

// wsHandler runs one live channel per connection. It blocks until the
// socket drops; fiber gives each upgrade its own goroutine.
func (s *Server) wsHandler(conn *websocket.Conn) {
	uid, _ := conn.Locals("user_id").(string)
	if uid == "" {
		_ = conn.Close()
		return
	}
	client := hub.NewClient(conn, uid, s.hub, s.svc, s.log)
	client.Run(context.Background())
}
