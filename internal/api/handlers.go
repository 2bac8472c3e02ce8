package api

import (
	"errors"
	"math"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/messaging/internal/apperr"
	"github.com/yourorg/messaging/internal/models"
	"github.com/yourorg/messaging/internal/service"
)

// errorHandler maps the domain error taxonomy onto HTTP statuses.
func errorHandler(c *fiber.Ctx, err error) error {
	var (
		rl *apperr.RateLimitedError
		fe *fiber.Error
	)
	switch {
	case apperr.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case apperr.IsPermission(err):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case apperr.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &rl):
		retry := int(math.Ceil(rl.RetryAfter.Seconds()))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":               "rate limited",
			"retry_after_seconds": retry,
		})
	case errors.As(err, &fe):
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
}

type createConversationReq struct {
	Participants []string `json:"participants"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
}

func (s *Server) createConversation(c *fiber.Ctx) error {
	var req createConversationReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid payload")
	}
	conv, err := s.svc.CreateConversation(c.Context(), service.CreateConversationInput{
		CreatorID:    userID(c),
		Participants: req.Participants,
		Type:         models.ConversationType(req.Type),
		Title:        req.Title,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	sums, err := s.svc.GetConversations(c.Context(), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"conversations": sums})
}

func (s *Server) getConversation(c *fiber.Ctx) error {
	conv, err := s.svc.GetConversation(c.Context(), c.Params("conv_id"), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(conv)
}

type sendMessageReq struct {
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments"`
	ReplyTo     string              `json:"reply_to"`
}

func (s *Server) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid payload")
	}
	msg, err := s.svc.SendMessage(c.Context(), service.SendMessageInput{
		ConversationID: c.Params("conv_id"),
		SenderID:       userID(c),
		Content:        req.Content,
		Attachments:    req.Attachments,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	limit := int64(c.QueryInt("limit", int(service.DefaultPageSize)))
	offset := int64(c.QueryInt("offset", 0))
	msgs, err := s.svc.GetMessages(c.Context(), c.Params("conv_id"), userID(c), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": msgs, "count": len(msgs)})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	if err := s.svc.MarkRead(c.Context(), c.Params("conv_id"), userID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type typingReq struct {
	Stop bool `json:"stop"`
}

func (s *Server) typing(c *fiber.Ctx) error {
	var req typingReq
	_ = c.BodyParser(&req)
	if err := s.svc.NotifyTyping(c.Context(), c.Params("conv_id"), userID(c), req.Stop); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type disappearingReq struct {
	Enabled         bool  `json:"enabled"`
	DurationSeconds int64 `json:"duration_seconds"`
}

func (s *Server) setDisappearing(c *fiber.Ctx) error {
	var req disappearingReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid payload")
	}
	if err := s.svc.SetDisappearing(c.Context(), c.Params("conv_id"), userID(c), req.Enabled, req.DurationSeconds); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type participantsReq struct {
	UserIDs []string `json:"user_ids"`
}

func (s *Server) addParticipants(c *fiber.Ctx) error {
	var req participantsReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid payload")
	}
	if err := s.svc.AddParticipants(c.Context(), c.Params("conv_id"), userID(c), req.UserIDs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) removeParticipant(c *fiber.Ctx) error {
	if err := s.svc.RemoveParticipant(c.Context(), c.Params("conv_id"), userID(c), c.Params("user_id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type editMessageReq struct {
	Content string `json:"content"`
}

func (s *Server) editMessage(c *fiber.Ctx) error {
	var req editMessageReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid payload")
	}
	msg, err := s.svc.EditMessage(c.Context(), c.Params("msg_id"), userID(c), req.Content)
	if err != nil {
		return err
	}
	return c.JSON(msg)
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	if err := s.svc.DeleteMessage(c.Context(), c.Params("msg_id"), userID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

type reactionReq struct {
	Emoji string `json:"emoji"`
}

func (s *Server) toggleReaction(c *fiber.Ctx) error {
	var req reactionReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid payload")
	}
	added, err := s.svc.ToggleReaction(c.Context(), c.Params("msg_id"), userID(c), req.Emoji)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"added": added})
}

func (s *Server) listReactions(c *fiber.Ctx) error {
	reactions, err := s.svc.GetReactions(c.Context(), c.Params("msg_id"), userID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"reactions": reactions})
}
