package handlers

import (
	"time"

	"github.com/clubhub/backend/internal/middleware"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/internal/services"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type MessagesHandler struct {
	Messages *services.MessageService
}

func NewMessagesHandler(messages *services.MessageService) *MessagesHandler {
	return &MessagesHandler{Messages: messages}
}

type sendMessageRequest struct {
	Content     string                     `json:"content"`
	Type        models.MessageType         `json:"type"`
	ReplyToID   *uuid.UUID                 `json:"replyToID"`
	Attachments []services.AttachmentInput `json:"attachments"`
	ClientKey   *string                    `json:"clientKey"`
}

func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.Messages.Send(c.Context(), groupID, member.ID, services.SendMessageInput{
		Content:     req.Content,
		Type:        req.Type,
		ReplyToID:   req.ReplyToID,
		Attachments: req.Attachments,
		ClientKey:   req.ClientKey,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, message)
}

func (h *MessagesHandler) ListByGroup(c *fiber.Ctx) error {
	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	limit := c.QueryInt("limit", services.DefaultMessagePageSize)

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		before = &parsed
	}

	messages, err := h.Messages.GetByGroup(c.Context(), groupID, limit, before)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, messages)
}

func (h *MessagesHandler) Search(c *fiber.Ctx) error {
	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	messages, err := h.Messages.Search(c.Context(), groupID, c.Query("q"), c.QueryInt("limit", services.DefaultMessagePageSize))
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, messages)
}

type markAsReadRequest struct {
	UpTo *time.Time `json:"upTo"`
}

func (h *MessagesHandler) MarkAsRead(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req markAsReadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	marked, err := h.Messages.MarkAsRead(c.Context(), groupID, member.ID, req.UpTo)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"markedCount": marked})
}

func (h *MessagesHandler) UnreadCount(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	count, err := h.Messages.UnreadCount(c.Context(), member.ID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"unreadCount": count})
}

func (h *MessagesHandler) Get(c *fiber.Ctx) error {
	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	message, err := h.Messages.GetByID(c.Context(), messageID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, message)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *MessagesHandler) Edit(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	message, err := h.Messages.Edit(c.Context(), messageID, member.ID, req.Content)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, message)
}

func (h *MessagesHandler) Delete(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	if err := h.Messages.Delete(c.Context(), messageID, member.ID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "message deleted"})
}

type addReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessagesHandler) AddReaction(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var req addReactionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Messages.AddReaction(c.Context(), messageID, member.ID, req.Emoji); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"message": "reaction added"})
}

func (h *MessagesHandler) RemoveReaction(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	emoji := c.Params("emoji")
	if decoded, err := decodeParam(emoji); err == nil {
		emoji = decoded
	}

	if err := h.Messages.RemoveReaction(c.Context(), messageID, member.ID, emoji); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "reaction removed"})
}
