package handlers

import (
	"github.com/clubhub/backend/internal/middleware"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/internal/services"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type GroupsHandler struct {
	Groups *services.GroupService
}

func NewGroupsHandler(groups *services.GroupService) *GroupsHandler {
	return &GroupsHandler{Groups: groups}
}

type createGroupRequest struct {
	Name        string                `json:"name"`
	Description *string               `json:"description"`
	Type        models.GroupType      `json:"type"`
	IsPrivate   bool                  `json:"isPrivate"`
	AutoJoin    bool                  `json:"autoJoin"`
	ClassID     *uuid.UUID            `json:"classID"`
	Settings    *models.GroupSettings `json:"settings"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	group, err := h.Groups.Create(c.Context(), member.ID, services.CreateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		IsPrivate:   req.IsPrivate,
		AutoJoin:    req.AutoJoin,
		ClassID:     req.ClassID,
		Settings:    req.Settings,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	groups, err := h.Groups.GetAll(c.Context())
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) ListMine(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groups, err := h.Groups.GetUserGroups(c.Context(), member.ID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) ListByType(c *fiber.Ctx) error {
	groups, err := h.Groups.GetByType(c.Context(), models.GroupType(c.Params("type")))
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	detail, err := h.Groups.GetByID(c.Context(), groupID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, detail)
}

type updateGroupRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	IsPrivate   *bool                 `json:"isPrivate"`
	Settings    *models.GroupSettings `json:"settings"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req updateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	group, err := h.Groups.Update(c.Context(), groupID, member.ID, services.UpdateGroupInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		Settings:    req.Settings,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, group)
}

func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if err := h.Groups.Delete(c.Context(), groupID, member.ID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

type addMemberRequest struct {
	MemberID uuid.UUID                  `json:"memberID"`
	Role     models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.MemberID == uuid.Nil {
		return utils.Error(c, fiber.StatusBadRequest, "memberID is required")
	}

	if err := h.Groups.AddMember(c.Context(), groupID, req.MemberID, member.ID, req.Role); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"message": "member added"})
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	memberID, err := parseUUID(c.Params("memberId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid member id")
	}

	if err := h.Groups.RemoveMember(c.Context(), groupID, memberID, member.ID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type updateMemberRoleRequest struct {
	Role models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) UpdateMemberRole(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	memberID, err := parseUUID(c.Params("memberId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid member id")
	}

	var req updateMemberRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.Groups.UpdateMemberRole(c.Context(), groupID, memberID, req.Role, member.ID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "role updated"})
}

func (h *GroupsHandler) Leave(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if err := h.Groups.Leave(c.Context(), groupID, member.ID); err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "left group"})
}

type membershipSettingsRequest struct {
	NotificationsEnabled *bool `json:"notificationsEnabled"`
	IsMuted              *bool `json:"isMuted"`
	IsPinned             *bool `json:"isPinned"`
}

func (h *GroupsHandler) UpdateMembershipSettings(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	var req membershipSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	membership, err := h.Groups.UpdateMembershipSettings(c.Context(), groupID, member.ID, services.MembershipSettingsInput{
		NotificationsEnabled: req.NotificationsEnabled,
		IsMuted:              req.IsMuted,
		IsPinned:             req.IsPinned,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, membership)
}

func (h *GroupsHandler) ListMembers(c *fiber.Ctx) error {
	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	members, err := h.Groups.GetMembers(c.Context(), groupID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return utils.Success(c, fiber.StatusOK, members)
}
