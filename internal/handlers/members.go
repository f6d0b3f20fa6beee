package handlers

import (
	"strings"

	"github.com/clubhub/backend/internal/middleware"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/pkg/logger"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// MembersHandler exposes the member directory.
type MembersHandler struct {
	DB *gorm.DB
}

func NewMembersHandler(db *gorm.DB) *MembersHandler {
	return &MembersHandler{DB: db}
}

func (h *MembersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	search := strings.TrimSpace(c.Query("search"))

	query := h.DB.Model(&models.Member{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting members")
	}

	var members []models.Member
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&members).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing members")
	}

	return utils.Paginated(c, members, p.Page, p.Limit, total)
}

func (h *MembersHandler) Search(c *fiber.Ctx) error {
	currentMember := middleware.GetCurrentMember(c)
	search := strings.TrimSpace(c.Query("search"))
	limit := c.QueryInt("limit", 5)

	if limit > 50 {
		limit = 50
	}

	if search != "" && currentMember != nil {
		logger.InfoWithMember(currentMember.ID.String(), "member_search", map[string]interface{}{
			"query": search,
			"limit": limit,
		})
	}

	query := h.DB.Model(&models.Member{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
		)
	}

	var members []models.Member
	if err := query.Order("created_at DESC").Limit(limit).Find(&members).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed searching members")
	}

	return utils.Success(c, fiber.StatusOK, members)
}

func (h *MembersHandler) Get(c *fiber.Ctx) error {
	memberID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid member id")
	}

	var member models.Member
	if err := h.DB.First(&member, "id = ?", memberID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching member")
	}

	return utils.Success(c, fiber.StatusOK, member)
}

type updateMemberRequest struct {
	FirstName          *string                    `json:"firstName"`
	LastName           *string                    `json:"lastName"`
	AvatarURL          *string                    `json:"avatarURL"`
	Role               *models.MemberRole         `json:"role"`
	SubscriptionStatus *models.SubscriptionStatus `json:"subscriptionStatus"`
}

func (h *MembersHandler) Update(c *fiber.Ctx) error {
	memberID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid member id")
	}

	var req updateMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		if name := strings.TrimSpace(*req.FirstName); name != "" {
			updates["first_name"] = name
		}
	}
	if req.LastName != nil {
		if name := strings.TrimSpace(*req.LastName); name != "" {
			updates["last_name"] = name
		}
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if req.Role != nil {
		if *req.Role != models.MemberRoleAdmin && *req.Role != models.MemberRoleMember {
			return utils.Error(c, fiber.StatusBadRequest, "invalid role")
		}
		updates["role"] = *req.Role
	}
	if req.SubscriptionStatus != nil {
		switch *req.SubscriptionStatus {
		case models.SubscriptionActive, models.SubscriptionExpired, models.SubscriptionCancelled:
			updates["subscription_status"] = *req.SubscriptionStatus
		default:
			return utils.Error(c, fiber.StatusBadRequest, "invalid subscription status")
		}
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.Member{}).Where("id = ?", memberID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating member")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "member not found")
	}

	var updated models.Member
	if err := h.DB.First(&updated, "id = ?", memberID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated member")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}
