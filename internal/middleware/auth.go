package middleware

import (
	"strings"

	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/pkg/logger"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

const currentMemberKey = "currentMember"

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "http://localhost:3001,http://127.0.0.1:3001",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	var member models.Member
	if err := a.DB.First(&member, "id = ?", claims.MemberID).Error; err != nil {
		logger.Warn("jwt_member_not_found", map[string]interface{}{
			"ip":        c.IP(),
			"path":      c.Path(),
			"member_id": claims.MemberID,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "member not found")
	}

	c.Locals(currentMemberKey, &member)
	c.Locals("memberID", member.ID.String())
	return c.Next()
}

func GetCurrentMember(c *fiber.Ctx) *models.Member {
	member, ok := c.Locals(currentMemberKey).(*models.Member)
	if !ok {
		return nil
	}
	return member
}

func AdminOnly(c *fiber.Ctx) error {
	member := GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if !member.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}
