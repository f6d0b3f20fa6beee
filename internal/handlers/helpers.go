package handlers

import (
	"net/url"
	"strings"

	"github.com/clubhub/backend/internal/apperr"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// decodeParam unescapes a path parameter, needed for emoji segments.
func decodeParam(value string) (string, error) {
	return url.QueryUnescape(value)
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// PermissionDenied and Validation reasons are shown to the caller as-is.
func respondServiceError(c *fiber.Ctx, err error) error {
	if ae, ok := apperr.As(err); ok {
		switch ae.Kind {
		case apperr.KindNotFound:
			return utils.Error(c, fiber.StatusNotFound, ae.Reason)
		case apperr.KindPermissionDenied:
			return utils.Error(c, fiber.StatusForbidden, ae.Reason)
		case apperr.KindValidation:
			return utils.Error(c, fiber.StatusUnprocessableEntity, ae.Reason)
		case apperr.KindInvariant:
			return utils.Error(c, fiber.StatusConflict, ae.Reason)
		}
	}
	return utils.Error(c, fiber.StatusInternalServerError, "internal error")
}
