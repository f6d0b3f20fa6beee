package handlers

import (
	"fmt"
	"path/filepath"

	"github.com/clubhub/backend/internal/middleware"
	"github.com/clubhub/backend/internal/services"
	"github.com/clubhub/backend/internal/storage"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AttachmentsHandler uploads attachment files to object storage and
// returns the metadata callers pass along when sending a message.
type AttachmentsHandler struct {
	Storage *storage.MinIOClient
}

func NewAttachmentsHandler(storageClient *storage.MinIOClient) *AttachmentsHandler {
	return &AttachmentsHandler{Storage: storageClient}
}

func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	member := middleware.GetCurrentMember(c)
	if member == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	if h.Storage == nil {
		return utils.Error(c, fiber.StatusServiceUnavailable, "attachment storage is not configured")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed opening uploaded file")
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("%s/%s%s", member.ID, uuid.New(), filepath.Ext(fileHeader.Filename))
	if err := h.Storage.Upload(c.Context(), objectName, file, fileHeader.Size, contentType); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed uploading attachment")
	}

	return utils.Success(c, fiber.StatusCreated, services.AttachmentInput{
		Name:     fileHeader.Filename,
		URL:      h.Storage.ObjectURL(objectName),
		Size:     fileHeader.Size,
		MimeType: contentType,
	})
}
