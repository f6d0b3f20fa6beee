package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clubhub/backend/internal/apperr"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/internal/permissions"
	"github.com/clubhub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultMessagePageSize = 50

// MessageService owns the Message and Reaction lifecycle plus read
// tracking. Reaction and read-receipt uniqueness is enforced by the
// database, so concurrent callers cannot lose updates or duplicate rows.
type MessageService struct {
	DB          *gorm.DB
	Permissions *permissions.Engine
}

func NewMessageService(db *gorm.DB, engine *permissions.Engine) *MessageService {
	return &MessageService{DB: db, Permissions: engine}
}

type AttachmentInput struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

type SendMessageInput struct {
	Content     string
	Type        models.MessageType
	ReplyToID   *uuid.UUID
	Attachments []AttachmentInput
	ClientKey   *string
}

func (s *MessageService) Send(ctx context.Context, groupID, senderID uuid.UUID, input SendMessageInput) (*models.Message, error) {
	if decision := s.Permissions.CanSendMessage(ctx, senderID, groupID); !decision.Allowed {
		return nil, apperr.PermissionDenied(decision.Reason)
	}

	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" {
		return nil, apperr.Validation("Message content is required")
	}
	if input.Type == "" {
		input.Type = models.MessageTypeText
	}
	if !input.Type.ValidForSend() {
		return nil, apperr.Validation("Invalid message type")
	}

	if input.ClientKey != nil && *input.ClientKey != "" {
		var existing models.Message
		err := s.DB.WithContext(ctx).
			Preload("Attachments").
			Preload("Reactions").
			First(&existing, "group_id = ? AND sender_id = ? AND client_key = ?", groupID, senderID, *input.ClientKey).Error
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		input.ClientKey = nil
	}

	if input.ReplyToID != nil {
		var target models.Message
		err := s.DB.WithContext(ctx).
			First(&target, "id = ? AND group_id = ?", *input.ReplyToID, groupID).Error
		if err != nil {
			return nil, apperr.Validation("Reply target not found in this group")
		}
	}

	var sender models.Member
	if err := s.DB.WithContext(ctx).First(&sender, "id = ?", senderID).Error; err != nil {
		return nil, apperr.NotFound("Member not found")
	}

	message := models.Message{
		GroupID:    groupID,
		SenderID:   senderID,
		SenderName: sender.DisplayName(),
		Content:    input.Content,
		Type:       input.Type,
		ReplyToID:  input.ReplyToID,
		ClientKey:  input.ClientKey,
	}
	for _, att := range input.Attachments {
		message.Attachments = append(message.Attachments, models.Attachment{
			Name:     att.Name,
			URL:      att.URL,
			Size:     att.Size,
			MimeType: att.MimeType,
		})
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		// The sender has read their own message.
		read := models.MessageRead{MessageID: message.ID, MemberID: senderID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&read).Error
	})
	if err != nil {
		// A concurrent retry with the same client key loses the insert
		// race on the dedup index; return the row that won.
		if input.ClientKey != nil {
			var existing models.Message
			refetch := s.DB.WithContext(ctx).
				First(&existing, "group_id = ? AND sender_id = ? AND client_key = ?", groupID, senderID, *input.ClientKey)
			if refetch.Error == nil {
				return &existing, nil
			}
		}
		return nil, err
	}

	logger.InfoWithMember(senderID.String(), "message_sent", map[string]interface{}{
		"message_id": message.ID.String(),
		"group_id":   groupID.String(),
		"type":       string(message.Type),
	})

	return &message, nil
}

func (s *MessageService) Edit(ctx context.Context, messageID, memberID uuid.UUID, newContent string) (*models.Message, error) {
	if decision := s.Permissions.CanModifyMessage(ctx, memberID, messageID); !decision.Allowed {
		return nil, apperr.PermissionDenied(decision.Reason)
	}

	newContent = strings.TrimSpace(newContent)
	if newContent == "" {
		return nil, apperr.Validation("Message content is required")
	}

	var message models.Message
	if err := s.DB.WithContext(ctx).First(&message, "id = ?", messageID).Error; err != nil {
		return nil, apperr.NotFound("Message not found")
	}
	if message.Deleted {
		return nil, apperr.Validation("Cannot edit a deleted message")
	}

	now := time.Now().UTC()
	err := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"content":   newContent,
			"edited":    true,
			"edited_at": now,
		}).Error
	if err != nil {
		return nil, err
	}

	message.Content = newContent
	message.Edited = true
	message.EditedAt = &now
	return &message, nil
}

// Delete soft-deletes a message: the content is replaced with a fixed
// placeholder and the row persists for reply references.
func (s *MessageService) Delete(ctx context.Context, messageID, memberID uuid.UUID) error {
	if decision := s.Permissions.CanModifyMessage(ctx, memberID, messageID); !decision.Allowed {
		return apperr.PermissionDenied(decision.Reason)
	}

	var message models.Message
	if err := s.DB.WithContext(ctx).First(&message, "id = ?", messageID).Error; err != nil {
		return apperr.NotFound("Message not found")
	}
	if message.Deleted {
		return apperr.Validation("Message is already deleted")
	}

	now := time.Now().UTC()
	err := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"content":    models.DeletedMessagePlaceholder,
			"deleted":    true,
			"deleted_at": now,
		}).Error
	if err != nil {
		return err
	}

	logger.InfoWithMember(memberID.String(), "message_deleted", map[string]interface{}{
		"message_id": messageID.String(),
		"group_id":   message.GroupID.String(),
	})
	return nil
}

// MarkAsRead advances the caller's read cursor and sweeps the read set
// for every message at or before the cursor. Calling it again with the
// same or an earlier timestamp changes nothing; the returned count is
// the number of messages at or before the cursor either way.
func (s *MessageService) MarkAsRead(ctx context.Context, groupID, memberID uuid.UUID, upTo *time.Time) (int64, error) {
	var membership models.GroupMembership
	err := s.DB.WithContext(ctx).
		First(&membership, "group_id = ? AND member_id = ?", groupID, memberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("You are not a member of this group")
		}
		return 0, err
	}

	cursor := time.Now().UTC()
	if upTo != nil {
		cursor = upTo.UTC()
	}

	var marked int64
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The cursor only moves forward.
		if membership.LastReadAt == nil || cursor.After(*membership.LastReadAt) {
			if err := tx.Model(&models.GroupMembership{}).
				Where("id = ?", membership.ID).
				Update("last_read_at", cursor).Error; err != nil {
				return err
			}
		}

		var messageIDs []uuid.UUID
		if err := tx.Model(&models.Message{}).
			Where("group_id = ? AND created_at <= ?", groupID, cursor).
			Pluck("id", &messageIDs).Error; err != nil {
			return err
		}
		marked = int64(len(messageIDs))

		if len(messageIDs) == 0 {
			return nil
		}

		reads := make([]models.MessageRead, 0, len(messageIDs))
		for _, id := range messageIDs {
			reads = append(reads, models.MessageRead{MessageID: id, MemberID: memberID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func (s *MessageService) AddReaction(ctx context.Context, messageID, memberID uuid.UUID, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return apperr.Validation("Emoji is required")
	}

	var message models.Message
	if err := s.DB.WithContext(ctx).First(&message, "id = ?", messageID).Error; err != nil {
		return apperr.NotFound("Message not found")
	}
	if message.Deleted {
		return apperr.Validation("Cannot react to a deleted message")
	}

	if _, ok := s.Permissions.MemberRole(ctx, memberID, message.GroupID); !ok {
		return apperr.PermissionDenied("You must be a member of this group to react")
	}

	var member models.Member
	if err := s.DB.WithContext(ctx).First(&member, "id = ?", memberID).Error; err != nil {
		return apperr.NotFound("Member not found")
	}

	reaction := models.Reaction{
		MessageID:  messageID,
		MemberID:   memberID,
		Emoji:      emoji,
		MemberName: member.DisplayName(),
	}
	result := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&reaction)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.Validation("You have already reacted with this emoji")
	}
	return nil
}

func (s *MessageService) RemoveReaction(ctx context.Context, messageID, memberID uuid.UUID, emoji string) error {
	result := s.DB.WithContext(ctx).
		Where("message_id = ? AND member_id = ? AND emoji = ?", messageID, memberID, emoji).
		Delete(&models.Reaction{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("Reaction not found")
	}
	return nil
}

// MessageWithReply is a message enriched with a compact preview of the
// message it replies to, or nil if the target no longer resolves.
type MessageWithReply struct {
	models.Message
	ReplyToMessage *MessagePreview `json:"replyToMessage,omitempty"`
}

// GetByGroup returns one page of messages, oldest-to-newest. The page is
// the most recent `limit` messages, optionally below `before`.
func (s *MessageService) GetByGroup(ctx context.Context, groupID uuid.UUID, limit int, before *time.Time) ([]MessageWithReply, error) {
	var group models.Group
	if err := s.DB.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		return nil, apperr.NotFound("Group not found")
	}

	if limit <= 0 {
		limit = DefaultMessagePageSize
	}

	query := s.DB.WithContext(ctx).
		Preload("Attachments").
		Preload("Reactions").
		Where("group_id = ?", groupID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	var page []models.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&page).Error; err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	return s.enrichReplies(ctx, page)
}

func (s *MessageService) Search(ctx context.Context, groupID uuid.UUID, term string, limit int) ([]models.Message, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.Validation("Search term is required")
	}
	if limit <= 0 {
		limit = DefaultMessagePageSize
	}

	pattern := "%" + strings.ToLower(term) + "%"
	var messages []models.Message
	err := s.DB.WithContext(ctx).
		Preload("Attachments").
		Preload("Reactions").
		Where("group_id = ? AND deleted = ?", groupID, false).
		Where("LOWER(content) LIKE ? OR LOWER(sender_name) LIKE ?", pattern, pattern).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// UnreadCount sums unread messages across every group the member
// belongs to, driven by each membership's lastReadAt cursor.
func (s *MessageService) UnreadCount(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.Message{}).
		Joins("JOIN group_memberships ON group_memberships.group_id = messages.group_id AND group_memberships.member_id = ?", memberID).
		Joins("JOIN groups ON groups.id = messages.group_id AND groups.active = ?", true).
		Where("group_memberships.last_read_at IS NULL OR messages.created_at > group_memberships.last_read_at").
		Count(&count).Error
	return count, err
}

func (s *MessageService) GetByID(ctx context.Context, messageID uuid.UUID) (*MessageWithReply, error) {
	var message models.Message
	err := s.DB.WithContext(ctx).
		Preload("Attachments").
		Preload("Reactions").
		First(&message, "id = ?", messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Message not found")
		}
		return nil, err
	}

	enriched, err := s.enrichReplies(ctx, []models.Message{message})
	if err != nil {
		return nil, err
	}
	return &enriched[0], nil
}

// ReadBy returns the ids of members known to have read the message.
func (s *MessageService) ReadBy(ctx context.Context, messageID uuid.UUID) ([]uuid.UUID, error) {
	var memberIDs []uuid.UUID
	err := s.DB.WithContext(ctx).
		Model(&models.MessageRead{}).
		Where("message_id = ?", messageID).
		Pluck("member_id", &memberIDs).Error
	return memberIDs, err
}

func (s *MessageService) enrichReplies(ctx context.Context, messages []models.Message) ([]MessageWithReply, error) {
	targetIDs := make([]uuid.UUID, 0)
	for _, message := range messages {
		if message.ReplyToID != nil {
			targetIDs = append(targetIDs, *message.ReplyToID)
		}
	}

	previews := map[uuid.UUID]*MessagePreview{}
	if len(targetIDs) > 0 {
		var targets []models.Message
		if err := s.DB.WithContext(ctx).Where("id IN ?", targetIDs).Find(&targets).Error; err != nil {
			return nil, err
		}
		for _, target := range targets {
			previews[target.ID] = &MessagePreview{
				ID:         target.ID,
				Content:    target.Content,
				SenderName: target.SenderName,
				CreatedAt:  target.CreatedAt,
			}
		}
	}

	enriched := make([]MessageWithReply, 0, len(messages))
	for _, message := range messages {
		entry := MessageWithReply{Message: message}
		if message.ReplyToID != nil {
			entry.ReplyToMessage = previews[*message.ReplyToID]
		}
		enriched = append(enriched, entry)
	}
	return enriched, nil
}
