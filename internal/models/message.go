package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// ValidForSend reports whether a caller may send a message of this type.
// System messages are only ever generated by the services themselves.
func (t MessageType) ValidForSend() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	default:
		return false
	}
}

// DeletedMessagePlaceholder replaces the content of soft-deleted messages.
// The row itself is kept so reply references stay resolvable.
const DeletedMessagePlaceholder = "This message has been deleted"

type Message struct {
	BaseModel
	GroupID    uuid.UUID   `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_send_dedup"`
	SenderID   uuid.UUID   `json:"senderID" gorm:"type:uuid;not null;index;uniqueIndex:idx_send_dedup"`
	SenderName string      `json:"senderName" gorm:"type:varchar(200);not null"`
	Content    string      `json:"content" gorm:"type:text;not null"`
	Type       MessageType `json:"type" gorm:"type:varchar(20);not null;default:'text'"`
	ReplyToID  *uuid.UUID  `json:"replyToID,omitempty" gorm:"type:uuid"`
	// ClientKey deduplicates retried sends per (group, sender). NULL keys
	// never collide, so the index only binds when a caller supplies one.
	ClientKey *string `json:"clientKey,omitempty" gorm:"type:varchar(100);uniqueIndex:idx_send_dedup"`

	Edited    bool       `json:"edited" gorm:"not null;default:false"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	Deleted   bool       `json:"deleted" gorm:"not null;default:false;index"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	Attachments []Attachment  `json:"attachments,omitempty" gorm:"foreignKey:MessageID"`
	Reactions   []Reaction    `json:"reactions" gorm:"foreignKey:MessageID"`
	Reads       []MessageRead `json:"-" gorm:"foreignKey:MessageID"`
}

type Attachment struct {
	BaseModel
	MessageID uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	Name      string    `json:"name" gorm:"type:varchar(255);not null"`
	URL       string    `json:"url" gorm:"type:text;not null"`
	Size      int64     `json:"size" gorm:"not null"`
	MimeType  string    `json:"mimeType" gorm:"type:varchar(100);not null"`
}

type Reaction struct {
	BaseModel
	MessageID  uuid.UUID `json:"-" gorm:"type:uuid;not null;index;uniqueIndex:idx_message_member_emoji"`
	MemberID   uuid.UUID `json:"memberID" gorm:"type:uuid;not null;uniqueIndex:idx_message_member_emoji"`
	Emoji      string    `json:"emoji" gorm:"type:varchar(50);not null;uniqueIndex:idx_message_member_emoji"`
	MemberName string    `json:"memberName" gorm:"type:varchar(200);not null"`
}

// MessageRead is one row of a message's readBy set. Rows are insert-only
// (ON CONFLICT DO NOTHING), so the set grows monotonically and concurrent
// markAsRead sweeps converge to the same union.
type MessageRead struct {
	MessageID uuid.UUID `json:"messageID" gorm:"type:uuid;primaryKey"`
	MemberID  uuid.UUID `json:"memberID" gorm:"type:uuid;primaryKey"`
	ReadAt    time.Time `json:"readAt" gorm:"autoCreateTime"`
}
