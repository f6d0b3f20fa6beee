package models

import (
	"time"

	"github.com/google/uuid"
)

type GroupMembershipRole string

const (
	GroupRoleOwner  GroupMembershipRole = "owner"
	GroupRoleAdmin  GroupMembershipRole = "admin"
	GroupRoleMember GroupMembershipRole = "member"
)

// CanManage reports whether the role carries group-management capability.
func (r GroupMembershipRole) CanManage() bool {
	return r == GroupRoleOwner || r == GroupRoleAdmin
}

type GroupMembership struct {
	BaseModel
	MemberID             uuid.UUID           `json:"memberID" gorm:"type:uuid;not null;index;uniqueIndex:idx_member_group"`
	GroupID              uuid.UUID           `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_member_group"`
	Role                 GroupMembershipRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	LastReadAt           *time.Time          `json:"lastReadAt,omitempty"`
	NotificationsEnabled bool                `json:"notificationsEnabled" gorm:"not null;default:true"`
	IsMuted              bool                `json:"isMuted" gorm:"not null;default:false"`
	IsPinned             bool                `json:"isPinned" gorm:"not null;default:false"`
	Member               Member              `json:"member,omitempty" gorm:"foreignKey:MemberID"`
	Group                Group               `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}
