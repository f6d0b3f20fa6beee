package models

import "github.com/google/uuid"

type GroupType string

const (
	GroupTypeClubWide    GroupType = "club_wide"
	GroupTypeSubGroup    GroupType = "sub_group"
	GroupTypeCompetition GroupType = "competition"
	GroupTypeClassBased  GroupType = "class_based"
)

func (t GroupType) Valid() bool {
	switch t {
	case GroupTypeClubWide, GroupTypeSubGroup, GroupTypeCompetition, GroupTypeClassBased:
		return true
	default:
		return false
	}
}

// RequiresAdmin reports whether only club administrators may create
// groups of this type.
func (t GroupType) RequiresAdmin() bool {
	return t != GroupTypeSubGroup
}

type GroupSettings struct {
	AllowMemberInvites bool `json:"allowMemberInvites" gorm:"not null;default:false"`
	AllowFileSharing   bool `json:"allowFileSharing" gorm:"not null;default:true"`
	MaxMembers         *int `json:"maxMembers,omitempty"`
}

type Group struct {
	BaseModel
	Name        string            `json:"name" gorm:"type:varchar(150);not null"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	Type        GroupType         `json:"type" gorm:"type:varchar(20);not null;index"`
	CreatedByID uuid.UUID         `json:"createdByID" gorm:"type:uuid;not null;index"`
	IsPrivate   bool              `json:"isPrivate" gorm:"not null;default:false"`
	AutoJoin    bool              `json:"autoJoin" gorm:"not null;default:false"`
	ClassID     *uuid.UUID        `json:"classID,omitempty" gorm:"type:uuid"`
	Settings    GroupSettings     `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`
	Active      bool              `json:"active" gorm:"not null;default:true;index"`
	CreatedBy   Member            `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
	Memberships []GroupMembership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
}
