package models

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Member struct {
	BaseModel
	Email              string             `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash       string             `json:"-" gorm:"type:text;not null"`
	FirstName          string             `json:"firstName" gorm:"type:varchar(100);not null"`
	LastName           string             `json:"lastName" gorm:"type:varchar(100);not null"`
	Role               MemberRole         `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus" gorm:"type:varchar(20);not null;default:'active';index"`
	AvatarURL          *string            `json:"avatarURL,omitempty" gorm:"type:text"`
	GroupMemberships   []GroupMembership  `json:"-" gorm:"foreignKey:MemberID"`
}

func (m *Member) DisplayName() string {
	return m.FirstName + " " + m.LastName
}

func (m *Member) IsAdmin() bool {
	return m.Role == MemberRoleAdmin
}

func (m *Member) HasActiveSubscription() bool {
	return m.SubscriptionStatus == SubscriptionActive
}
