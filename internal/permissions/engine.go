// Package permissions implements the capability checks gating every
// mutating group and message operation. The engine only reads; callers
// act on the returned decision.
package permissions

import (
	"context"
	"fmt"

	"github.com/clubhub/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxSubgroupsPerMember caps how many sub-groups a single member may own.
const MaxSubgroupsPerMember = 3

// Reason strings that downstream logic matches on.
const (
	ReasonAlreadyMember = "Already a member of this group"
	ReasonNotInGroup    = "You must be a member of this group to send messages"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

type Engine struct {
	DB *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{DB: db}
}

func (e *Engine) CanCreateGroup(ctx context.Context, memberID uuid.UUID, groupType models.GroupType) Decision {
	member, err := e.loadMember(ctx, memberID)
	if err != nil {
		return Deny("Member not found")
	}
	if !member.HasActiveSubscription() {
		return Deny("An active subscription is required to create groups")
	}

	if groupType.RequiresAdmin() {
		if !member.IsAdmin() {
			return Deny("Only club administrators can create this type of group")
		}
		return Allow()
	}

	var owned int64
	err = e.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.member_id = ? AND group_memberships.role = ?", memberID, models.GroupRoleOwner).
		Where("groups.type = ? AND groups.active = ?", models.GroupTypeSubGroup, true).
		Count(&owned).Error
	if err != nil {
		return Deny("Unable to verify group ownership")
	}
	if owned >= MaxSubgroupsPerMember {
		return Deny(fmt.Sprintf("Members can own at most %d sub-groups", MaxSubgroupsPerMember))
	}

	return Allow()
}

func (e *Engine) CanJoinGroup(ctx context.Context, memberID, groupID uuid.UUID) Decision {
	member, err := e.loadMember(ctx, memberID)
	if err != nil {
		return Deny("Member not found")
	}
	if !member.HasActiveSubscription() {
		return Deny("An active subscription is required to join groups")
	}

	var group models.Group
	if err := e.DB.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		return Deny("Group not found")
	}
	if !group.Active {
		return Deny("This group is no longer active")
	}

	if _, ok := e.MemberRole(ctx, memberID, groupID); ok {
		return Deny(ReasonAlreadyMember)
	}

	if group.IsPrivate {
		return Deny("This group is private")
	}

	if group.Settings.MaxMembers != nil {
		var count int64
		if err := e.DB.WithContext(ctx).
			Model(&models.GroupMembership{}).
			Where("group_id = ?", groupID).
			Count(&count).Error; err != nil {
			return Deny("Unable to verify group capacity")
		}
		if count >= int64(*group.Settings.MaxMembers) {
			return Deny("This group is full")
		}
	}

	return Allow()
}

// MemberRole returns the caller's role in the group, or false if the
// caller is not a member.
func (e *Engine) MemberRole(ctx context.Context, memberID, groupID uuid.UUID) (models.GroupMembershipRole, bool) {
	var membership models.GroupMembership
	err := e.DB.WithContext(ctx).
		First(&membership, "group_id = ? AND member_id = ?", groupID, memberID).Error
	if err != nil {
		return "", false
	}
	return membership.Role, true
}

func (e *Engine) CanSendMessage(ctx context.Context, memberID, groupID uuid.UUID) Decision {
	member, err := e.loadMember(ctx, memberID)
	if err != nil {
		return Deny("Member not found")
	}
	if !member.HasActiveSubscription() {
		return Deny("An active subscription is required to send messages")
	}

	if _, ok := e.MemberRole(ctx, memberID, groupID); !ok {
		return Deny(ReasonNotInGroup)
	}

	return Allow()
}

func (e *Engine) CanModifyMessage(ctx context.Context, memberID, messageID uuid.UUID) Decision {
	var message models.Message
	if err := e.DB.WithContext(ctx).First(&message, "id = ?", messageID).Error; err != nil {
		return Deny("Message not found")
	}

	if message.Type == models.MessageTypeSystem {
		return Deny("System messages cannot be modified")
	}

	if message.SenderID == memberID {
		return Allow()
	}

	if role, ok := e.MemberRole(ctx, memberID, message.GroupID); ok && role.CanManage() {
		return Allow()
	}

	return Deny("You can only modify your own messages")
}

func (e *Engine) CanManageGroup(ctx context.Context, memberID, groupID uuid.UUID) Decision {
	role, ok := e.MemberRole(ctx, memberID, groupID)
	if !ok || !role.CanManage() {
		return Deny("You do not have permission to manage this group")
	}
	return Allow()
}

func (e *Engine) CanInviteToGroup(ctx context.Context, memberID, groupID uuid.UUID) Decision {
	var group models.Group
	if err := e.DB.WithContext(ctx).First(&group, "id = ?", groupID).Error; err != nil {
		return Deny("Group not found")
	}

	role, ok := e.MemberRole(ctx, memberID, groupID)
	if !ok {
		return Deny("You must be a member of this group to invite others")
	}
	if role.CanManage() {
		return Allow()
	}
	if group.Settings.AllowMemberInvites {
		return Allow()
	}

	return Deny("Member invites are disabled for this group")
}

func (e *Engine) loadMember(ctx context.Context, memberID uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := e.DB.WithContext(ctx).First(&member, "id = ?", memberID).Error; err != nil {
		return nil, err
	}
	return &member, nil
}
