package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clubhub/backend/internal/apperr"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/internal/permissions"
	"github.com/clubhub/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupService owns the Group and GroupMembership lifecycle. Every
// mutating operation runs its permission check first and performs all
// writes inside a single transaction.
type GroupService struct {
	DB          *gorm.DB
	Permissions *permissions.Engine
}

func NewGroupService(db *gorm.DB, engine *permissions.Engine) *GroupService {
	return &GroupService{DB: db, Permissions: engine}
}

type CreateGroupInput struct {
	Name        string
	Description *string
	Type        models.GroupType
	IsPrivate   bool
	AutoJoin    bool
	ClassID     *uuid.UUID
	Settings    *models.GroupSettings
}

func (s *GroupService) Create(ctx context.Context, memberID uuid.UUID, input CreateGroupInput) (*models.Group, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, apperr.Validation("Group name is required")
	}
	if !input.Type.Valid() {
		return nil, apperr.Validation("Invalid group type")
	}

	if decision := s.Permissions.CanCreateGroup(ctx, memberID, input.Type); !decision.Allowed {
		return nil, apperr.PermissionDenied(decision.Reason)
	}

	var creator models.Member
	if err := s.DB.WithContext(ctx).First(&creator, "id = ?", memberID).Error; err != nil {
		return nil, apperr.NotFound("Member not found")
	}

	group := models.Group{
		Name:        input.Name,
		Description: input.Description,
		Type:        input.Type,
		CreatedByID: memberID,
		IsPrivate:   input.IsPrivate,
		AutoJoin:    input.AutoJoin,
		ClassID:     input.ClassID,
		Active:      true,
	}
	if input.Settings != nil {
		group.Settings = *input.Settings
	} else {
		group.Settings = models.GroupSettings{AllowFileSharing: true}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		owner := models.GroupMembership{
			MemberID:             memberID,
			GroupID:              group.ID,
			Role:                 models.GroupRoleOwner,
			NotificationsEnabled: true,
		}
		if err := tx.Create(&owner).Error; err != nil {
			return err
		}

		if input.AutoJoin {
			var others []models.Member
			if err := tx.
				Where("subscription_status = ? AND id <> ?", models.SubscriptionActive, memberID).
				Find(&others).Error; err != nil {
				return err
			}
			for _, other := range others {
				membership := models.GroupMembership{
					MemberID:             other.ID,
					GroupID:              group.ID,
					Role:                 models.GroupRoleMember,
					NotificationsEnabled: true,
				}
				if err := tx.Create(&membership).Error; err != nil {
					return err
				}
			}
		}

		return insertSystemMessage(tx, group.ID, &creator, fmt.Sprintf("%s created the group", creator.DisplayName()))
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithMember(memberID.String(), "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
		"group_type": string(group.Type),
		"auto_join":  group.AutoJoin,
	})

	return &group, nil
}

type UpdateGroupInput struct {
	Name        *string
	Description *string
	IsPrivate   *bool
	Settings    *models.GroupSettings
}

func (s *GroupService) Update(ctx context.Context, groupID, memberID uuid.UUID, input UpdateGroupInput) (*models.Group, error) {
	if _, err := s.loadActiveGroup(ctx, groupID); err != nil {
		return nil, err
	}

	if decision := s.Permissions.CanManageGroup(ctx, memberID, groupID); !decision.Allowed {
		return nil, apperr.PermissionDenied(decision.Reason)
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperr.Validation("Group name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.IsPrivate != nil {
		updates["is_private"] = *input.IsPrivate
	}
	if input.Settings != nil {
		updates["settings_allow_member_invites"] = input.Settings.AllowMemberInvites
		updates["settings_allow_file_sharing"] = input.Settings.AllowFileSharing
		updates["settings_max_members"] = input.Settings.MaxMembers
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("No valid fields to update")
	}

	if err := s.DB.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ?", groupID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	var updated models.Group
	if err := s.DB.WithContext(ctx).First(&updated, "id = ?", groupID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete soft-deletes a group. Only the owner may do this, admins cannot.
func (s *GroupService) Delete(ctx context.Context, groupID, memberID uuid.UUID) error {
	if _, err := s.loadActiveGroup(ctx, groupID); err != nil {
		return err
	}

	role, ok := s.Permissions.MemberRole(ctx, memberID, groupID)
	if !ok || role != models.GroupRoleOwner {
		return apperr.PermissionDenied("Only the group owner can delete the group")
	}

	err := s.DB.WithContext(ctx).
		Model(&models.Group{}).
		Where("id = ?", groupID).
		Update("active", false).Error
	if err != nil {
		return err
	}

	logger.InfoWithMember(memberID.String(), "group_deleted", map[string]interface{}{
		"group_id": groupID.String(),
	})
	return nil
}

func (s *GroupService) AddMember(ctx context.Context, groupID, memberID, addedByID uuid.UUID, role models.GroupMembershipRole) error {
	if _, err := s.loadActiveGroup(ctx, groupID); err != nil {
		return err
	}

	if decision := s.Permissions.CanManageGroup(ctx, addedByID, groupID); !decision.Allowed {
		return apperr.PermissionDenied(decision.Reason)
	}

	// Admin-initiated adds still honor the join invariants (private
	// groups, capacity). An existing membership surfaces through the
	// join check and is rejected as a duplicate below.
	if decision := s.Permissions.CanJoinGroup(ctx, memberID, groupID); !decision.Allowed {
		if decision.Reason == permissions.ReasonAlreadyMember {
			return apperr.Validation("Member is already in this group")
		}
		return apperr.PermissionDenied(decision.Reason)
	}

	if role == "" {
		role = models.GroupRoleMember
	}
	if role != models.GroupRoleMember && role != models.GroupRoleAdmin {
		return apperr.Validation("Invalid role")
	}

	var target models.Member
	if err := s.DB.WithContext(ctx).First(&target, "id = ?", memberID).Error; err != nil {
		return apperr.NotFound("Member not found")
	}
	var actor models.Member
	if err := s.DB.WithContext(ctx).First(&actor, "id = ?", addedByID).Error; err != nil {
		return apperr.NotFound("Member not found")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership := models.GroupMembership{
			MemberID:             memberID,
			GroupID:              groupID,
			Role:                 role,
			NotificationsEnabled: true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return apperr.Validation("Member is already in this group")
		}

		return insertSystemMessage(tx, groupID, &actor,
			fmt.Sprintf("%s added %s to the group", actor.DisplayName(), target.DisplayName()))
	})
}

func (s *GroupService) RemoveMember(ctx context.Context, groupID, memberID, removedByID uuid.UUID) error {
	if decision := s.Permissions.CanManageGroup(ctx, removedByID, groupID); !decision.Allowed {
		return apperr.PermissionDenied(decision.Reason)
	}

	var target models.GroupMembership
	err := s.DB.WithContext(ctx).
		Preload("Member").
		First(&target, "group_id = ? AND member_id = ?", groupID, memberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Member is not in this group")
		}
		return err
	}

	if target.Role == models.GroupRoleOwner {
		return apperr.Invariant("The group owner cannot be removed")
	}

	var actor models.Member
	if err := s.DB.WithContext(ctx).First(&actor, "id = ?", removedByID).Error; err != nil {
		return apperr.NotFound("Member not found")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMembership{}, "id = ?", target.ID).Error; err != nil {
			return err
		}
		return insertSystemMessage(tx, groupID, &actor,
			fmt.Sprintf("%s removed %s from the group", actor.DisplayName(), target.Member.DisplayName()))
	})
}

func (s *GroupService) UpdateMemberRole(ctx context.Context, groupID, memberID uuid.UUID, newRole models.GroupMembershipRole, updatedByID uuid.UUID) error {
	actorRole, ok := s.Permissions.MemberRole(ctx, updatedByID, groupID)
	if !ok || actorRole != models.GroupRoleOwner {
		return apperr.PermissionDenied("Only the group owner can change member roles")
	}

	if newRole == models.GroupRoleOwner {
		return apperr.Invariant("A group has exactly one owner")
	}
	if newRole != models.GroupRoleAdmin && newRole != models.GroupRoleMember {
		return apperr.Validation("Invalid role")
	}

	var target models.GroupMembership
	err := s.DB.WithContext(ctx).
		First(&target, "group_id = ? AND member_id = ?", groupID, memberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Member is not in this group")
		}
		return err
	}
	if target.Role == models.GroupRoleOwner {
		return apperr.Invariant("The owner role cannot be changed")
	}

	return s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", target.ID).
		Update("role", newRole).Error
}

func (s *GroupService) Leave(ctx context.Context, groupID, memberID uuid.UUID) error {
	var membership models.GroupMembership
	err := s.DB.WithContext(ctx).
		Preload("Member").
		First(&membership, "group_id = ? AND member_id = ?", groupID, memberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("You are not a member of this group")
		}
		return err
	}

	if membership.Role == models.GroupRoleOwner {
		return apperr.Invariant("The group owner cannot leave the group")
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.GroupMembership{}, "id = ?", membership.ID).Error; err != nil {
			return err
		}
		return insertSystemMessage(tx, groupID, &membership.Member,
			fmt.Sprintf("%s left the group", membership.Member.DisplayName()))
	})
}

type MembershipSettingsInput struct {
	NotificationsEnabled *bool
	IsMuted              *bool
	IsPinned             *bool
}

func (s *GroupService) UpdateMembershipSettings(ctx context.Context, groupID, memberID uuid.UUID, input MembershipSettingsInput) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := s.DB.WithContext(ctx).
		First(&membership, "group_id = ? AND member_id = ?", groupID, memberID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("You are not a member of this group")
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.NotificationsEnabled != nil {
		updates["notifications_enabled"] = *input.NotificationsEnabled
	}
	if input.IsMuted != nil {
		updates["is_muted"] = *input.IsMuted
	}
	if input.IsPinned != nil {
		updates["is_pinned"] = *input.IsPinned
	}
	if len(updates) == 0 {
		return nil, apperr.Validation("No valid fields to update")
	}

	if err := s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("id = ?", membership.ID).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	var updated models.GroupMembership
	if err := s.DB.WithContext(ctx).First(&updated, "id = ?", membership.ID).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

// MessagePreview is the compact latest-message / reply-target view.
type MessagePreview struct {
	ID         uuid.UUID `json:"id"`
	Content    string    `json:"content"`
	SenderName string    `json:"senderName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type GroupDetail struct {
	models.Group
	MemberCount   int64           `json:"memberCount"`
	LatestMessage *MessagePreview `json:"latestMessage,omitempty"`
}

type UserGroup struct {
	models.Group
	Membership    models.GroupMembership `json:"membership"`
	UnreadCount   int64                  `json:"unreadCount"`
	MemberCount   int64                  `json:"memberCount"`
	LatestMessage *MessagePreview        `json:"latestMessage,omitempty"`
}

func (s *GroupService) GetAll(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.DB.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		Find(&groups).Error
	return groups, err
}

func (s *GroupService) GetByID(ctx context.Context, groupID uuid.UUID) (*GroupDetail, error) {
	group, err := s.loadActiveGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	detail := GroupDetail{Group: *group}
	if err := s.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("group_id = ?", groupID).
		Count(&detail.MemberCount).Error; err != nil {
		return nil, err
	}
	detail.LatestMessage, err = s.latestMessage(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *GroupService) GetByType(ctx context.Context, groupType models.GroupType) ([]GroupDetail, error) {
	if !groupType.Valid() {
		return nil, apperr.Validation("Invalid group type")
	}

	var groups []models.Group
	err := s.DB.WithContext(ctx).
		Where("type = ? AND active = ?", groupType, true).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	details := make([]GroupDetail, 0, len(groups))
	for _, group := range groups {
		detail := GroupDetail{Group: group}
		if err := s.DB.WithContext(ctx).
			Model(&models.GroupMembership{}).
			Where("group_id = ?", group.ID).
			Count(&detail.MemberCount).Error; err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

// GetUserGroups returns the caller's groups enriched with membership
// preferences, unread counts, and latest-message previews, sorted
// pinned-first and then by most recent activity.
func (s *GroupService) GetUserGroups(ctx context.Context, memberID uuid.UUID) ([]UserGroup, error) {
	var memberships []models.GroupMembership
	err := s.DB.WithContext(ctx).
		Joins("JOIN groups ON groups.id = group_memberships.group_id AND groups.active = ?", true).
		Where("group_memberships.member_id = ?", memberID).
		Preload("Group").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	result := make([]UserGroup, 0, len(memberships))
	for _, membership := range memberships {
		entry := UserGroup{Group: membership.Group, Membership: membership}
		entry.Membership.Group = models.Group{}

		if err := s.DB.WithContext(ctx).
			Model(&models.GroupMembership{}).
			Where("group_id = ?", membership.GroupID).
			Count(&entry.MemberCount).Error; err != nil {
			return nil, err
		}

		unread := s.DB.WithContext(ctx).
			Model(&models.Message{}).
			Where("group_id = ?", membership.GroupID)
		if membership.LastReadAt != nil {
			unread = unread.Where("created_at > ?", *membership.LastReadAt)
		}
		if err := unread.Count(&entry.UnreadCount).Error; err != nil {
			return nil, err
		}

		entry.LatestMessage, err = s.latestMessage(ctx, membership.GroupID)
		if err != nil {
			return nil, err
		}

		result = append(result, entry)
	}

	sortUserGroups(result)
	return result, nil
}

type GroupMemberInfo struct {
	MemberID  uuid.UUID                  `json:"memberID"`
	Email     string                     `json:"email"`
	FirstName string                     `json:"firstName"`
	LastName  string                     `json:"lastName"`
	AvatarURL *string                    `json:"avatarURL,omitempty"`
	GroupRole models.GroupMembershipRole `json:"groupRole"`
	JoinedAt  time.Time                  `json:"joinedAt"`
}

func (s *GroupService) GetMembers(ctx context.Context, groupID uuid.UUID) ([]GroupMemberInfo, error) {
	if _, err := s.loadActiveGroup(ctx, groupID); err != nil {
		return nil, err
	}

	var memberships []models.GroupMembership
	err := s.DB.WithContext(ctx).
		Preload("Member").
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	members := make([]GroupMemberInfo, 0, len(memberships))
	for _, membership := range memberships {
		members = append(members, GroupMemberInfo{
			MemberID:  membership.MemberID,
			Email:     membership.Member.Email,
			FirstName: membership.Member.FirstName,
			LastName:  membership.Member.LastName,
			AvatarURL: membership.Member.AvatarURL,
			GroupRole: membership.Role,
			JoinedAt:  membership.CreatedAt,
		})
	}
	return members, nil
}

func (s *GroupService) loadActiveGroup(ctx context.Context, groupID uuid.UUID) (*models.Group, error) {
	var group models.Group
	err := s.DB.WithContext(ctx).First(&group, "id = ?", groupID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Group not found")
		}
		return nil, err
	}
	if !group.Active {
		return nil, apperr.NotFound("Group not found")
	}
	return &group, nil
}

func (s *GroupService) latestMessage(ctx context.Context, groupID uuid.UUID) (*MessagePreview, error) {
	var message models.Message
	err := s.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &MessagePreview{
		ID:         message.ID,
		Content:    message.Content,
		SenderName: message.SenderName,
		CreatedAt:  message.CreatedAt,
	}, nil
}

// sortUserGroups orders pinned groups first, then by latest activity
// (latest message time, falling back to group creation) descending.
func sortUserGroups(groups []UserGroup) {
	activity := func(g UserGroup) time.Time {
		if g.LatestMessage != nil {
			return g.LatestMessage.CreatedAt
		}
		return g.Group.CreatedAt
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Membership.IsPinned != groups[j].Membership.IsPinned {
			return groups[i].Membership.IsPinned
		}
		return activity(groups[i]).After(activity(groups[j]))
	})
}

func insertSystemMessage(tx *gorm.DB, groupID uuid.UUID, actor *models.Member, content string) error {
	message := models.Message{
		GroupID:    groupID,
		SenderID:   actor.ID,
		SenderName: actor.DisplayName(),
		Content:    content,
		Type:       models.MessageTypeSystem,
	}
	return tx.Create(&message).Error
}
