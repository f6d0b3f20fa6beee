package services

import (
	"context"
	"testing"
	"time"

	"github.com/clubhub/backend/internal/apperr"
	"github.com/clubhub/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !apperr.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func countMemberships(t *testing.T, db *gorm.DB, groupID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Count(&count).Error; err != nil {
		t.Fatalf("failed counting memberships: %v", err)
	}
	return count
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("creator becomes the only owner and a system message is posted", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		creator := createTestMember(t, db, "Alice", models.MemberRoleMember, models.SubscriptionActive)

		group := createTestGroup(t, groups, creator.ID, "Sparring Partners", CreateGroupInput{})

		var memberships []models.GroupMembership
		if err := db.Find(&memberships, "group_id = ?", group.ID).Error; err != nil {
			t.Fatalf("failed loading memberships: %v", err)
		}
		if len(memberships) != 1 {
			t.Fatalf("expected 1 membership, got %d", len(memberships))
		}
		if memberships[0].MemberID != creator.ID || memberships[0].Role != models.GroupRoleOwner {
			t.Fatalf("expected creator as owner, got %+v", memberships[0])
		}

		var messages []models.Message
		if err := db.Find(&messages, "group_id = ?", group.ID).Error; err != nil {
			t.Fatalf("failed loading messages: %v", err)
		}
		if len(messages) != 1 || messages[0].Type != models.MessageTypeSystem {
			t.Fatalf("expected one system message, got %+v", messages)
		}
	})

	t.Run("blank name rejected", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		creator := createTestMember(t, db, "Alice", models.MemberRoleMember, models.SubscriptionActive)

		_, err := groups.Create(ctx, creator.ID, CreateGroupInput{Name: "   ", Type: models.GroupTypeSubGroup})
		requireKind(t, err, apperr.KindValidation)
	})

	t.Run("unknown type rejected", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		creator := createTestMember(t, db, "Alice", models.MemberRoleMember, models.SubscriptionActive)

		_, err := groups.Create(ctx, creator.ID, CreateGroupInput{Name: "Mystery", Type: "secret_society"})
		requireKind(t, err, apperr.KindValidation)
	})

	t.Run("non-admin cannot create club-wide groups", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		regular := createTestMember(t, db, "Bob", models.MemberRoleMember, models.SubscriptionActive)

		_, err := groups.Create(ctx, regular.ID, CreateGroupInput{Name: "Announcements", Type: models.GroupTypeClubWide})
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("auto-join enrolls active members only", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		admin := createTestMember(t, db, "Admin", models.MemberRoleAdmin, models.SubscriptionActive)
		active := createTestMember(t, db, "Active", models.MemberRoleMember, models.SubscriptionActive)
		expired := createTestMember(t, db, "Expired", models.MemberRoleMember, models.SubscriptionExpired)

		group := createTestGroup(t, groups, admin.ID, "All Club", CreateGroupInput{
			Type:     models.GroupTypeClubWide,
			AutoJoin: true,
		})

		if got := countMemberships(t, db, group.ID); got != 2 {
			t.Fatalf("expected admin plus one active member, got %d memberships", got)
		}

		var membership models.GroupMembership
		if err := db.First(&membership, "group_id = ? AND member_id = ?", group.ID, active.ID).Error; err != nil {
			t.Fatalf("expected active member enrolled: %v", err)
		}
		if membership.Role != models.GroupRoleMember {
			t.Fatalf("expected member role for auto-joined member, got %s", membership.Role)
		}

		err := db.First(&models.GroupMembership{}, "group_id = ? AND member_id = ?", group.ID, expired.ID).Error
		if err == nil {
			t.Fatal("expected expired member to be skipped")
		}
	})
}

func TestUpdateGroup(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	outsider := createTestMember(t, db, "Outsider", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Conditioning", CreateGroupInput{})

	t.Run("owner can rename and tighten settings", func(t *testing.T) {
		name := "Conditioning Crew"
		maxMembers := 12
		updated, err := groups.Update(ctx, group.ID, owner.ID, UpdateGroupInput{
			Name:     &name,
			Settings: &models.GroupSettings{AllowFileSharing: true, MaxMembers: &maxMembers},
		})
		if err != nil {
			t.Fatalf("failed updating group: %v", err)
		}
		if updated.Name != name {
			t.Fatalf("expected renamed group, got %q", updated.Name)
		}
		if updated.Settings.MaxMembers == nil || *updated.Settings.MaxMembers != 12 {
			t.Fatalf("expected max members 12, got %+v", updated.Settings.MaxMembers)
		}
	})

	t.Run("non-manager denied", func(t *testing.T) {
		name := "Hijacked"
		_, err := groups.Update(ctx, group.ID, outsider.ID, UpdateGroupInput{Name: &name})
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("empty patch rejected", func(t *testing.T) {
		_, err := groups.Update(ctx, group.ID, owner.ID, UpdateGroupInput{})
		requireKind(t, err, apperr.KindValidation)
	})
}

func TestDeleteGroup(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	groupAdmin := createTestMember(t, db, "Deputy", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Short Lived", CreateGroupInput{})
	if err := groups.AddMember(ctx, group.ID, groupAdmin.ID, owner.ID, models.GroupRoleAdmin); err != nil {
		t.Fatalf("failed adding admin: %v", err)
	}

	t.Run("group admin cannot delete", func(t *testing.T) {
		err := groups.Delete(ctx, group.ID, groupAdmin.ID)
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("owner soft-deletes", func(t *testing.T) {
		if err := groups.Delete(ctx, group.ID, owner.ID); err != nil {
			t.Fatalf("failed deleting group: %v", err)
		}

		var stored models.Group
		if err := db.First(&stored, "id = ?", group.ID).Error; err != nil {
			t.Fatalf("expected group row to survive: %v", err)
		}
		if stored.Active {
			t.Fatal("expected group to be inactive")
		}

		_, err := groups.GetByID(ctx, group.ID)
		requireKind(t, err, apperr.KindNotFound)
	})
}

func TestAddMember(t *testing.T) {
	ctx := context.Background()

	t.Run("manager adds a member and a system message is posted", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
		newcomer := createTestMember(t, db, "Newcomer", models.MemberRoleMember, models.SubscriptionActive)
		group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})

		if err := groups.AddMember(ctx, group.ID, newcomer.ID, owner.ID, ""); err != nil {
			t.Fatalf("failed adding member: %v", err)
		}
		if got := countMemberships(t, db, group.ID); got != 2 {
			t.Fatalf("expected 2 memberships, got %d", got)
		}

		var system []models.Message
		err := db.Find(&system, "group_id = ? AND type = ?", group.ID, models.MessageTypeSystem).Error
		if err != nil || len(system) != 2 {
			t.Fatalf("expected creation plus add system messages, got %d (err=%v)", len(system), err)
		}
	})

	t.Run("duplicate add rejected", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
		newcomer := createTestMember(t, db, "Newcomer", models.MemberRoleMember, models.SubscriptionActive)
		group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})

		if err := groups.AddMember(ctx, group.ID, newcomer.ID, owner.ID, ""); err != nil {
			t.Fatalf("failed adding member: %v", err)
		}
		err := groups.AddMember(ctx, group.ID, newcomer.ID, owner.ID, "")
		requireKind(t, err, apperr.KindValidation)
	})

	t.Run("non-manager cannot add", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
		plain := createTestMember(t, db, "Plain", models.MemberRoleMember, models.SubscriptionActive)
		newcomer := createTestMember(t, db, "Newcomer", models.MemberRoleMember, models.SubscriptionActive)
		group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})
		if err := groups.AddMember(ctx, group.ID, plain.ID, owner.ID, ""); err != nil {
			t.Fatalf("failed adding member: %v", err)
		}

		err := groups.AddMember(ctx, group.ID, newcomer.ID, plain.ID, "")
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("capacity still applies to manager adds", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
		newcomer := createTestMember(t, db, "Newcomer", models.MemberRoleMember, models.SubscriptionActive)
		maxMembers := 1
		group := createTestGroup(t, groups, owner.ID, "Tiny", CreateGroupInput{
			Settings: &models.GroupSettings{MaxMembers: &maxMembers},
		})

		err := groups.AddMember(ctx, group.ID, newcomer.ID, owner.ID, "")
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("expired subscription cannot be added", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
		expired := createTestMember(t, db, "Expired", models.MemberRoleMember, models.SubscriptionExpired)
		group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})

		err := groups.AddMember(ctx, group.ID, expired.ID, owner.ID, "")
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("owner role cannot be granted on add", func(t *testing.T) {
		db, groups, _ := setupServices(t)
		owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
		newcomer := createTestMember(t, db, "Newcomer", models.MemberRoleMember, models.SubscriptionActive)
		group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})

		err := groups.AddMember(ctx, group.ID, newcomer.ID, owner.ID, models.GroupRoleOwner)
		requireKind(t, err, apperr.KindValidation)
	})
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	member := createTestMember(t, db, "Member", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})
	if err := groups.AddMember(ctx, group.ID, member.ID, owner.ID, ""); err != nil {
		t.Fatalf("failed adding member: %v", err)
	}

	t.Run("owner cannot be removed", func(t *testing.T) {
		err := groups.RemoveMember(ctx, group.ID, owner.ID, owner.ID)
		requireKind(t, err, apperr.KindInvariant)
	})

	t.Run("manager removes a member", func(t *testing.T) {
		if err := groups.RemoveMember(ctx, group.ID, member.ID, owner.ID); err != nil {
			t.Fatalf("failed removing member: %v", err)
		}
		if got := countMemberships(t, db, group.ID); got != 1 {
			t.Fatalf("expected only the owner left, got %d memberships", got)
		}
	})

	t.Run("removing a non-member fails", func(t *testing.T) {
		err := groups.RemoveMember(ctx, group.ID, member.ID, owner.ID)
		requireKind(t, err, apperr.KindNotFound)
	})
}

func TestUpdateMemberRole(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	member := createTestMember(t, db, "Member", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})
	if err := groups.AddMember(ctx, group.ID, member.ID, owner.ID, ""); err != nil {
		t.Fatalf("failed adding member: %v", err)
	}

	t.Run("owner promotes a member to admin", func(t *testing.T) {
		if err := groups.UpdateMemberRole(ctx, group.ID, member.ID, models.GroupRoleAdmin, owner.ID); err != nil {
			t.Fatalf("failed promoting member: %v", err)
		}
		var membership models.GroupMembership
		if err := db.First(&membership, "group_id = ? AND member_id = ?", group.ID, member.ID).Error; err != nil {
			t.Fatalf("failed loading membership: %v", err)
		}
		if membership.Role != models.GroupRoleAdmin {
			t.Fatalf("expected admin role, got %s", membership.Role)
		}
	})

	t.Run("only the owner may change roles", func(t *testing.T) {
		err := groups.UpdateMemberRole(ctx, group.ID, owner.ID, models.GroupRoleMember, member.ID)
		requireKind(t, err, apperr.KindPermissionDenied)
	})

	t.Run("ownership is not assignable", func(t *testing.T) {
		err := groups.UpdateMemberRole(ctx, group.ID, member.ID, models.GroupRoleOwner, owner.ID)
		requireKind(t, err, apperr.KindInvariant)
	})

	t.Run("owner role cannot be changed", func(t *testing.T) {
		err := groups.UpdateMemberRole(ctx, group.ID, owner.ID, models.GroupRoleMember, owner.ID)
		requireKind(t, err, apperr.KindInvariant)
	})
}

func TestLeaveGroup(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	member := createTestMember(t, db, "Member", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})
	if err := groups.AddMember(ctx, group.ID, member.ID, owner.ID, ""); err != nil {
		t.Fatalf("failed adding member: %v", err)
	}

	t.Run("owner cannot leave", func(t *testing.T) {
		err := groups.Leave(ctx, group.ID, owner.ID)
		requireKind(t, err, apperr.KindInvariant)
	})

	t.Run("member leaves and a system message is posted", func(t *testing.T) {
		if err := groups.Leave(ctx, group.ID, member.ID); err != nil {
			t.Fatalf("failed leaving group: %v", err)
		}
		if got := countMemberships(t, db, group.ID); got != 1 {
			t.Fatalf("expected only the owner left, got %d memberships", got)
		}

		var latest models.Message
		err := db.Where("group_id = ?", group.ID).Order("created_at DESC").First(&latest).Error
		if err != nil {
			t.Fatalf("failed loading latest message: %v", err)
		}
		if latest.Type != models.MessageTypeSystem {
			t.Fatalf("expected system message, got %s", latest.Type)
		}
	})

	t.Run("leaving twice fails", func(t *testing.T) {
		err := groups.Leave(ctx, group.ID, member.ID)
		requireKind(t, err, apperr.KindNotFound)
	})
}

func TestUpdateMembershipSettings(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})

	muted := true
	pinned := true
	updated, err := groups.UpdateMembershipSettings(ctx, group.ID, owner.ID, MembershipSettingsInput{
		IsMuted:  &muted,
		IsPinned: &pinned,
	})
	if err != nil {
		t.Fatalf("failed updating membership settings: %v", err)
	}
	if !updated.IsMuted || !updated.IsPinned {
		t.Fatalf("expected muted and pinned, got %+v", updated)
	}

	_, err = groups.UpdateMembershipSettings(ctx, group.ID, owner.ID, MembershipSettingsInput{})
	requireKind(t, err, apperr.KindValidation)

	_, err = groups.UpdateMembershipSettings(ctx, group.ID, uuid.New(), MembershipSettingsInput{IsMuted: &muted})
	requireKind(t, err, apperr.KindNotFound)
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	db, groups, messages := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})
	sent := sendTestMessage(t, messages, group.ID, owner.ID, "latest words")

	detail, err := groups.GetByID(ctx, group.ID)
	if err != nil {
		t.Fatalf("failed loading group detail: %v", err)
	}
	if detail.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %d", detail.MemberCount)
	}
	if detail.LatestMessage == nil || detail.LatestMessage.ID != sent.ID {
		t.Fatalf("expected latest message preview for %s, got %+v", sent.ID, detail.LatestMessage)
	}

	_, err = groups.GetByID(ctx, uuid.New())
	requireKind(t, err, apperr.KindNotFound)
}

func TestGetUserGroups(t *testing.T) {
	ctx := context.Background()
	db, groups, messages := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	reader := createTestMember(t, db, "Reader", models.MemberRoleMember, models.SubscriptionActive)

	quiet := createTestGroup(t, groups, owner.ID, "Quiet", CreateGroupInput{})
	busy := createTestGroup(t, groups, owner.ID, "Busy", CreateGroupInput{})
	pinnedGroup := createTestGroup(t, groups, owner.ID, "Pinned", CreateGroupInput{})
	for _, g := range []*models.Group{quiet, busy, pinnedGroup} {
		if err := groups.AddMember(ctx, g.ID, reader.ID, owner.ID, ""); err != nil {
			t.Fatalf("failed adding reader to %s: %v", g.Name, err)
		}
	}

	sendTestMessage(t, messages, pinnedGroup.ID, owner.ID, "old pinned chatter")
	sendTestMessage(t, messages, busy.ID, owner.ID, "fresh news")

	// Spread activity so ordering by latest message is deterministic.
	base := time.Now().UTC().Add(-time.Hour)
	for offset, groupID := range map[time.Duration]uuid.UUID{
		0:                quiet.ID,
		10 * time.Minute: pinnedGroup.ID,
		30 * time.Minute: busy.ID,
	} {
		err := db.Model(&models.Message{}).
			Where("group_id = ?", groupID).
			UpdateColumn("created_at", base.Add(offset)).Error
		if err != nil {
			t.Fatalf("failed backdating group messages: %v", err)
		}
	}

	pinned := true
	if _, err := groups.UpdateMembershipSettings(ctx, pinnedGroup.ID, reader.ID, MembershipSettingsInput{IsPinned: &pinned}); err != nil {
		t.Fatalf("failed pinning group: %v", err)
	}

	list, err := groups.GetUserGroups(ctx, reader.ID)
	if err != nil {
		t.Fatalf("failed loading user groups: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(list))
	}
	if list[0].Group.ID != pinnedGroup.ID {
		t.Fatalf("expected pinned group first, got %q", list[0].Group.Name)
	}
	if list[1].Group.ID != busy.ID {
		t.Fatalf("expected busiest unpinned group second, got %q", list[1].Group.Name)
	}

	for _, entry := range list {
		if entry.MemberCount != 2 {
			t.Fatalf("expected member count 2 for %q, got %d", entry.Group.Name, entry.MemberCount)
		}
		// The reader has never marked anything read; every message counts,
		// including the membership system messages.
		if entry.UnreadCount == 0 {
			t.Fatalf("expected unread messages in %q", entry.Group.Name)
		}
	}

	if _, err := messages.MarkAsRead(ctx, busy.ID, reader.ID, nil); err != nil {
		t.Fatalf("failed marking group read: %v", err)
	}
	list, err = groups.GetUserGroups(ctx, reader.ID)
	if err != nil {
		t.Fatalf("failed reloading user groups: %v", err)
	}
	for _, entry := range list {
		if entry.Group.ID == busy.ID && entry.UnreadCount != 0 {
			t.Fatalf("expected no unread messages after marking read, got %d", entry.UnreadCount)
		}
	}
}

func TestGetMembers(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	owner := createTestMember(t, db, "Owner", models.MemberRoleMember, models.SubscriptionActive)
	member := createTestMember(t, db, "Member", models.MemberRoleMember, models.SubscriptionActive)
	group := createTestGroup(t, groups, owner.ID, "Open Mat", CreateGroupInput{})
	if err := groups.AddMember(ctx, group.ID, member.ID, owner.ID, ""); err != nil {
		t.Fatalf("failed adding member: %v", err)
	}

	infos, err := groups.GetMembers(ctx, group.ID)
	if err != nil {
		t.Fatalf("failed loading members: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 members, got %d", len(infos))
	}
	if infos[0].GroupRole != models.GroupRoleOwner || infos[0].MemberID != owner.ID {
		t.Fatalf("expected owner listed first, got %+v", infos[0])
	}
}

func TestGetByType(t *testing.T) {
	ctx := context.Background()
	db, groups, _ := setupServices(t)

	admin := createTestMember(t, db, "Admin", models.MemberRoleAdmin, models.SubscriptionActive)
	createTestGroup(t, groups, admin.ID, "Club Wide", CreateGroupInput{Type: models.GroupTypeClubWide})
	createTestGroup(t, groups, admin.ID, "Side Project", CreateGroupInput{})

	details, err := groups.GetByType(ctx, models.GroupTypeClubWide)
	if err != nil {
		t.Fatalf("failed loading groups by type: %v", err)
	}
	if len(details) != 1 || details[0].Name != "Club Wide" {
		t.Fatalf("expected only the club-wide group, got %+v", details)
	}

	_, err = groups.GetByType(ctx, "secret_society")
	requireKind(t, err, apperr.KindValidation)
}
