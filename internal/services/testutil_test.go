package services

import (
	"context"
	"testing"
	"time"

	"github.com/clubhub/backend/internal/database"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/internal/permissions"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	return db
}

func setupServices(t *testing.T) (*gorm.DB, *GroupService, *MessageService) {
	t.Helper()

	db := setupTestDB(t)
	engine := permissions.NewEngine(db)
	return db, NewGroupService(db, engine), NewMessageService(db, engine)
}

func createTestMember(t *testing.T, db *gorm.DB, firstName string, role models.MemberRole, status models.SubscriptionStatus) *models.Member {
	t.Helper()

	member := &models.Member{
		Email:              firstName + "-" + uuid.NewString()[:8] + "@club.test",
		PasswordHash:       "not-a-real-hash",
		FirstName:          firstName,
		LastName:           "Tester",
		Role:               role,
		SubscriptionStatus: status,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed creating test member: %v", err)
	}
	return member
}

func createTestGroup(t *testing.T, svc *GroupService, ownerID uuid.UUID, name string, input CreateGroupInput) *models.Group {
	t.Helper()

	input.Name = name
	if input.Type == "" {
		input.Type = models.GroupTypeSubGroup
	}
	group, err := svc.Create(context.Background(), ownerID, input)
	if err != nil {
		t.Fatalf("failed creating test group %q: %v", name, err)
	}
	return group
}

func sendTestMessage(t *testing.T, svc *MessageService, groupID, senderID uuid.UUID, content string) *models.Message {
	t.Helper()

	message, err := svc.Send(context.Background(), groupID, senderID, SendMessageInput{Content: content})
	if err != nil {
		t.Fatalf("failed sending test message %q: %v", content, err)
	}
	return message
}

// backdateMessage shifts a message's creation time, for ordering and
// read-cursor tests.
func backdateMessage(t *testing.T, db *gorm.DB, messageID uuid.UUID, createdAt time.Time) {
	t.Helper()

	err := db.Model(&models.Message{}).
		Where("id = ?", messageID).
		UpdateColumn("created_at", createdAt).Error
	if err != nil {
		t.Fatalf("failed backdating message: %v", err)
	}
}
