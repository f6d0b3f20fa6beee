package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/clubhub/backend/internal/database"
	"github.com/clubhub/backend/internal/middleware"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/internal/permissions"
	"github.com/clubhub/backend/internal/services"
	"github.com/clubhub/backend/pkg/logger"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	groups   *services.GroupService
	messages *services.MessageService
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

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

	engine := permissions.NewEngine(db)
	groupService := services.NewGroupService(db, engine)
	messageService := services.NewMessageService(db, engine)

	authHandler := NewAuthHandler(db)
	membersHandler := NewMembersHandler(db)
	groupsHandler := NewGroupsHandler(groupService)
	messagesHandler := NewMessagesHandler(messageService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 100 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	api.Get("/members/search", authMiddleware.RequireAuth, membersHandler.Search)

	memberRoutes := api.Group("/members", authMiddleware.RequireAuth, middleware.AdminOnly)
	memberRoutes.Get("/", membersHandler.List)
	memberRoutes.Get("/:id", membersHandler.Get)
	memberRoutes.Put("/:id", membersHandler.Update)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/mine", groupsHandler.ListMine)
	groupRoutes.Get("/type/:type", groupsHandler.ListByType)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Get("/:id/members", groupsHandler.ListMembers)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:memberId", groupsHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:memberId", groupsHandler.UpdateMemberRole)
	groupRoutes.Post("/:id/leave", groupsHandler.Leave)
	groupRoutes.Put("/:id/membership", groupsHandler.UpdateMembershipSettings)
	groupRoutes.Post("/:id/messages", messagesHandler.Send)
	groupRoutes.Get("/:id/messages", messagesHandler.ListByGroup)
	groupRoutes.Get("/:id/messages/search", messagesHandler.Search)
	groupRoutes.Post("/:id/read", messagesHandler.MarkAsRead)

	messageRoutes := api.Group("/messages", authMiddleware.RequireAuth)
	messageRoutes.Get("/unread-count", messagesHandler.UnreadCount)
	messageRoutes.Get("/:id", messagesHandler.Get)
	messageRoutes.Put("/:id", messagesHandler.Edit)
	messageRoutes.Delete("/:id", messagesHandler.Delete)
	messageRoutes.Post("/:id/reactions", messagesHandler.AddReaction)
	messageRoutes.Delete("/:id/reactions/:emoji", messagesHandler.RemoveReaction)

	return &testEnv{app: app, db: db, groups: groupService, messages: messageService}
}

func createAuthedMember(t *testing.T, db *gorm.DB, firstName string, role models.MemberRole) (*models.Member, string) {
	t.Helper()

	hash, err := utils.HashPassword("correct-horse-battery")
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	member := &models.Member{
		Email:              firstName + "-" + uuid.NewString()[:8] + "@club.test",
		PasswordHash:       hash,
		FirstName:          firstName,
		LastName:           "Tester",
		Role:               role,
		SubscriptionStatus: models.SubscriptionActive,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed creating test member: %v", err)
	}

	token, err := utils.GenerateToken(member)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return member, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

// createGroupViaAPI drives the create endpoint and returns the new id.
func createGroupViaAPI(t *testing.T, env *testEnv, token, name string, payload map[string]any) uuid.UUID {
	t.Helper()

	if payload == nil {
		payload = map[string]any{}
	}
	payload["name"] = name
	if _, ok := payload["type"]; !ok {
		payload["type"] = string(models.GroupTypeSubGroup)
	}

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/groups/", payload, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	body := decodeJSONMap(t, resp)

	data, _ := body["data"].(map[string]any)
	raw, _ := data["id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		t.Fatalf("failed parsing group id from response %+v: %v", body, err)
	}
	return id
}
