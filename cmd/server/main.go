package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clubhub/backend/internal/config"
	"github.com/clubhub/backend/internal/database"
	"github.com/clubhub/backend/internal/handlers"
	"github.com/clubhub/backend/internal/middleware"
	"github.com/clubhub/backend/internal/permissions"
	"github.com/clubhub/backend/internal/services"
	"github.com/clubhub/backend/internal/storage"
	"github.com/clubhub/backend/pkg/logger"
	"github.com/clubhub/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	logger.Init()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	if err := storageClient.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring minio bucket: %v", err)
	}

	engine := permissions.NewEngine(db)
	groupService := services.NewGroupService(db, engine)
	messageService := services.NewMessageService(db, engine)

	authHandler := handlers.NewAuthHandler(db)
	membersHandler := handlers.NewMembersHandler(db)
	groupsHandler := handlers.NewGroupsHandler(groupService)
	messagesHandler := handlers.NewMessagesHandler(messageService)
	attachmentsHandler := handlers.NewAttachmentsHandler(storageClient)

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

	api.Post("/attachments", authMiddleware.RequireAuth, attachmentsHandler.Upload)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
