package database

import (
	"fmt"

	"github.com/clubhub/backend/internal/config"
	"github.com/clubhub/backend/internal/models"
	"github.com/clubhub/backend/pkg/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := seedAdminMember(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Member{},
		&models.Group{},
		&models.GroupMembership{},
		&models.Message{},
		&models.Attachment{},
		&models.Reaction{},
		&models.MessageRead{},
	)
}

func seedAdminMember(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Member{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.Member{
		Email:              "admin@clubhub.local",
		PasswordHash:       hash,
		FirstName:          "System",
		LastName:           "Admin",
		Role:               models.MemberRoleAdmin,
		SubscriptionStatus: models.SubscriptionActive,
	}

	return db.Create(&admin).Error
}
