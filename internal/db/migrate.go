package db

import (
	"fmt"

	"github.com/pbimprenta/printdesk/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model owned by the conversation store.
func AllModels() []interface{} {
	return []interface{}{
		&models.Customer{},
		&models.Message{},
		&models.PendingFile{},
		&models.Order{},
		&models.Learning{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
