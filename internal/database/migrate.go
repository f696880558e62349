package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/models"
)

// Migrate creates or updates the portal tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Assignment{},
		&models.Submission{},
		&models.SubmissionGradeHistory{},
		&models.Notification{},
		&models.ActivityLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
