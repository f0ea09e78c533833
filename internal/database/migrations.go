package database

import (
	"gorm.io/gorm"

	"github.com/roastery/accounts/internal/models"
)

// AutoMigrate creates or updates the database schema for all models. The
// unique index on users.email is the authoritative duplicate-email guard;
// the application-level pre-check is only a fast path.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
	)
}
