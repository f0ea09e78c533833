package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the sole persisted entity: an account moving through the
// unverified -> verified lifecycle with optional password-reset state.
type User struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`

	Verified bool `gorm:"default:false" json:"verified"`

	// VerificationToken is present only between registration and successful
	// verification; NULL once the address is confirmed.
	VerificationToken *string `gorm:"index" json:"-"`

	// ResetToken and ResetTokenExpires are present only during an active
	// password-reset window. Both cleared on successful redemption.
	ResetToken        *string    `gorm:"index" json:"-"`
	ResetTokenExpires *time.Time `json:"-"`

	ProfilePic string `json:"profile_pic,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
