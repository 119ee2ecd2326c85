package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is a registered player.
type User struct {
	BaseModel

	Gamertag    string `gorm:"type:varchar(32);not null" json:"gamertag"`
	GamertagKey string `gorm:"type:varchar(32);uniqueIndex;not null" json:"-"`
	Email       string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password    string `gorm:"not null" json:"-"`

	Bio       string `gorm:"type:text" json:"bio"`
	AvatarURL string `gorm:"type:text" json:"avatar_url"`
	AvatarKey string `gorm:"type:varchar(255)" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"-"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// NormaliseGamertag returns the case-folded form used for uniqueness and lookup.
func NormaliseGamertag(gamertag string) string {
	return strings.ToLower(strings.TrimSpace(gamertag))
}

// NormaliseEmail lower-cases and trims an email address.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BeforeSave keeps the lookup columns in step with the display values.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.GamertagKey = NormaliseGamertag(u.Gamertag)
	u.Email = NormaliseEmail(u.Email)
	return nil
}
