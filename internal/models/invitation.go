package models

import "time"

const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusDeclined = "declined"
)

// Invitation asks a player to join a team.
type Invitation struct {
	BaseModel

	TeamID     string `gorm:"type:uuid;not null;index" json:"team_id"`
	TeamName   string `gorm:"type:varchar(64);not null" json:"team_name"`
	FromUserID string `gorm:"type:uuid;not null;index" json:"from_user_id"`
	ToUserID   string `gorm:"type:uuid;not null;index" json:"to_user_id"`
	Status     string `gorm:"type:varchar(16);not null;index" json:"status"`

	RespondedAt *time.Time `json:"responded_at,omitempty"`

	Team     *Team `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"-"`
	FromUser *User `gorm:"foreignKey:FromUserID" json:"-"`
	ToUser   *User `gorm:"foreignKey:ToUserID" json:"-"`
}
