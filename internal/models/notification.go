package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationTypeTeamInvite      = "team.invite"
	NotificationTypeTeamJoined      = "team.joined"
	NotificationTypeTeamRemoved     = "team.removed"
	NotificationTypeChallengeAccept = "challenge.accepted"
	NotificationTypeMatchComplete   = "match.completed"
	NotificationTypeGeneric         = "generic"
)

// Notification is an in-app message for a single user.
type Notification struct {
	BaseModel

	UserID   string         `gorm:"type:uuid;not null;index:idx_notifications_user_read,priority:1" json:"user_id"`
	Type     string         `gorm:"type:varchar(64);not null" json:"type"`
	Message  string         `gorm:"type:text;not null" json:"message"`
	Link     string         `gorm:"type:text" json:"link"`
	Metadata datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"default:false;index:idx_notifications_user_read,priority:2" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}
