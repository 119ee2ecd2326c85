package models

import "time"

const (
	ChallengeStatusOpen      = "open"
	ChallengeStatusAccepted  = "accepted"
	ChallengeStatusCompleted = "completed"
	ChallengeStatusCancelled = "cancelled"
)

const (
	ChallengeType1v1  = "1v1"
	ChallengeType2v2  = "2v2"
	ChallengeType5v5  = "5v5 Team"
	DefaultChallenge  = ChallengeType1v1
	MaxGameNameLength = 64
)

// ChallengeTypes lists the match formats a challenge can be posted with.
var ChallengeTypes = []string{ChallengeType1v1, ChallengeType2v2, ChallengeType5v5}

// Challenge is an open match request. Once accepted it doubles as the match.
type Challenge struct {
	BaseModel

	CreatorID       string `gorm:"type:uuid;not null;index" json:"creator_id"`
	CreatorGamertag string `gorm:"type:varchar(32);not null" json:"creator_gamertag"`
	Game            string `gorm:"type:varchar(64);not null" json:"game"`
	Type            string `gorm:"type:varchar(16);not null" json:"type"`
	Status          string `gorm:"type:varchar(16);not null;index" json:"status"`

	AccepterID       *string `gorm:"type:uuid;index" json:"accepter_id,omitempty"`
	AccepterGamertag string  `gorm:"type:varchar(32)" json:"accepter_gamertag,omitempty"`

	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// IsParticipant reports whether userID is the creator or the accepter.
func (c *Challenge) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	if c.CreatorID == userID {
		return true
	}
	return c.AccepterID != nil && *c.AccepterID == userID
}

// Opponent returns the other participant's id, or "" when there is none.
func (c *Challenge) Opponent(userID string) string {
	switch {
	case c.AccepterID == nil:
		return ""
	case c.CreatorID == userID:
		return *c.AccepterID
	case *c.AccepterID == userID:
		return c.CreatorID
	}
	return ""
}
