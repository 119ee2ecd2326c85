package models

import "time"

// MatchMessage is a chat line in a match lobby.
type MatchMessage struct {
	ID             string    `gorm:"primaryKey;type:uuid;index:idx_match_messages_match_created,priority:3" json:"id"`
	ChallengeID    string    `gorm:"type:uuid;not null;index:idx_match_messages_match_created,priority:1" json:"match_id"`
	SenderID       string    `gorm:"type:uuid;not null" json:"sender_id"`
	SenderGamertag string    `gorm:"type:varchar(32);not null" json:"sender_gamertag"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	CreatedAt      time.Time `gorm:"index:idx_match_messages_match_created,priority:2" json:"created_at"`

	Challenge *Challenge `gorm:"foreignKey:ChallengeID;constraint:OnDelete:CASCADE" json:"-"`
}
