package models

import "time"

const MaxTeamTagLength = 5

// Team is a named group of players led by a captain.
type Team struct {
	BaseModel

	Name            string `gorm:"type:varchar(64);not null" json:"name"`
	Tag             string `gorm:"type:varchar(5);not null" json:"tag"`
	CaptainID       string `gorm:"type:uuid;not null;index" json:"captain_id"`
	CaptainGamertag string `gorm:"type:varchar(32);not null" json:"captain_gamertag"`

	Members []TeamMember `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// TeamMember links a user to a team. The captain is always a member.
type TeamMember struct {
	TeamID   string    `gorm:"primaryKey;type:uuid" json:"team_id"`
	UserID   string    `gorm:"primaryKey;type:uuid;index" json:"user_id"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
