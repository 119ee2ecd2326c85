package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/models"
)

// AutoMigrate creates or updates the schema for every persistent model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Challenge{},
		&models.MatchMessage{},
		&models.Team{},
		&models.TeamMember{},
		&models.Invitation{},
		&models.Notification{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// backfillGamertagKeys fills the case-folded lookup column for rows written
// before it existed.
func backfillGamertagKeys(db *gorm.DB) error {
	var users []models.User
	if err := db.Where("gamertag_key = '' OR gamertag_key IS NULL").Find(&users).Error; err != nil {
		return err
	}
	for i := range users {
		key := models.NormaliseGamertag(users[i].Gamertag)
		if err := db.Model(&models.User{}).
			Where("id = ?", users[i].ID).
			UpdateColumn("gamertag_key", key).Error; err != nil {
			return err
		}
	}
	return nil
}

// ensurePendingInvitationIndex allows at most one pending invitation per team
// and player. MySQL has no partial indexes, so there the service-level check
// is the only guard.
func ensurePendingInvitationIndex(db *gorm.DB) error {
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	return db.Exec(fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_pending ON invitations (team_id, to_user_id) WHERE status = '%s'",
		models.InvitationStatusPending,
	)).Error
}
