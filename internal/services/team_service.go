package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
	apperrors "github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/logger"
)

const (
	minTeamNameLength = 2
	maxTeamNameLength = 64
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	CaptainID string
	Name      string
	Tag       string
}

// TeamMemberView is a roster entry.
type TeamMemberView struct {
	UserID    string    `json:"user_id"`
	Gamertag  string    `json:"gamertag"`
	AvatarURL string    `json:"avatar_url"`
	IsCaptain bool      `json:"is_captain"`
	JoinedAt  time.Time `json:"joined_at"`
}

// TeamView is a team with its roster.
type TeamView struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Tag             string           `json:"tag"`
	CaptainID       string           `json:"captain_id"`
	CaptainGamertag string           `json:"captain_gamertag"`
	CreatedAt       time.Time        `json:"created_at"`
	Members         []TeamMemberView `json:"members"`
}

// TeamService handles team lifecycle and membership management.
type TeamService struct {
	db            *gorm.DB
	notifications *NotificationService
	publisher     realtime.Publisher
	audit         *AuditService
	now           func() time.Time
	log           *zap.Logger
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB, notifications *NotificationService, publisher realtime.Publisher, audit *AuditService) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	return &TeamService{
		db:            db,
		notifications: notifications,
		publisher:     publisher,
		audit:         audit,
		now:           time.Now,
		log:           logger.WithModule("teams"),
	}, nil
}

// Create registers a team with the creator as captain and first member.
func (s *TeamService) Create(ctx context.Context, input CreateTeamInput) (*TeamView, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if n := runeLength(name); n < minTeamNameLength || n > maxTeamNameLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("team name must be %d-%d characters", minTeamNameLength, maxTeamNameLength))
	}
	tag := strings.TrimSpace(input.Tag)
	if n := runeLength(tag); n < 1 || n > models.MaxTeamTagLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("team tag must be 1-%d characters", models.MaxTeamTagLength))
	}

	var captain models.User
	err := s.db.WithContext(ctx).Take(&captain, "id = ?", input.CaptainID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load captain: %w", err)
	}

	team := &models.Team{
		Name:            name,
		Tag:             tag,
		CaptainID:       captain.ID,
		CaptainGamertag: captain.Gamertag,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(team).Error; err != nil {
			return err
		}
		return tx.Create(&models.TeamMember{
			TeamID:   team.ID,
			UserID:   captain.ID,
			JoinedAt: s.now().UTC(),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("team service: create team: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.create",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"name": team.Name, "tag": team.Tag},
	})

	return s.Get(ctx, team.ID)
}

// Get loads a team with its roster.
func (s *TeamService) Get(ctx context.Context, teamID string) (*TeamView, error) {
	ctx = ensureContext(ctx)
	var team models.Team
	err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("Members.User").
		Take(&team, "id = ?", strings.TrimSpace(teamID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}
	view := mapTeam(team)
	return &view, nil
}

// ListForUser returns every team the user is a member of.
func (s *TeamService) ListForUser(ctx context.Context, userID string) ([]TeamView, error) {
	ctx = ensureContext(ctx)
	var teams []models.Team
	if err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&models.TeamMember{}).Select("team_id").Where("user_id = ?", userID)).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("joined_at ASC") }).
		Preload("Members.User").
		Order("created_at DESC").
		Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("team service: list teams: %w", err)
	}

	views := make([]TeamView, 0, len(teams))
	for _, team := range teams {
		views = append(views, mapTeam(team))
	}
	return views, nil
}

// IsMember reports whether userID belongs to teamID.
func (s *TeamService) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	return isTeamMember(s.db.WithContext(ensureContext(ctx)), teamID, userID)
}

// Leave removes the caller from a team. Captains must delete the team instead.
func (s *TeamService) Leave(ctx context.Context, teamID, userID string) error {
	ctx = ensureContext(ctx)

	team, err := s.load(ctx, teamID)
	if err != nil {
		return err
	}
	if team.CaptainID == userID {
		return ErrTeamCaptainCannotLeave
	}

	if err := s.removeMembership(ctx, team.ID, userID); err != nil {
		return err
	}

	s.publishRoster(ctx, team.ID, "team.member_left", map[string]any{"team_id": team.ID, "user_id": userID})
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.leave",
		Resource: team.ID,
		Result:   "success",
	})
	return nil
}

// RemoveMember lets the captain remove another player from the team.
func (s *TeamService) RemoveMember(ctx context.Context, teamID, captainID, memberID string) error {
	ctx = ensureContext(ctx)

	team, err := s.load(ctx, teamID)
	if err != nil {
		return err
	}
	if team.CaptainID != captainID {
		return ErrTeamForbidden
	}
	if memberID == team.CaptainID {
		return ErrTeamCannotRemoveCaptain
	}

	if err := s.removeMembership(ctx, team.ID, memberID); err != nil {
		return err
	}

	s.notify(ctx, CreateNotificationInput{
		UserID:   memberID,
		Type:     models.NotificationTypeTeamRemoved,
		Message:  fmt.Sprintf("You have been removed from the team: %s", team.Name),
		Link:     "/teams",
		Metadata: map[string]any{"team_id": team.ID},
	})
	s.publishRoster(ctx, team.ID, "team.member_removed", map[string]any{"team_id": team.ID, "user_id": memberID})
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.remove_member",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"user_id": memberID},
	})
	return nil
}

// Delete disbands a team, removing memberships and invitations. Captain only.
func (s *TeamService) Delete(ctx context.Context, teamID, userID string) error {
	ctx = ensureContext(ctx)

	team, err := s.load(ctx, teamID)
	if err != nil {
		return err
	}
	if team.CaptainID != userID {
		return ErrTeamForbidden
	}

	var memberIDs []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.TeamMember{}).
			Where("team_id = ? AND user_id <> ?", team.ID, team.CaptainID).
			Pluck("user_id", &memberIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.TeamMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Team{}, "id = ?", team.ID).Error
	})
	if err != nil {
		return fmt.Errorf("team service: delete team: %w", err)
	}

	for _, memberID := range memberIDs {
		s.notify(ctx, CreateNotificationInput{
			UserID:   memberID,
			Type:     models.NotificationTypeTeamRemoved,
			Message:  fmt.Sprintf("The team %s has been disbanded.", team.Name),
			Link:     "/teams",
			Metadata: map[string]any{"team_id": team.ID},
		})
	}
	if s.publisher != nil {
		s.publisher.BroadcastToUsers(realtime.StreamTeams, append(memberIDs, team.CaptainID), realtime.Message{
			Event: "team.deleted",
			Data:  map[string]any{"team_id": team.ID},
		})
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.delete",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"name": team.Name},
	})
	return nil
}

func (s *TeamService) load(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	err := s.db.WithContext(ctx).Take(&team, "id = ?", strings.TrimSpace(teamID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}
	return &team, nil
}

func (s *TeamService) removeMembership(ctx context.Context, teamID, userID string) error {
	result := s.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&models.TeamMember{})
	if result.Error != nil {
		return fmt.Errorf("team service: remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTeamMemberNotFound
	}
	return nil
}

func (s *TeamService) notify(ctx context.Context, input CreateNotificationInput) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Create(ctx, input); err != nil {
		s.log.Warn("failed to create notification", zap.String("user_id", input.UserID), zap.Error(err))
	}
}

// publishRoster tells the current members that the roster changed.
func (s *TeamService) publishRoster(ctx context.Context, teamID, event string, data map[string]any) {
	publishRoster(ctx, s.db, s.publisher, teamID, event, data)
}

func publishRoster(ctx context.Context, db *gorm.DB, publisher realtime.Publisher, teamID, event string, data map[string]any) {
	if publisher == nil {
		return
	}
	var memberIDs []string
	if err := db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ?", teamID).
		Pluck("user_id", &memberIDs).Error; err != nil {
		return
	}
	publisher.BroadcastToUsers(realtime.StreamTeams, memberIDs, realtime.Message{Event: event, Data: data})
}

func isTeamMember(db *gorm.DB, teamID, userID string) (bool, error) {
	var count int64
	if err := db.Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("team service: check membership: %w", err)
	}
	return count > 0, nil
}

func mapTeam(team models.Team) TeamView {
	view := TeamView{
		ID:              team.ID,
		Name:            team.Name,
		Tag:             team.Tag,
		CaptainID:       team.CaptainID,
		CaptainGamertag: team.CaptainGamertag,
		CreatedAt:       team.CreatedAt,
		Members:         make([]TeamMemberView, 0, len(team.Members)),
	}
	for _, member := range team.Members {
		entry := TeamMemberView{
			UserID:    member.UserID,
			IsCaptain: member.UserID == team.CaptainID,
			JoinedAt:  member.JoinedAt,
		}
		if member.User != nil {
			entry.Gamertag = member.User.Gamertag
			entry.AvatarURL = member.User.AvatarURL
		}
		view.Members = append(view.Members, entry)
	}
	return view
}
