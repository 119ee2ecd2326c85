package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
	"github.com/charlesng35/arenahub/pkg/logger"
	"github.com/charlesng35/arenahub/pkg/mail"
	"github.com/charlesng35/arenahub/pkg/metrics"
)

// InviteInput asks a player, identified by gamertag, to join a team.
type InviteInput struct {
	TeamID     string
	FromUserID string
	Gamertag   string
}

// InvitationView is an invitation with the names a client needs to render it.
type InvitationView struct {
	ID           string     `json:"id"`
	TeamID       string     `json:"team_id"`
	TeamName     string     `json:"team_name"`
	TeamTag      string     `json:"team_tag"`
	FromUserID   string     `json:"from_user_id"`
	FromGamertag string     `json:"from_gamertag"`
	ToUserID     string     `json:"to_user_id"`
	ToGamertag   string     `json:"to_gamertag"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
}

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationMailer emails invitees in addition to the in-app notification.
// baseURL is used to build the link in the email body.
func WithInvitationMailer(mailer mail.Mailer, baseURL string) InvitationOption {
	return func(s *InvitationService) {
		s.mailer = mailer
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService manages team invitations.
type InvitationService struct {
	db            *gorm.DB
	notifications *NotificationService
	publisher     realtime.Publisher
	audit         *AuditService
	mailer        mail.Mailer
	baseURL       string
	now           func() time.Time
	log           *zap.Logger
}

// NewInvitationService constructs an InvitationService with the provided dependencies.
func NewInvitationService(db *gorm.DB, notifications *NotificationService, publisher realtime.Publisher, audit *AuditService, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if notifications == nil {
		return nil, errors.New("invitation service: notification service is required")
	}

	svc := &InvitationService{
		db:            db,
		notifications: notifications,
		publisher:     publisher,
		audit:         audit,
		now:           time.Now,
		log:           logger.WithModule("invitations"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Invite creates a pending invitation and notifies the invitee. Only the
// team captain may invite.
func (s *InvitationService) Invite(ctx context.Context, input InviteInput) (*InvitationView, error) {
	ctx = ensureContext(ctx)

	team, err := s.loadTeam(s.db.WithContext(ctx), input.TeamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != input.FromUserID {
		return nil, ErrTeamForbidden
	}

	key := models.NormaliseGamertag(input.Gamertag)
	if key == "" {
		return nil, ErrPlayerNotFound
	}
	var invitee models.User
	err = s.db.WithContext(ctx).Take(&invitee, "gamertag_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: find player: %w", err)
	}

	invitation := &models.Invitation{
		TeamID:     team.ID,
		TeamName:   team.Name,
		FromUserID: input.FromUserID,
		ToUserID:   invitee.ID,
		Status:     models.InvitationStatusPending,
	}
	var notification *models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := isTeamMember(tx, team.ID, invitee.ID)
		if err != nil {
			return err
		}
		if member {
			return ErrTeamMemberAlreadyExists
		}

		var pending int64
		if err := tx.Model(&models.Invitation{}).
			Where("team_id = ? AND to_user_id = ? AND status = ?", team.ID, invitee.ID, models.InvitationStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrInvitationPending
		}

		if err := tx.Create(invitation).Error; err != nil {
			// a concurrent invite won the race for the pending slot
			if isUniqueConstraintError(err) {
				return ErrInvitationPending
			}
			return err
		}
		notification, err = s.notifications.CreateTx(tx, CreateNotificationInput{
			UserID:   invitee.ID,
			Type:     models.NotificationTypeTeamInvite,
			Message:  fmt.Sprintf("You have been invited to join the team: %s", team.Name),
			Link:     "/invitations",
			Metadata: map[string]any{"team_id": team.ID, "invitation_id": invitation.ID},
		})
		return err
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: create invitation: %w", err)
	}

	s.notifications.Publish(notification)

	var inviter models.User
	if err := s.db.WithContext(ctx).Select("id", "gamertag").Take(&inviter, "id = ?", input.FromUserID).Error; err != nil {
		s.log.Debug("load inviter failed",
			zap.String("invitation_id", invitation.ID),
			zap.String("from_user_id", input.FromUserID),
			zap.Error(err),
		)
	}

	view := mapInvitation(*invitation, team.Tag, inviter.Gamertag, invitee.Gamertag)
	if s.publisher != nil {
		s.publisher.BroadcastToUser(realtime.StreamInvitations, invitee.ID, realtime.Message{Event: "invitation.created", Data: view})
	}
	s.sendEmail(ctx, &invitee, inviter.Gamertag, team.Name)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "invitation.create",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"team_id": team.ID, "to_user_id": invitee.ID},
	})
	return &view, nil
}

// ListPending returns pending invitations addressed to userID, newest first.
func (s *InvitationService) ListPending(ctx context.Context, userID string) ([]InvitationView, error) {
	ctx = ensureContext(ctx)
	return s.list(ctx, "invitations.to_user_id = ?", userID)
}

// ListForTeam returns a team's pending invitations. Captain only.
func (s *InvitationService) ListForTeam(ctx context.Context, teamID, userID string) ([]InvitationView, error) {
	ctx = ensureContext(ctx)
	team, err := s.loadTeam(s.db.WithContext(ctx), teamID)
	if err != nil {
		return nil, err
	}
	if team.CaptainID != userID {
		return nil, ErrTeamForbidden
	}
	return s.list(ctx, "invitations.team_id = ?", team.ID)
}

// Accept adds the invitee to the team and tells the inviter. The status flip
// and the membership insert commit together.
func (s *InvitationService) Accept(ctx context.Context, invitationID, userID string) (*InvitationView, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.loadForInvitee(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}

	var (
		team         *models.Team
		notification *models.Notification
		invitee      models.User
	)
	now := s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Invitation{}).
			Where("id = ? AND status = ?", invitation.ID, models.InvitationStatusPending).
			Updates(map[string]any{
				"status":       models.InvitationStatusAccepted,
				"responded_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInvitationAlreadyResponded
		}

		var err error
		if team, err = s.loadTeam(tx, invitation.TeamID); err != nil {
			return err
		}
		if err := tx.Select("id", "gamertag").Take(&invitee, "id = ?", userID).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.TeamMember{
			TeamID:   team.ID,
			UserID:   userID,
			JoinedAt: now,
		}).Error; err != nil {
			return err
		}

		notification, err = s.notifications.CreateTx(tx, CreateNotificationInput{
			UserID:   invitation.FromUserID,
			Type:     models.NotificationTypeTeamJoined,
			Message:  fmt.Sprintf("'%s' has joined your team: %s.", invitee.Gamertag, team.Name),
			Link:     "/teams/" + team.ID,
			Metadata: map[string]any{"team_id": team.ID, "user_id": userID},
		})
		return err
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: accept invitation: %w", err)
	}

	s.notifications.Publish(notification)
	metrics.InvitationResponses.WithLabelValues(models.InvitationStatusAccepted).Inc()

	invitation.Status = models.InvitationStatusAccepted
	invitation.RespondedAt = &now
	view := mapInvitation(*invitation, team.Tag, "", invitee.Gamertag)
	publishRoster(ctx, s.db, s.publisher, team.ID, "team.member_joined", map[string]any{"team_id": team.ID, "user_id": userID})
	s.publishResponse(invitation, view)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "invitation.accept",
		Resource: invitation.ID,
		Result:   "success",
		Metadata: map[string]any{"team_id": team.ID},
	})
	return &view, nil
}

// Decline rejects a pending invitation.
func (s *InvitationService) Decline(ctx context.Context, invitationID, userID string) (*InvitationView, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.loadForInvitee(ctx, invitationID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationStatusPending).
		Updates(map[string]any{
			"status":       models.InvitationStatusDeclined,
			"responded_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation service: decline invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrInvitationAlreadyResponded
	}

	metrics.InvitationResponses.WithLabelValues(models.InvitationStatusDeclined).Inc()
	invitation.Status = models.InvitationStatusDeclined
	invitation.RespondedAt = &now
	view := mapInvitation(*invitation, "", "", "")
	s.publishResponse(invitation, view)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "invitation.decline",
		Resource: invitation.ID,
		Result:   "success",
	})
	return &view, nil
}

// Revoke withdraws a pending invitation. Only the inviter may revoke.
func (s *InvitationService) Revoke(ctx context.Context, invitationID, userID string) error {
	ctx = ensureContext(ctx)

	invitation, err := s.load(ctx, invitationID)
	if err != nil {
		return err
	}
	if invitation.FromUserID != userID {
		return ErrInvitationNotFound
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", invitation.ID, models.InvitationStatusPending).
		Delete(&models.Invitation{})
	if result.Error != nil {
		return fmt.Errorf("invitation service: revoke invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInvitationAlreadyResponded
	}

	metrics.InvitationResponses.WithLabelValues("revoked").Inc()
	if s.publisher != nil {
		s.publisher.BroadcastToUser(realtime.StreamInvitations, invitation.ToUserID, realtime.Message{
			Event: "invitation.revoked",
			Data:  map[string]any{"invitation_id": invitation.ID, "team_id": invitation.TeamID},
		})
	}
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "invitation.revoke",
		Resource: invitation.ID,
		Result:   "success",
	})
	return nil
}

func (s *InvitationService) load(ctx context.Context, invitationID string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.db.WithContext(ctx).Take(&invitation, "id = ?", strings.TrimSpace(invitationID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: load invitation: %w", err)
	}
	return &invitation, nil
}

func (s *InvitationService) loadForInvitee(ctx context.Context, invitationID, userID string) (*models.Invitation, error) {
	invitation, err := s.load(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if invitation.ToUserID != userID {
		return nil, ErrInvitationForbidden
	}
	if invitation.Status != models.InvitationStatusPending {
		return nil, ErrInvitationAlreadyResponded
	}
	return invitation, nil
}

func (s *InvitationService) loadTeam(db *gorm.DB, teamID string) (*models.Team, error) {
	var team models.Team
	err := db.Take(&team, "id = ?", strings.TrimSpace(teamID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: load team: %w", err)
	}
	return &team, nil
}

type invitationRow struct {
	models.Invitation
	TeamTag      string
	FromGamertag string
	ToGamertag   string
}

func (s *InvitationService) list(ctx context.Context, condition string, value string) ([]InvitationView, error) {
	var rows []invitationRow
	if err := s.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Select("invitations.*, teams.tag AS team_tag, inviter.gamertag AS from_gamertag, invitee.gamertag AS to_gamertag").
		Joins("JOIN teams ON teams.id = invitations.team_id").
		Joins("LEFT JOIN users AS inviter ON inviter.id = invitations.from_user_id").
		Joins("LEFT JOIN users AS invitee ON invitee.id = invitations.to_user_id").
		Where(condition, value).
		Where("invitations.status = ?", models.InvitationStatusPending).
		Order("invitations.created_at DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("invitation service: list invitations: %w", err)
	}

	views := make([]InvitationView, 0, len(rows))
	for _, row := range rows {
		views = append(views, mapInvitation(row.Invitation, row.TeamTag, row.FromGamertag, row.ToGamertag))
	}
	return views, nil
}

func (s *InvitationService) publishResponse(invitation *models.Invitation, view InvitationView) {
	if s.publisher == nil {
		return
	}
	s.publisher.BroadcastToUsers(realtime.StreamInvitations, []string{invitation.FromUserID, invitation.ToUserID}, realtime.Message{
		Event: "invitation." + invitation.Status,
		Data:  view,
	})
}

func (s *InvitationService) sendEmail(ctx context.Context, invitee *models.User, inviter, teamName string) {
	if s.mailer == nil || invitee.Email == "" {
		return
	}
	link := "/invitations"
	if s.baseURL != "" {
		link = s.baseURL + link
	}
	body := fmt.Sprintf("Hi %s,\n\n%s invited you to join the team %s on ArenaHub.\nRespond to the invitation here:\n%s\n\nIf you do not want to join, you can decline or ignore it.\n",
		invitee.Gamertag, defaultIfEmpty(inviter, "A captain"), teamName, link)

	err := s.mailer.Send(ctx, mail.Message{
		To:      []string{invitee.Email},
		Subject: fmt.Sprintf("You're invited to join %s", teamName),
		Body:    body,
	})
	if err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		s.log.Warn("failed to email invitation", zap.String("user_id", invitee.ID), zap.Error(err))
	}
}

func mapInvitation(invitation models.Invitation, teamTag, fromGamertag, toGamertag string) InvitationView {
	return InvitationView{
		ID:           invitation.ID,
		TeamID:       invitation.TeamID,
		TeamName:     invitation.TeamName,
		TeamTag:      teamTag,
		FromUserID:   invitation.FromUserID,
		FromGamertag: fromGamertag,
		ToUserID:     invitation.ToUserID,
		ToGamertag:   toGamertag,
		Status:       invitation.Status,
		CreatedAt:    invitation.CreatedAt,
		RespondedAt:  invitation.RespondedAt,
	}
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
