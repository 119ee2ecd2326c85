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
	"github.com/charlesng35/arenahub/pkg/metrics"
)

// CreateChallengeInput describes a new open challenge.
type CreateChallengeInput struct {
	CreatorID string
	Game      string
	Type      string
}

// ListChallengesInput filters the open challenge board.
type ListChallengesInput struct {
	Game   string
	Type   string
	Limit  int
	Offset int
}

// ChallengeOption customises ChallengeService.
type ChallengeOption func(*ChallengeService)

// WithChallengeClock injects a custom clock primarily for testing.
func WithChallengeClock(clock func() time.Time) ChallengeOption {
	return func(s *ChallengeService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ChallengeService runs the challenge board and the matches accepted from it.
type ChallengeService struct {
	db            *gorm.DB
	notifications *NotificationService
	publisher     realtime.Publisher
	audit         *AuditService
	now           func() time.Time
	log           *zap.Logger
}

// NewChallengeService constructs a ChallengeService. notifications, publisher
// and audit are optional.
func NewChallengeService(db *gorm.DB, notifications *NotificationService, publisher realtime.Publisher, audit *AuditService, opts ...ChallengeOption) (*ChallengeService, error) {
	if db == nil {
		return nil, errors.New("challenge service: db is required")
	}
	svc := &ChallengeService{
		db:            db,
		notifications: notifications,
		publisher:     publisher,
		audit:         audit,
		now:           time.Now,
		log:           logger.WithModule("challenges"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create posts an open challenge on behalf of the creator.
func (s *ChallengeService) Create(ctx context.Context, input CreateChallengeInput) (*models.Challenge, error) {
	ctx = ensureContext(ctx)

	game := strings.TrimSpace(input.Game)
	if game == "" {
		return nil, apperrors.NewBadRequest("game is required")
	}
	if runeLength(game) > models.MaxGameNameLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("game must be at most %d characters", models.MaxGameNameLength))
	}
	challengeType, err := normaliseChallengeType(input.Type)
	if err != nil {
		return nil, err
	}

	creator, err := s.loadUser(ctx, input.CreatorID)
	if err != nil {
		return nil, err
	}

	challenge := &models.Challenge{
		CreatorID:       creator.ID,
		CreatorGamertag: creator.Gamertag,
		Game:            game,
		Type:            challengeType,
		Status:          models.ChallengeStatusOpen,
	}
	if err := s.db.WithContext(ctx).Create(challenge).Error; err != nil {
		return nil, fmt.Errorf("challenge service: create challenge: %w", err)
	}

	metrics.ChallengeTransitions.WithLabelValues(models.ChallengeStatusOpen).Inc()
	s.broadcast("challenge.created", challenge)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "challenge.create",
		Resource: challenge.ID,
		Result:   "success",
		Metadata: map[string]any{"game": game, "type": challengeType},
	})
	return challenge, nil
}

// ListOpen returns open challenges, newest first.
func (s *ChallengeService) ListOpen(ctx context.Context, input ListChallengesInput) ([]models.Challenge, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Where("status = ?", models.ChallengeStatusOpen)
	if game := strings.TrimSpace(input.Game); game != "" {
		query = query.Where("LOWER(game) = ?", strings.ToLower(game))
	}
	if t := strings.TrimSpace(input.Type); t != "" {
		query = query.Where("type = ?", t)
	}

	var challenges []models.Challenge
	if err := query.
		Order("created_at DESC").
		Limit(clampLimit(input.Limit)).
		Offset(clampOffset(input.Offset)).
		Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("challenge service: list open challenges: %w", err)
	}
	return challenges, nil
}

// Get loads a challenge by id.
func (s *ChallengeService) Get(ctx context.Context, id string) (*models.Challenge, error) {
	ctx = ensureContext(ctx)
	var challenge models.Challenge
	err := s.db.WithContext(ctx).Take(&challenge, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("challenge service: load challenge: %w", err)
	}
	return &challenge, nil
}

// Accept turns an open challenge into a match between the creator and the
// accepting player. Only one accept can win; later ones get ErrChallengeNotOpen.
func (s *ChallengeService) Accept(ctx context.Context, challengeID, userID string) (*models.Challenge, error) {
	ctx = ensureContext(ctx)

	challenge, err := s.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.CreatorID == userID {
		return nil, ErrChallengeSelfAccept
	}
	if challenge.Status != models.ChallengeStatusOpen {
		return nil, ErrChallengeNotOpen
	}

	accepter, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND status = ?", challenge.ID, models.ChallengeStatusOpen).
		Updates(map[string]any{
			"status":            models.ChallengeStatusAccepted,
			"accepter_id":       accepter.ID,
			"accepter_gamertag": accepter.Gamertag,
			"accepted_at":       now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("challenge service: accept challenge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrChallengeNotOpen
	}

	challenge.Status = models.ChallengeStatusAccepted
	challenge.AccepterID = &accepter.ID
	challenge.AccepterGamertag = accepter.Gamertag
	challenge.AcceptedAt = &now
	challenge.UpdatedAt = now

	metrics.ChallengeTransitions.WithLabelValues(models.ChallengeStatusAccepted).Inc()
	s.notify(ctx, CreateNotificationInput{
		UserID:   challenge.CreatorID,
		Type:     models.NotificationTypeChallengeAccept,
		Message:  fmt.Sprintf("%s accepted your %s challenge.", accepter.Gamertag, challenge.Game),
		Link:     matchLink(challenge.ID),
		Metadata: map[string]any{"challenge_id": challenge.ID, "accepter_id": accepter.ID},
	})
	s.broadcast("challenge.accepted", challenge)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "challenge.accept",
		Resource: challenge.ID,
		Result:   "success",
	})
	return challenge, nil
}

// Complete marks an accepted match as played. Either participant may complete it.
func (s *ChallengeService) Complete(ctx context.Context, challengeID, userID string) (*models.Challenge, error) {
	ctx = ensureContext(ctx)

	challenge, err := s.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !challenge.IsParticipant(userID) {
		return nil, ErrMatchForbidden
	}
	if challenge.Status != models.ChallengeStatusAccepted {
		return nil, ErrChallengeNotAccepted
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND status = ?", challenge.ID, models.ChallengeStatusAccepted).
		Updates(map[string]any{
			"status":       models.ChallengeStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("challenge service: complete challenge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrChallengeNotAccepted
	}

	challenge.Status = models.ChallengeStatusCompleted
	challenge.CompletedAt = &now
	challenge.UpdatedAt = now

	metrics.ChallengeTransitions.WithLabelValues(models.ChallengeStatusCompleted).Inc()

	completedBy := challenge.CreatorGamertag
	if challenge.CreatorID != userID {
		completedBy = challenge.AccepterGamertag
	}
	s.notify(ctx, CreateNotificationInput{
		UserID:   challenge.Opponent(userID),
		Type:     models.NotificationTypeMatchComplete,
		Message:  fmt.Sprintf("%s marked your %s match as completed.", completedBy, challenge.Game),
		Link:     matchLink(challenge.ID),
		Metadata: map[string]any{"challenge_id": challenge.ID},
	})
	s.publishToParticipants("match.completed", challenge)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "challenge.complete",
		Resource: challenge.ID,
		Result:   "success",
	})
	return challenge, nil
}

// Cancel withdraws an open challenge. Only the creator may cancel.
func (s *ChallengeService) Cancel(ctx context.Context, challengeID, userID string) (*models.Challenge, error) {
	ctx = ensureContext(ctx)

	challenge, err := s.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.CreatorID != userID {
		return nil, ErrChallengeForbidden
	}
	if challenge.Status != models.ChallengeStatusOpen {
		return nil, ErrChallengeNotOpen
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND status = ?", challenge.ID, models.ChallengeStatusOpen).
		Updates(map[string]any{
			"status":       models.ChallengeStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("challenge service: cancel challenge: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrChallengeNotOpen
	}

	challenge.Status = models.ChallengeStatusCancelled
	challenge.CancelledAt = &now
	challenge.UpdatedAt = now

	metrics.ChallengeTransitions.WithLabelValues(models.ChallengeStatusCancelled).Inc()
	s.broadcast("challenge.cancelled", challenge)
	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "challenge.cancel",
		Resource: challenge.ID,
		Result:   "success",
	})
	return challenge, nil
}

// ListMatches returns the caller's matches in status (accepted by default),
// most recently accepted first.
func (s *ChallengeService) ListMatches(ctx context.Context, userID, status string) ([]models.Challenge, error) {
	ctx = ensureContext(ctx)

	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "":
		status = models.ChallengeStatusAccepted
	case models.ChallengeStatusAccepted, models.ChallengeStatusCompleted:
	default:
		return nil, apperrors.NewBadRequest("status must be accepted or completed")
	}

	var matches []models.Challenge
	if err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Where(s.db.Where("creator_id = ?", userID).Or("accepter_id = ?", userID)).
		Order("accepted_at DESC").
		Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("challenge service: list matches: %w", err)
	}
	return matches, nil
}

// GetMatch loads an accepted or completed challenge visible to userID.
func (s *ChallengeService) GetMatch(ctx context.Context, matchID, userID string) (*models.Challenge, error) {
	challenge, err := s.Get(ctx, matchID)
	if errors.Is(err, ErrChallengeNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	if challenge.AccepterID == nil {
		return nil, ErrMatchNotFound
	}
	if !challenge.IsParticipant(userID) {
		return nil, ErrMatchForbidden
	}
	return challenge, nil
}

// ExpireStale cancels open challenges created more than ttl ago.
func (s *ChallengeService) ExpireStale(ctx context.Context, ttl time.Duration) (int64, error) {
	ctx = ensureContext(ctx)
	if ttl <= 0 {
		return 0, nil
	}

	now := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&models.Challenge{}).
		Where("status = ? AND created_at < ?", models.ChallengeStatusOpen, now.Add(-ttl)).
		Updates(map[string]any{
			"status":       models.ChallengeStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("challenge service: expire challenges: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.ChallengeTransitions.WithLabelValues(models.ChallengeStatusCancelled).Add(float64(result.RowsAffected))
		if s.publisher != nil {
			s.publisher.BroadcastStream(realtime.StreamChallenges, realtime.Message{
				Event: "challenge.expired",
				Data:  map[string]any{"count": result.RowsAffected},
			})
		}
	}
	return result.RowsAffected, nil
}

func (s *ChallengeService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Select("id", "gamertag").Take(&user, "id = ?", strings.TrimSpace(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("challenge service: load user: %w", err)
	}
	return &user, nil
}

func (s *ChallengeService) notify(ctx context.Context, input CreateNotificationInput) {
	if s.notifications == nil || input.UserID == "" {
		return
	}
	if _, err := s.notifications.Create(ctx, input); err != nil {
		s.log.Warn("failed to create notification", zap.String("user_id", input.UserID), zap.Error(err))
	}
}

func (s *ChallengeService) broadcast(event string, challenge *models.Challenge) {
	if s.publisher == nil {
		return
	}
	s.publisher.BroadcastStream(realtime.StreamChallenges, realtime.Message{Event: event, Data: challenge})
}

func (s *ChallengeService) publishToParticipants(event string, challenge *models.Challenge) {
	if s.publisher == nil || challenge.AccepterID == nil {
		return
	}
	s.publisher.BroadcastToUsers(realtime.StreamChallenges, []string{challenge.CreatorID, *challenge.AccepterID}, realtime.Message{
		Event: event,
		Data:  challenge,
	})
}

func normaliseChallengeType(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.DefaultChallenge, nil
	}
	for _, t := range models.ChallengeTypes {
		if strings.EqualFold(t, value) {
			return t, nil
		}
	}
	return "", ErrInvalidChallengeType
}

func matchLink(id string) string {
	return "/matches/" + id
}
