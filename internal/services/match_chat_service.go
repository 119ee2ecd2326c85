package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/realtime"
	apperrors "github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/metrics"
)

// MaxChatMessageLength caps a chat line in characters.
const MaxChatMessageLength = 1000

// PostMessageInput carries a chat line posted to a match lobby.
type PostMessageInput struct {
	MatchID  string
	SenderID string
	Text     string
}

// ListMessagesInput pages backwards through a match's chat.
type ListMessagesInput struct {
	Limit  int
	Before *time.Time
	// BeforeID breaks ties between messages sharing the Before timestamp.
	// It is only consulted when Before is set.
	BeforeID string
}

// MatchChatService persists and relays chat between the two players of a match.
type MatchChatService struct {
	db         *gorm.DB
	challenges *ChallengeService
	publisher  realtime.Publisher
	now        func() time.Time
}

// NewMatchChatService constructs a chat service once database and challenge dependencies are supplied.
func NewMatchChatService(db *gorm.DB, challenges *ChallengeService, publisher realtime.Publisher) (*MatchChatService, error) {
	if db == nil {
		return nil, errors.New("match chat service: db is required")
	}
	if challenges == nil {
		return nil, errors.New("match chat service: challenge service is required")
	}
	return &MatchChatService{
		db:         db,
		challenges: challenges,
		publisher:  publisher,
		now:        time.Now,
	}, nil
}

// Post sanitises, persists and broadcasts a chat message. Only the two
// participants of an accepted match may post.
func (s *MatchChatService) Post(ctx context.Context, input PostMessageInput) (*models.MatchMessage, error) {
	ctx = ensureContext(ctx)

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, apperrors.NewBadRequest("message text is required")
	}
	if runeLength(text) > MaxChatMessageLength {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("message must be at most %d characters", MaxChatMessageLength))
	}

	match, err := s.challenges.GetMatch(ctx, input.MatchID, input.SenderID)
	if err != nil {
		return nil, err
	}
	if match.Status != models.ChallengeStatusAccepted {
		return nil, ErrMatchClosed
	}

	sender := match.CreatorGamertag
	if match.CreatorID != input.SenderID {
		sender = match.AccepterGamertag
	}
	var current string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", input.SenderID).
		Pluck("gamertag", &current).Error; err == nil && current != "" {
		sender = current
	}

	message := &models.MatchMessage{
		ID:             uuid.NewString(),
		ChallengeID:    match.ID,
		SenderID:       input.SenderID,
		SenderGamertag: sender,
		Text:           html.EscapeString(text),
		CreatedAt:      s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return nil, fmt.Errorf("match chat service: create message: %w", err)
	}

	metrics.ChatMessages.Inc()
	if s.publisher != nil {
		s.publisher.BroadcastToUsers(realtime.StreamMatchChat, []string{match.CreatorID, *match.AccepterID}, realtime.Message{
			Event: "chat.message",
			Data:  message,
			Meta:  map[string]any{"match_id": match.ID},
		})
	}
	return message, nil
}

// List returns up to Limit messages older than the (Before, BeforeID) cursor,
// oldest first. Pages are keyed on (created_at, id) so messages sharing a
// timestamp are neither skipped nor repeated.
func (s *MatchChatService) List(ctx context.Context, matchID, userID string, input ListMessagesInput) ([]models.MatchMessage, error) {
	ctx = ensureContext(ctx)

	match, err := s.challenges.GetMatch(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("challenge_id = ?", match.ID)
	if input.Before != nil {
		before := input.Before.UTC()
		if id := strings.TrimSpace(input.BeforeID); id != "" {
			query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", before, before, id)
		} else {
			query = query.Where("created_at < ?", before)
		}
	}

	var messages []models.MatchMessage
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("match chat service: list messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
