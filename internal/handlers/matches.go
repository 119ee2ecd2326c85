package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/response"
)

// MatchHandler serves match lobbies and their chat.
type MatchHandler struct {
	challenges *services.ChallengeService
	chat       *services.MatchChatService
}

// NewMatchHandler constructs a match handler.
func NewMatchHandler(challenges *services.ChallengeService, chat *services.MatchChatService) *MatchHandler {
	return &MatchHandler{challenges: challenges, chat: chat}
}

// List returns the caller's matches. ?status=completed returns history.
func (h *MatchHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	matches, err := h.challenges.ListMatches(requestContext(c), userID, c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, matches)
}

// Get returns match lobby details to one of the two participants.
func (h *MatchHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	match, err := h.challenges.GetMatch(requestContext(c), pathID(c, "id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, match)
}

// ListMessages returns chat in ascending order. ?before= takes an RFC3339
// timestamp and ?before_id= the id of the oldest message already seen.
func (h *MatchHandler) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	input := services.ListMessagesInput{Limit: parseIntQuery(c, "limit", 50)}
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest("before must be an RFC3339 timestamp"))
			return
		}
		input.Before = &before
		input.BeforeID = strings.TrimSpace(c.Query("before_id"))
	}

	messages, err := h.chat.List(requestContext(c), pathID(c, "id"), userID, input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, messages)
}

type postMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// PostMessage sends a chat line to the match lobby.
func (h *MatchHandler) PostMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body postMessageRequest
	if !bindAndValidate(c, &body) {
		return
	}

	message, err := h.chat.Post(requestContext(c), services.PostMessageInput{
		MatchID:  pathID(c, "id"),
		SenderID: userID,
		Text:     body.Text,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, message)
}
