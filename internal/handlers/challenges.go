package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/models"
	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/response"
)

// ChallengeHandler serves the open challenge board and challenge transitions.
type ChallengeHandler struct {
	challenges *services.ChallengeService
}

// NewChallengeHandler constructs a challenge handler.
func NewChallengeHandler(challenges *services.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{challenges: challenges}
}

type createChallengeRequest struct {
	Game string `json:"game" validate:"required,max=255"`
	Type string `json:"type" validate:"omitempty,max=32"`
}

// Create posts a new open challenge.
func (h *ChallengeHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body createChallengeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	challenge, err := h.challenges.Create(requestContext(c), services.CreateChallengeInput{
		CreatorID: userID,
		Game:      body.Game,
		Type:      body.Type,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, challenge)
}

// List returns open challenges, newest first, filtered by game and type.
func (h *ChallengeHandler) List(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	challenges, err := h.challenges.ListOpen(requestContext(c), services.ListChallengesInput{
		Game:   strings.TrimSpace(c.Query("game")),
		Type:   strings.TrimSpace(c.Query("type")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, challenges)
}

func (h *ChallengeHandler) Get(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	challenge, err := h.challenges.Get(requestContext(c), pathID(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, challenge)
}

// Accept turns the challenge into a match with the caller as opponent.
func (h *ChallengeHandler) Accept(c *gin.Context) {
	h.transition(c, h.challenges.Accept)
}

// Complete marks an accepted match as played.
func (h *ChallengeHandler) Complete(c *gin.Context) {
	h.transition(c, h.challenges.Complete)
}

// Cancel withdraws the caller's open challenge.
func (h *ChallengeHandler) Cancel(c *gin.Context) {
	h.transition(c, h.challenges.Cancel)
}

type challengeTransitionFunc func(ctx context.Context, challengeID, userID string) (*models.Challenge, error)

func (h *ChallengeHandler) transition(c *gin.Context, apply challengeTransitionFunc) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	challenge, err := apply(requestContext(c), pathID(c, "id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, challenge)
}
