package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/response"
)

// TeamHandler exposes team lifecycle and roster endpoints.
type TeamHandler struct {
	teams       *services.TeamService
	invitations *services.InvitationService
}

// NewTeamHandler constructs a team handler.
func NewTeamHandler(teams *services.TeamService, invitations *services.InvitationService) *TeamHandler {
	return &TeamHandler{teams: teams, invitations: invitations}
}

type createTeamRequest struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
	Tag  string `json:"tag" validate:"required,teamtag"`
}

// Create forms a new team with the caller as captain.
func (h *TeamHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body createTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}

	team, err := h.teams.Create(requestContext(c), services.CreateTeamInput{
		CaptainID: userID,
		Name:      body.Name,
		Tag:       body.Tag,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, team)
}

// Mine lists teams the caller belongs to.
func (h *TeamHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	teams, err := h.teams.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, teams)
}

func (h *TeamHandler) Get(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}

	team, err := h.teams.Get(requestContext(c), pathID(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, team)
}

// Leave removes the caller from a team they do not captain.
func (h *TeamHandler) Leave(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.teams.Leave(requestContext(c), pathID(c, "id"), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"left": true})
}

// RemoveMember lets the captain drop a player from the roster.
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.teams.RemoveMember(requestContext(c), pathID(c, "id"), userID, pathID(c, "userID")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// Delete disbands a team. Captain only.
func (h *TeamHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.teams.Delete(requestContext(c), pathID(c, "id"), userID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type inviteRequest struct {
	Gamertag string `json:"gamertag" validate:"required,max=64"`
}

// Invite sends a team invitation to a player by gamertag.
func (h *TeamHandler) Invite(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body inviteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	invitation, err := h.invitations.Invite(requestContext(c), services.InviteInput{
		TeamID:     pathID(c, "id"),
		FromUserID: userID,
		Gamertag:   body.Gamertag,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}

// Invitations lists a team's pending invitations for its captain.
func (h *TeamHandler) Invitations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	invitations, err := h.invitations.ListForTeam(requestContext(c), pathID(c, "id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitations)
}
