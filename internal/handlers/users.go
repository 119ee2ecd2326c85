package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/response"
)

// UserHandler serves public player profiles.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	viewerID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(requestContext(c), pathID(c, "id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, services.NewUserProfile(user, user.ID == viewerID))
}

// Lookup resolves an exact gamertag: GET /api/users?gamertag=
func (h *UserHandler) Lookup(c *gin.Context) {
	viewerID, ok := currentUserID(c)
	if !ok {
		return
	}

	gamertag := strings.TrimSpace(c.Query("gamertag"))
	if gamertag == "" {
		response.Error(c, errors.NewBadRequest("gamertag query parameter is required"))
		return
	}

	user, err := h.users.FindByGamertag(requestContext(c), gamertag)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, services.NewUserProfile(user, user.ID == viewerID))
}
