package handlers

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/response"
)

// multipartOverhead leaves room for form boundaries and headers around the avatar bytes.
const multipartOverhead = 64 << 10

// ProfileHandler exposes current-user profile management endpoints.
type ProfileHandler struct {
	users *services.UserService
}

func NewProfileHandler(users *services.UserService) *ProfileHandler {
	return &ProfileHandler{users: users}
}

type updateProfileRequest struct {
	Gamertag *string `json:"gamertag" validate:"omitempty,max=64"`
	Bio      *string `json:"bio"`
}

// Update edits the caller's gamertag and bio.
func (h *ProfileHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body updateProfileRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), userID, services.UpdateProfileInput{
		Gamertag: body.Gamertag,
		Bio:      body.Bio,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, services.NewUserProfile(user, true))
}

// UploadAvatar accepts a multipart "file" field and stores it as the caller's profile picture.
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxAvatarBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			response.Error(c, services.ErrAvatarTooLarge)
			return
		}
		response.Error(c, errors.NewBadRequest("file is required"))
		return
	}
	if header.Size > services.MaxAvatarBytes {
		response.Error(c, services.ErrAvatarTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.NewBadRequest("unable to read uploaded file"))
		return
	}
	defer file.Close()

	// Generic uploads carry no type hint; the service sniffs the bytes either way.
	contentType := header.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = ""
	}

	user, err := h.users.UploadAvatar(requestContext(c), userID, file, contentType)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, services.NewUserProfile(user, true))
}

// Avatar streams a stored profile picture: GET /api/profile/avatar/:userID
func (h *ProfileHandler) Avatar(c *gin.Context) {
	object, err := h.users.OpenAvatar(requestContext(c), pathID(c, "userID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer object.Body.Close()

	contentType := object.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("X-Content-Type-Options", "nosniff")
	if object.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(object.Size, 10))
	}
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, object.Body)
}
