package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/arenahub/internal/auth"
	"github.com/charlesng35/arenahub/internal/middleware"
	"github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user id or writes a 401.
func currentUserID(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}

func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	meta := iauth.SessionMetadata{IPAddress: c.ClientIP()}
	if c.Request != nil {
		meta.UserAgent = c.Request.UserAgent()
	}
	return meta
}

func pathID(c *gin.Context, name string) string {
	return strings.TrimSpace(c.Param(name))
}
