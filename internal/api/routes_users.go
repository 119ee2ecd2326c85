package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/handlers"
)

func registerUserRoutes(engine *gin.Engine, api *gin.RouterGroup, users *handlers.UserHandler, profile *handlers.ProfileHandler) {
	group := api.Group("/users")
	{
		group.GET("", users.Lookup)
		group.GET("/:id", users.Get)
	}

	api.PATCH("/profile", profile.Update)
	api.PUT("/profile/avatar", profile.UploadAvatar)

	// Avatars are loaded by <img> tags, which cannot send a bearer token.
	engine.GET("/api/profile/avatar/:userID", profile.Avatar)
}
