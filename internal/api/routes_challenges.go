package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/handlers"
)

func registerChallengeRoutes(api *gin.RouterGroup, challenges *handlers.ChallengeHandler, matches *handlers.MatchHandler) {
	group := api.Group("/challenges")
	{
		group.GET("", challenges.List)
		group.POST("", challenges.Create)
		group.GET("/:id", challenges.Get)
		group.POST("/:id/accept", challenges.Accept)
		group.POST("/:id/complete", challenges.Complete)
		group.POST("/:id/cancel", challenges.Cancel)
	}

	lobby := api.Group("/matches")
	{
		lobby.GET("", matches.List)
		lobby.GET("/:id", matches.Get)
		lobby.GET("/:id/messages", matches.ListMessages)
		lobby.POST("/:id/messages", matches.PostMessage)
	}
}
