package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/handlers"
)

func registerTeamRoutes(api *gin.RouterGroup, teams *handlers.TeamHandler, invitations *handlers.InvitationHandler) {
	group := api.Group("/teams")
	{
		group.POST("", teams.Create)
		group.GET("/mine", teams.Mine)
		group.GET("/:id", teams.Get)
		group.DELETE("/:id", teams.Delete)
		group.POST("/:id/leave", teams.Leave)
		group.DELETE("/:id/members/:userID", teams.RemoveMember)
		group.POST("/:id/invitations", teams.Invite)
		group.GET("/:id/invitations", teams.Invitations)
	}

	invites := api.Group("/invitations")
	{
		invites.GET("", invitations.List)
		invites.POST("/:id/accept", invitations.Accept)
		invites.POST("/:id/decline", invitations.Decline)
		invites.DELETE("/:id", invitations.Revoke)
	}
}
