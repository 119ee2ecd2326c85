package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/handlers"
)

func registerAuditRoutes(api *gin.RouterGroup, handler *handlers.AuditHandler) {
	api.GET("/audit/me", handler.Mine)
}
