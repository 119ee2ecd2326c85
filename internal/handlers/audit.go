package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/arenahub/internal/services"
	"github.com/charlesng35/arenahub/pkg/errors"
	"github.com/charlesng35/arenahub/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit/me
func (h *AuditHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{
		UserID: userID,
		Action: strings.TrimSpace(c.Query("action")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{Limit: limit, Offset: offset, Total: total})
}
