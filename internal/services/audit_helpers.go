package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/arenahub/pkg/logger"
)

// recordAudit writes entry to the activity log. Failures are logged and never
// fail the player's request.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Log(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("record activity failed",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err),
		)
	}
}
