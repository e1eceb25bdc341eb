package logging

import (
	"context"

	"go.uber.org/zap"
)

// LogAuditEvent records a mutation of a stored resource. Successful events are
// logged at info level, anything else as a warning.
//
// Args:
//   - action: the action performed ("create", "update", "delete")
//   - resourceType: the type of resource ("profile")
//   - resourceID: the id of the resource, empty when none was assigned
//   - result: "success" or "failure"
//   - details: optional additional details
func LogAuditEvent(
	ctx context.Context,
	action, resourceType, resourceID, result string,
	details map[string]any,
) {
	fields := []zap.Field{
		zap.String("audit.action", action),
		zap.String("audit.resource_type", resourceType),
		zap.String("audit.resource_id", resourceID),
		zap.String("audit.result", result),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("audit.details", details))
	}

	logger := LoggerFromContext(ctx)
	if result == "success" {
		logger.Info("Audit event", fields...)
		return
	}
	logger.Warn("Audit event", fields...)
}
