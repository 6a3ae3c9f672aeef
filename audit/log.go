package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogRecorder writes audit events to the structured log only. Used in
// local runs and tests where no audit table is available.
type LogRecorder struct {
	log *zap.Logger
}

func NewLogRecorder(log *zap.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

func (r *LogRecorder) Record(ctx context.Context, event Event) {
	r.log.Info("audit",
		zap.String("event_type", event.EventType),
		zap.String("workspace_id", event.WorkspaceID),
		zap.String("actor", event.Actor),
		zap.Any("metadata", event.Metadata),
	)
}
