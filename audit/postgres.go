package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresRecorder writes audit events to the audit_events table.
type PostgresRecorder struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPostgresRecorder(db *sql.DB, log *zap.Logger) *PostgresRecorder {
	return &PostgresRecorder{db: db, log: log}
}

func (r *PostgresRecorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		r.log.Warn("audit metadata not serializable",
			zap.String("event_type", event.EventType), zap.Error(err))
		metadata = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, event_type, workspace_id, actor, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.EventType, event.WorkspaceID, event.Actor, metadata, event.CreatedAt)
	if err != nil {
		// Audit failure is logged, never propagated.
		r.log.Warn("audit write failed",
			zap.String("event_type", event.EventType),
			zap.String("workspace_id", event.WorkspaceID),
			zap.Error(err))
	}
}
