package audit

import (
	"context"
	"time"
)

// Event types shared by the audit trail and webhook deliveries.
const (
	EventVaultPositionUpdated   = "vault.position.updated"
	EventVaultActionCreated     = "vault.action.created"
	EventVaultActionCompleted   = "vault.action.completed"
	EventInsuranceStatusChanged = "insurance.status.changed"
)

// Event is one audit record. Metadata carries the operation-specific
// payload and is stored as JSON.
type Event struct {
	ID          string
	EventType   string
	WorkspaceID string
	Actor       string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// Recorder persists audit events. Implementations log delivery failures
// and never return them: audit must not block or fail the operation that
// produced the event.
type Recorder interface {
	Record(ctx context.Context, event Event)
}
