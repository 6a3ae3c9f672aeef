package proposal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/audit"
	"github.com/meridianpay/treasury/pkg/common/errs"
	"github.com/meridianpay/treasury/policy"
)

// EventSink receives webhook events. Satisfied by webhook.Dispatcher;
// deliveries are fire-and-forget.
type EventSink interface {
	Dispatch(eventType, workspaceID string, payload map[string]any)
}

// CreateRequest is a request to open a proposal.
type CreateRequest struct {
	WorkspaceID   string
	OwnerIdentity string
	Type          Type
	Payload       json.RawMessage
	Message       string
}

// Lifecycle validates, gates, persists and transitions proposals. Audit
// and webhook collaborators are invoked after the primary operation
// commits and can never fail it.
type Lifecycle struct {
	repo     Repository
	gate     policy.Gate
	recorder audit.Recorder
	webhooks EventSink
	log      *zap.Logger
}

func NewLifecycle(repo Repository, gate policy.Gate, recorder audit.Recorder, webhooks EventSink, log *zap.Logger) *Lifecycle {
	return &Lifecycle{repo: repo, gate: gate, recorder: recorder, webhooks: webhooks, log: log}
}

// Create validates the payload, consults the policy gate, and persists a
// pending proposal. A denied check persists nothing: only an audit event
// records the attempt.
func (l *Lifecycle) Create(ctx context.Context, req CreateRequest) (*Proposal, error) {
	if req.WorkspaceID == "" {
		return nil, errs.Validation("workspace id is required")
	}
	if !req.Type.Valid() {
		return nil, errs.Validation("unknown proposal type %q", req.Type)
	}
	target, err := validatePayload(req.Type, req.Payload)
	if err != nil {
		return nil, err
	}

	decision, err := l.gate.Check(ctx, req.WorkspaceID, target)
	if err != nil {
		return nil, errs.Internal(err)
	}
	if !decision.Actionable {
		l.emit(ctx, audit.EventVaultActionCreated, req.WorkspaceID, req.OwnerIdentity, map[string]any{
			"proposal_type": string(req.Type),
			"denied":        true,
			"reason":        decision.Reason,
			"details":       decision.Details,
		}, false)
		return nil, policy.DeniedError(decision)
	}

	p := &Proposal{
		ID:            uuid.NewString(),
		WorkspaceID:   req.WorkspaceID,
		OwnerIdentity: req.OwnerIdentity,
		Type:          req.Type,
		Payload:       req.Payload,
		Status:        StatusPending,
		Message:       req.Message,
		CreatedAt:     time.Now().UTC(),
	}
	if err := l.repo.Insert(ctx, p); err != nil {
		return nil, err
	}

	l.emit(ctx, audit.EventVaultActionCreated, p.WorkspaceID, p.OwnerIdentity, map[string]any{
		"proposal_id":   p.ID,
		"proposal_type": string(p.Type),
		"status":        string(p.Status),
	}, true)
	l.log.Info("proposal created",
		zap.String("proposal_id", p.ID),
		zap.String("workspace_id", p.WorkspaceID),
		zap.String("type", string(p.Type)),
	)
	return p, nil
}

// Approve records the externally driven pending -> approved transition.
// Approving an approved proposal is an idempotent success; approving a
// canceled one is a state conflict. The transition takes effect at most
// once, so a proposal can never become executable twice.
func (l *Lifecycle) Approve(ctx context.Context, id, workspaceID, actor string) error {
	p, err := l.repo.Get(ctx, id, workspaceID)
	if err != nil {
		return err
	}
	if p.Status == StatusApproved {
		return nil
	}

	ok, err := l.repo.Transition(ctx, id, workspaceID, StatusPending, StatusApproved, false)
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race or the proposal is canceled; re-read to tell.
		p, err = l.repo.Get(ctx, id, workspaceID)
		if err != nil {
			return err
		}
		if p.Status == StatusApproved {
			return nil
		}
		return errs.InvalidState("proposal is canceled and cannot be approved",
			map[string]any{"status": string(p.Status)})
	}

	l.emit(ctx, audit.EventVaultActionCompleted, workspaceID, actor, map[string]any{
		"proposal_id":   id,
		"proposal_type": string(p.Type),
		"status":        string(StatusApproved),
	}, true)
	return nil
}

// Dismiss hides the proposal and, unless it is already approved, cancels
// it. Idempotent: dismissing twice succeeds.
func (l *Lifecycle) Dismiss(ctx context.Context, id, workspaceID string) error {
	p, err := l.repo.Get(ctx, id, workspaceID)
	if err != nil {
		return err
	}
	if p.Status == StatusApproved {
		// Approved proposals are immutable; dismiss only hides them.
		return l.repo.SetDismissed(ctx, id, workspaceID)
	}

	ok, err := l.repo.Transition(ctx, id, workspaceID, StatusPending, StatusCanceled, true)
	if err != nil {
		return err
	}
	if !ok {
		// Already canceled: make sure the flag is set and succeed.
		return l.repo.SetDismissed(ctx, id, workspaceID)
	}
	return nil
}

// List returns the workspace's proposals, newest first.
func (l *Lifecycle) List(ctx context.Context, workspaceID string, includeCompleted bool) ([]*Proposal, error) {
	return l.repo.List(ctx, workspaceID, includeCompleted)
}

// emit records the audit event and, when the operation succeeded, mirrors
// it to webhooks.
func (l *Lifecycle) emit(ctx context.Context, eventType, workspaceID, actor string, metadata map[string]any, mirror bool) {
	if l.recorder != nil {
		l.recorder.Record(ctx, audit.Event{
			EventType:   eventType,
			WorkspaceID: workspaceID,
			Actor:       actor,
			Metadata:    metadata,
		})
	}
	if mirror && l.webhooks != nil {
		l.webhooks.Dispatch(eventType, workspaceID, metadata)
	}
}
