package proposal

import "context"

// Repository is the persistence contract for proposals. Every read and
// transition is workspace-scoped; a proposal belonging to another
// workspace behaves as if it does not exist.
type Repository interface {
	Insert(ctx context.Context, p *Proposal) error

	// Get returns the proposal, or errs.NotFound for unknown ids and
	// cross-workspace access alike.
	Get(ctx context.Context, id, workspaceID string) (*Proposal, error)

	// Transition atomically moves the proposal from one status to
	// another, optionally setting the dismissed flag, and reports whether
	// the compare-and-swap took effect.
	Transition(ctx context.Context, id, workspaceID string, from, to Status, dismiss bool) (bool, error)

	// SetDismissed marks the proposal dismissed without touching status.
	SetDismissed(ctx context.Context, id, workspaceID string) error

	// List returns the workspace's proposals, newest first. The default
	// view hides dismissed proposals and, unless includeCompleted, hides
	// canceled ones.
	List(ctx context.Context, workspaceID string, includeCompleted bool) ([]*Proposal, error)
}
