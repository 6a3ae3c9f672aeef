package allocation

import "context"

// Repository is the persistence contract for allocation state. Mutate is
// the only write path: implementations run fn inside a per-account critical
// section (a row-locked transaction, or a mutex for the in-memory fake) so
// reconcile and confirm are atomic read-modify-writes. fn reports whether
// the state it was handed should be written back; returning false makes the
// call a pure read.
type Repository interface {
	// Get returns the current state, or errs.NotFound if the account has
	// never been reconciled.
	Get(ctx context.Context, accountID string) (*State, error)

	// Mutate loads the state (creating a zeroed one for a new account),
	// applies fn, and persists the result iff fn returns write=true.
	Mutate(ctx context.Context, accountID string, fn func(s *State) (write bool, err error)) (*State, error)

	// Accounts lists every account with a ledger row, for sweep passes.
	Accounts(ctx context.Context) ([]string, error)
}
