package policy

import (
	"context"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// Denial reasons.
const (
	ReasonKYCIncomplete      = "kyc_incomplete"
	ReasonInsuranceSuspended = "insurance_suspended"
	ReasonUnknownVault       = "unknown_vault"
	ReasonChainMismatch      = "chain_mismatch"
)

// Target identifies what a proposed action would touch. ChainID is the
// chain the caller believes the target lives on; zero means unspecified.
type Target struct {
	VaultAddress string
	ChainID      int64
}

// Decision is the gate's verdict. Details carries remediation data
// (expected chain id, suggested vaults, status fields) surfaced verbatim
// to the caller.
type Decision struct {
	Actionable bool
	Reason     string
	Details    map[string]any
}

// Gate is the workspace-level authorization check consulted before any
// proposal is created. A false Actionable is a hard stop.
type Gate interface {
	Check(ctx context.Context, workspaceID string, target Target) (Decision, error)
}

// DeniedError maps a denial onto the error taxonomy. Chain mismatches are
// a state conflict, not a permission problem, and carry their own code.
func DeniedError(d Decision) *errs.Error {
	err := errs.PolicyDenied(d.Reason, d.Details)
	if d.Reason == ReasonChainMismatch {
		return err.WithCode(errs.CodeInvalidState)
	}
	return err
}
