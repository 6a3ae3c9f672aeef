package allocation

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// ReconcileResult reports what a reconciliation pass found.
type ReconcileResult struct {
	State *State
	// NewDepositDetected is true when a balance increase landed in the
	// pending slot this call.
	NewDepositDetected bool
	// DepositAmount is the detected delta; zero when nothing was detected.
	DepositAmount *big.Int
	// PendingAlreadyHeld is true when a balance increase was observed
	// while an unconfirmed deposit was already pending. The delta accrued
	// to the unaccounted counter instead of overwriting the slot.
	PendingAlreadyHeld bool
}

// Reconciler compares observed chain balances against the stored watermark
// and maintains the single pending-deposit slot.
type Reconciler struct {
	repo Repository
	log  *zap.Logger
}

func NewReconciler(repo Repository, log *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, log: log}
}

// Reconcile folds one observed balance into the account's ledger. It is
// idempotent: a second call with the same balance is a no-op. At most one
// store write happens per call.
func (r *Reconciler) Reconcile(ctx context.Context, accountID string, observed *big.Int) (*ReconcileResult, error) {
	if accountID == "" {
		return nil, errs.Validation("account id is required")
	}
	if observed == nil || observed.Sign() < 0 {
		return nil, errs.Validation("observed balance must be a non-negative integer")
	}

	res := &ReconcileResult{DepositAmount: big.NewInt(0)}
	state, err := r.repo.Mutate(ctx, accountID, func(s *State) (bool, error) {
		cmp := observed.Cmp(s.LastCheckedBalance)
		if cmp == 0 {
			return false, nil
		}
		if cmp < 0 {
			// Balance correction or outbound movement; just move the
			// watermark, the pending slot is untouched.
			s.LastCheckedBalance.Set(observed)
			return true, nil
		}

		delta := new(big.Int).Sub(observed, s.LastCheckedBalance)
		if s.PendingDeposit.Sign() == 0 {
			s.PendingDeposit.Set(delta)
			res.NewDepositDetected = true
			res.DepositAmount = delta
		} else {
			s.Unaccounted.Add(s.Unaccounted, delta)
			res.PendingAlreadyHeld = true
			res.DepositAmount = delta
		}
		s.LastCheckedBalance.Set(observed)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	res.State = state

	if res.NewDepositDetected {
		r.log.Info("deposit detected",
			zap.String("account_id", accountID),
			zap.String("amount", res.DepositAmount.String()),
		)
	}
	if res.PendingAlreadyHeld {
		r.log.Warn("balance increased while a deposit is already pending",
			zap.String("account_id", accountID),
			zap.String("delta", res.DepositAmount.String()),
			zap.String("pending", state.PendingDeposit.String()),
			zap.String("unaccounted", state.Unaccounted.String()),
		)
	}
	return res, nil
}
