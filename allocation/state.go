package allocation

import (
	"math/big"
	"time"
)

// State is the per-account allocation ledger: the balance watermark, the
// cumulative bucket totals, and the single pending-deposit slot. All
// monetary fields are base-unit integers.
type State struct {
	AccountID          string
	LastCheckedBalance *big.Int
	TotalDeposited     *big.Int
	AllocatedTax       *big.Int
	AllocatedLiquidity *big.Int
	AllocatedYield     *big.Int
	PendingDeposit     *big.Int
	// Unaccounted accrues deltas detected while the pending slot was
	// occupied. It is promoted into the pending slot when the current
	// pending deposit is confirmed.
	Unaccounted *big.Int
	LastUpdated time.Time
}

// NewState returns a zeroed ledger for an account, as created lazily on
// first reconciliation.
func NewState(accountID string) *State {
	return &State{
		AccountID:          accountID,
		LastCheckedBalance: big.NewInt(0),
		TotalDeposited:     big.NewInt(0),
		AllocatedTax:       big.NewInt(0),
		AllocatedLiquidity: big.NewInt(0),
		AllocatedYield:     big.NewInt(0),
		PendingDeposit:     big.NewInt(0),
		Unaccounted:        big.NewInt(0),
	}
}

// Clone returns a deep copy so stores can hand out states without sharing
// big.Int backing arrays with callers.
func (s *State) Clone() *State {
	return &State{
		AccountID:          s.AccountID,
		LastCheckedBalance: new(big.Int).Set(s.LastCheckedBalance),
		TotalDeposited:     new(big.Int).Set(s.TotalDeposited),
		AllocatedTax:       new(big.Int).Set(s.AllocatedTax),
		AllocatedLiquidity: new(big.Int).Set(s.AllocatedLiquidity),
		AllocatedYield:     new(big.Int).Set(s.AllocatedYield),
		PendingDeposit:     new(big.Int).Set(s.PendingDeposit),
		Unaccounted:        new(big.Int).Set(s.Unaccounted),
		LastUpdated:        s.LastUpdated,
	}
}

// Conserved reports whether the bucket totals sum to the total deposited.
func (s *State) Conserved() bool {
	sum := new(big.Int).Add(s.AllocatedTax, s.AllocatedLiquidity)
	sum.Add(sum, s.AllocatedYield)
	return sum.Cmp(s.TotalDeposited) == 0
}

// Row is the transport shape of a State: all monetary fields as base-unit
// decimal strings so nothing is ever coerced to a float.
type Row struct {
	AccountID          string    `json:"account_id"`
	LastCheckedBalance string    `json:"last_checked_balance"`
	TotalDeposited     string    `json:"total_deposited"`
	AllocatedTax       string    `json:"allocated_tax"`
	AllocatedLiquidity string    `json:"allocated_liquidity"`
	AllocatedYield     string    `json:"allocated_yield"`
	PendingDeposit     string    `json:"pending_deposit_amount"`
	Unaccounted        string    `json:"unaccounted"`
	LastUpdated        time.Time `json:"last_updated"`
}

func (s *State) Row() Row {
	return Row{
		AccountID:          s.AccountID,
		LastCheckedBalance: s.LastCheckedBalance.String(),
		TotalDeposited:     s.TotalDeposited.String(),
		AllocatedTax:       s.AllocatedTax.String(),
		AllocatedLiquidity: s.AllocatedLiquidity.String(),
		AllocatedYield:     s.AllocatedYield.String(),
		PendingDeposit:     s.PendingDeposit.String(),
		Unaccounted:        s.Unaccounted.String(),
		LastUpdated:        s.LastUpdated,
	}
}
