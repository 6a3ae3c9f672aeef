package allocation

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

const bpsDenominator = 10_000

// Allocated is the per-call split of one confirmed deposit.
type Allocated struct {
	Tax       *big.Int
	Liquidity *big.Int
	Yield     *big.Int
}

func zeroAllocated() *Allocated {
	return &Allocated{Tax: big.NewInt(0), Liquidity: big.NewInt(0), Yield: big.NewInt(0)}
}

// Sum returns tax + liquidity + yield.
func (a *Allocated) Sum() *big.Int {
	sum := new(big.Int).Add(a.Tax, a.Liquidity)
	return sum.Add(sum, a.Yield)
}

// Allocator confirms pending deposits, splitting them into the tax,
// liquidity and yield buckets by fixed basis-point shares. The yield
// bucket takes the remainder, so the split is exact in integer arithmetic.
type Allocator struct {
	repo         Repository
	taxBPS       int64
	liquidityBPS int64
	log          *zap.Logger
}

func NewAllocator(repo Repository, taxBPS, liquidityBPS int64, log *zap.Logger) (*Allocator, error) {
	if taxBPS < 0 || liquidityBPS < 0 || taxBPS+liquidityBPS > bpsDenominator {
		return nil, errs.Validation("invalid split: tax %d bps + liquidity %d bps", taxBPS, liquidityBPS)
	}
	return &Allocator{repo: repo, taxBPS: taxBPS, liquidityBPS: liquidityBPS, log: log}, nil
}

// Split computes the exact integer partition of amount. Floor division for
// tax and liquidity; yield absorbs the remainder, so the three shares
// always sum to amount.
func (a *Allocator) Split(amount *big.Int) *Allocated {
	tax := new(big.Int).Mul(amount, big.NewInt(a.taxBPS))
	tax.Div(tax, big.NewInt(bpsDenominator))
	liquidity := new(big.Int).Mul(amount, big.NewInt(a.liquidityBPS))
	liquidity.Div(liquidity, big.NewInt(bpsDenominator))
	yield := new(big.Int).Sub(amount, tax)
	yield.Sub(yield, liquidity)
	return &Allocated{Tax: tax, Liquidity: liquidity, Yield: yield}
}

// ConfirmPending applies the split of the account's pending deposit to the
// cumulative buckets and clears the slot, as one atomic read-modify-write.
// A zero pending amount is a no-op returning zero allocations, so callers
// may confirm speculatively. If unaccounted balance accrued while the slot
// was held, it is promoted into the now-free slot.
func (a *Allocator) ConfirmPending(ctx context.Context, accountID string) (*State, *Allocated, error) {
	if accountID == "" {
		return nil, nil, errs.Validation("account id is required")
	}

	allocated := zeroAllocated()
	state, err := a.repo.Mutate(ctx, accountID, func(s *State) (bool, error) {
		if s.PendingDeposit.Sign() == 0 {
			return false, nil
		}
		pending := new(big.Int).Set(s.PendingDeposit)
		split := a.Split(pending)

		s.TotalDeposited.Add(s.TotalDeposited, pending)
		s.AllocatedTax.Add(s.AllocatedTax, split.Tax)
		s.AllocatedLiquidity.Add(s.AllocatedLiquidity, split.Liquidity)
		s.AllocatedYield.Add(s.AllocatedYield, split.Yield)
		s.PendingDeposit.SetInt64(0)

		if s.Unaccounted.Sign() > 0 {
			s.PendingDeposit.Set(s.Unaccounted)
			s.Unaccounted.SetInt64(0)
		}

		allocated = split
		return true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if allocated.Sum().Sign() > 0 {
		a.log.Info("deposit allocated",
			zap.String("account_id", accountID),
			zap.String("tax", allocated.Tax.String()),
			zap.String("liquidity", allocated.Liquidity.String()),
			zap.String("yield", allocated.Yield.String()),
			zap.String("total_deposited", state.TotalDeposited.String()),
		)
	}
	return state, allocated, nil
}
