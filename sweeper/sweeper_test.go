package sweeper

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/allocation"
)

type stubBalances struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	fail     map[string]bool
}

func (s *stubBalances) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[account] {
		return nil, errors.New("rpc down")
	}
	b, ok := s.balances[account]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(b), nil
}

func TestSweepReconcilesSeededAccounts(t *testing.T) {
	repo := allocation.NewMemoryRepository()
	rec := allocation.NewReconciler(repo, zap.NewNop())
	balances := &stubBalances{balances: map[string]*big.Int{
		"0xaaa1": big.NewInt(1_000_000),
		"0xaaa2": big.NewInt(42),
	}}

	s := New(repo, rec, balances, []string{"0xaaa1", "0xaaa2"}, time.Minute, zap.NewNop())
	s.Sweep()

	state, err := repo.Get(context.Background(), "0xaaa1")
	require.NoError(t, err)
	assert.Equal(t, "1000000", state.PendingDeposit.String())

	state, err = repo.Get(context.Background(), "0xaaa2")
	require.NoError(t, err)
	assert.Equal(t, "42", state.PendingDeposit.String())
}

func TestSweepContinuesPastFailingAccount(t *testing.T) {
	repo := allocation.NewMemoryRepository()
	rec := allocation.NewReconciler(repo, zap.NewNop())
	balances := &stubBalances{
		balances: map[string]*big.Int{"0xgood": big.NewInt(7)},
		fail:     map[string]bool{"0xbad": true},
	}

	s := New(repo, rec, balances, []string{"0xbad", "0xgood"}, time.Minute, zap.NewNop())
	s.Sweep()

	state, err := repo.Get(context.Background(), "0xgood")
	require.NoError(t, err)
	assert.Equal(t, "7", state.PendingDeposit.String())

	_, err = repo.Get(context.Background(), "0xbad")
	assert.Error(t, err, "failed account never got a ledger row")
}

func TestSweepPicksUpKnownAccounts(t *testing.T) {
	repo := allocation.NewMemoryRepository()
	rec := allocation.NewReconciler(repo, zap.NewNop())
	ctx := context.Background()

	// Account already tracked by an earlier manual reconcile.
	_, err := rec.Reconcile(ctx, "0xknown", big.NewInt(10))
	require.NoError(t, err)

	balances := &stubBalances{balances: map[string]*big.Int{"0xknown": big.NewInt(25)}}
	s := New(repo, rec, balances, nil, time.Minute, zap.NewNop())
	s.Sweep()

	state, err := repo.Get(ctx, "0xknown")
	require.NoError(t, err)
	assert.Equal(t, "25", state.LastCheckedBalance.String())
}
