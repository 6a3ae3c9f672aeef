package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/allocation"
	"github.com/meridianpay/treasury/oracle"
)

// Sweeper runs the reconciliation pass on a fixed interval: read each
// tracked account's balance from the oracle and fold it into the ledger.
// Confirmation of detected deposits stays an explicit API action.
type Sweeper struct {
	repo       allocation.Repository
	reconciler *allocation.Reconciler
	balances   oracle.BalanceReader
	seed       []string
	interval   time.Duration
	cron       *cron.Cron
	log        *zap.Logger
}

func New(repo allocation.Repository, reconciler *allocation.Reconciler, balances oracle.BalanceReader, seed []string, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:       repo,
		reconciler: reconciler,
		balances:   balances,
		seed:       seed,
		interval:   interval,
		cron:       cron.New(),
		log:        log,
	}
}

func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("sweep scheduled", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one pass over the union of seeded accounts and accounts that
// already have a ledger row. Per-account failures are logged and skipped;
// one unreachable account must not starve the rest.
func (s *Sweeper) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	accounts := make(map[string]struct{})
	for _, id := range s.seed {
		accounts[id] = struct{}{}
	}
	known, err := s.repo.Accounts(ctx)
	if err != nil {
		s.log.Error("sweep: listing accounts failed", zap.Error(err))
	}
	for _, id := range known {
		accounts[id] = struct{}{}
	}

	for id := range accounts {
		balance, err := s.balances.BalanceOf(ctx, id)
		if err != nil {
			s.log.Warn("sweep: balance read failed",
				zap.String("account_id", id), zap.Error(err))
			continue
		}
		if _, err := s.reconciler.Reconcile(ctx, id, balance); err != nil {
			s.log.Warn("sweep: reconcile failed",
				zap.String("account_id", id), zap.Error(err))
		}
	}
}
