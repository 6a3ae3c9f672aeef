package allocation

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// PostgresRepository persists allocation state in the allocation_states
// table. Monetary columns are NUMERIC(78,0) scanned as strings; mutations
// run in a transaction holding a FOR UPDATE lock on the account's row, so
// concurrent reconcile/confirm calls for one account serialize instead of
// clobbering each other.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const stateColumns = `account_id, last_checked_balance, total_deposited,
	allocated_tax, allocated_liquidity, allocated_yield,
	pending_deposit_amount, unaccounted, last_updated`

func (p *PostgresRepository) Get(ctx context.Context, accountID string) (*State, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM allocation_states WHERE account_id = $1`, accountID)
	s, err := scanState(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("no allocation state for account %s", accountID)
	}
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return s, nil
}

func (p *PostgresRepository) Mutate(ctx context.Context, accountID string, fn func(s *State) (bool, error)) (*State, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	defer tx.Rollback()

	// Ensure the row exists so FOR UPDATE has something to lock; this is
	// the lazy creation point for new accounts.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO allocation_states (account_id, last_checked_balance, total_deposited,
			allocated_tax, allocated_liquidity, allocated_yield,
			pending_deposit_amount, unaccounted, last_updated)
		VALUES ($1, '0', '0', '0', '0', '0', '0', '0', NOW())
		ON CONFLICT (account_id) DO NOTHING`, accountID); err != nil {
		return nil, errs.Persistence(err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT `+stateColumns+` FROM allocation_states WHERE account_id = $1 FOR UPDATE`, accountID)
	s, err := scanState(row)
	if err != nil {
		return nil, errs.Persistence(err)
	}

	write, err := fn(s)
	if err != nil {
		return nil, err
	}
	if write {
		s.LastUpdated = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE allocation_states SET
				last_checked_balance = $2, total_deposited = $3,
				allocated_tax = $4, allocated_liquidity = $5, allocated_yield = $6,
				pending_deposit_amount = $7, unaccounted = $8, last_updated = $9
			WHERE account_id = $1`,
			s.AccountID,
			s.LastCheckedBalance.String(), s.TotalDeposited.String(),
			s.AllocatedTax.String(), s.AllocatedLiquidity.String(), s.AllocatedYield.String(),
			s.PendingDeposit.String(), s.Unaccounted.String(), s.LastUpdated); err != nil {
			return nil, errs.Persistence(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errs.Persistence(err)
	}
	return s, nil
}

func (p *PostgresRepository) Accounts(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT account_id FROM allocation_states ORDER BY account_id`)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.Persistence(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*State, error) {
	var (
		s                                           State
		lastChecked, total, tax, liq, yld, pend, un string
	)
	if err := row.Scan(&s.AccountID, &lastChecked, &total, &tax, &liq, &yld, &pend, &un, &s.LastUpdated); err != nil {
		return nil, err
	}
	var err error
	if s.LastCheckedBalance, err = parseBig(lastChecked); err != nil {
		return nil, err
	}
	if s.TotalDeposited, err = parseBig(total); err != nil {
		return nil, err
	}
	if s.AllocatedTax, err = parseBig(tax); err != nil {
		return nil, err
	}
	if s.AllocatedLiquidity, err = parseBig(liq); err != nil {
		return nil, err
	}
	if s.AllocatedYield, err = parseBig(yld); err != nil {
		return nil, err
	}
	if s.PendingDeposit, err = parseBig(pend); err != nil {
		return nil, err
	}
	if s.Unaccounted, err = parseBig(un); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed numeric column value %q", s)
	}
	return n, nil
}
