package proposal

import (
	"context"
	"database/sql"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// PostgresRepository persists proposals in the proposals table. Status
// transitions are conditional UPDATEs, so concurrent approvals of the same
// proposal resolve to exactly one winner.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) Insert(ctx context.Context, pr *Proposal) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO proposals (id, workspace_id, owner_identity, proposal_type,
			payload, status, dismissed, proposal_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pr.ID, pr.WorkspaceID, pr.OwnerIdentity, string(pr.Type),
		[]byte(pr.Payload), string(pr.Status), pr.Dismissed, pr.Message, pr.CreatedAt)
	if err != nil {
		return errs.Persistence(err)
	}
	return nil
}

func (p *PostgresRepository) Get(ctx context.Context, id, workspaceID string) (*Proposal, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, owner_identity, proposal_type, payload,
			status, dismissed, proposal_message, created_at
		FROM proposals WHERE id = $1 AND workspace_id = $2`, id, workspaceID)

	var pr Proposal
	var payload []byte
	err := row.Scan(&pr.ID, &pr.WorkspaceID, &pr.OwnerIdentity, &pr.Type,
		&payload, &pr.Status, &pr.Dismissed, &pr.Message, &pr.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("proposal %s not found", id)
	}
	if err != nil {
		return nil, errs.Persistence(err)
	}
	pr.Payload = payload
	return &pr, nil
}

func (p *PostgresRepository) Transition(ctx context.Context, id, workspaceID string, from, to Status, dismiss bool) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE proposals SET status = $4, dismissed = (dismissed OR $5)
		WHERE id = $1 AND workspace_id = $2 AND status = $3`,
		id, workspaceID, string(from), string(to), dismiss)
	if err != nil {
		return false, errs.Persistence(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errs.Persistence(err)
	}
	if affected == 0 {
		// Distinguish "wrong status" from "no such proposal".
		if _, err := p.Get(ctx, id, workspaceID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (p *PostgresRepository) SetDismissed(ctx context.Context, id, workspaceID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE proposals SET dismissed = TRUE
		WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return errs.Persistence(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errs.Persistence(err)
	}
	if affected == 0 {
		return errs.NotFound("proposal %s not found", id)
	}
	return nil
}

func (p *PostgresRepository) List(ctx context.Context, workspaceID string, includeCompleted bool) ([]*Proposal, error) {
	query := `
		SELECT id, workspace_id, owner_identity, proposal_type, payload,
			status, dismissed, proposal_message, created_at
		FROM proposals
		WHERE workspace_id = $1 AND dismissed = FALSE`
	if !includeCompleted {
		query += ` AND status IN ('pending', 'approved')`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := p.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, errs.Persistence(err)
	}
	defer rows.Close()

	var out []*Proposal
	for rows.Next() {
		var pr Proposal
		var payload []byte
		if err := rows.Scan(&pr.ID, &pr.WorkspaceID, &pr.OwnerIdentity, &pr.Type,
			&payload, &pr.Status, &pr.Dismissed, &pr.Message, &pr.CreatedAt); err != nil {
			return nil, errs.Persistence(err)
		}
		pr.Payload = payload
		out = append(out, &pr)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Persistence(err)
	}
	return out, nil
}
