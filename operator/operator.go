package operator

import (
	"context"
	"database/sql"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// Operator is a human or service account allowed to call the control
// plane, scoped to one workspace.
type Operator struct {
	Username     string
	PasswordHash string
	WorkspaceID  string
	Status       string
}

const StatusActive = "ACTIVE"

// Store looks up operator credentials.
type Store interface {
	Lookup(ctx context.Context, username string) (*Operator, error)
}

// Verify checks a candidate password against the stored bcrypt hash.
func Verify(op *Operator, password string) error {
	if op.Status != StatusActive {
		return errs.PolicyDenied("account_inactive", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return errs.Unauthorized("invalid username or password")
	}
	return nil
}

// HashPassword produces the stored bcrypt hash for a password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// PostgresStore reads operators from the operators table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Lookup(ctx context.Context, username string) (*Operator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, workspace_id, status
		FROM operators WHERE username = $1`, username)

	var op Operator
	err := row.Scan(&op.Username, &op.PasswordHash, &op.WorkspaceID, &op.Status)
	if err == sql.ErrNoRows {
		return nil, errs.Unauthorized("invalid username or password")
	}
	if err != nil {
		return nil, errs.Persistence(err)
	}
	return &op, nil
}

// MemoryStore is the in-process store used by tests.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*Operator
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*Operator)}
}

func (s *MemoryStore) Add(op Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op.Username] = &op
}

func (s *MemoryStore) Lookup(ctx context.Context, username string) (*Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[username]
	if !ok {
		return nil, errs.Unauthorized("invalid username or password")
	}
	clone := *op
	return &clone, nil
}
