package allocation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// MemoryRepository is an in-process Repository used by tests and local
// runs. A single mutex serializes mutations, which is the same guarantee
// the Postgres implementation gets from row locks.
type MemoryRepository struct {
	mu     sync.Mutex
	states map[string]*State

	// BeforeWrite, when set, runs inside the critical section just before
	// a mutation is committed. Tests use it to stage concurrent writers.
	BeforeWrite func(accountID string)
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{states: make(map[string]*State)}
}

func (m *MemoryRepository) Get(ctx context.Context, accountID string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[accountID]
	if !ok {
		return nil, errs.NotFound("no allocation state for account %s", accountID)
	}
	return s.Clone(), nil
}

func (m *MemoryRepository) Mutate(ctx context.Context, accountID string, fn func(s *State) (bool, error)) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[accountID]
	if !ok {
		s = NewState(accountID)
	}
	work := s.Clone()
	write, err := fn(work)
	if err != nil {
		return nil, err
	}
	if write {
		if m.BeforeWrite != nil {
			m.BeforeWrite(accountID)
		}
		work.LastUpdated = time.Now().UTC()
		m.states[accountID] = work.Clone()
	} else if !ok {
		// A pure read on a brand-new account leaves nothing behind.
		return work, nil
	}
	return work.Clone(), nil
}

func (m *MemoryRepository) Accounts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
