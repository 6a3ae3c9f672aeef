package proposal

import (
	"context"
	"sort"
	"sync"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// MemoryRepository is the in-process store used by tests and local runs.
type MemoryRepository struct {
	mu        sync.Mutex
	proposals map[string]*Proposal
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{proposals: make(map[string]*Proposal)}
}

func (m *MemoryRepository) Insert(ctx context.Context, p *Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *p
	m.proposals[p.ID] = &clone
	return nil
}

func (m *MemoryRepository) Get(ctx context.Context, id, workspaceID string) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok || p.WorkspaceID != workspaceID {
		return nil, errs.NotFound("proposal %s not found", id)
	}
	clone := *p
	return &clone, nil
}

func (m *MemoryRepository) Transition(ctx context.Context, id, workspaceID string, from, to Status, dismiss bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok || p.WorkspaceID != workspaceID {
		return false, errs.NotFound("proposal %s not found", id)
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	if dismiss {
		p.Dismissed = true
	}
	return true, nil
}

func (m *MemoryRepository) SetDismissed(ctx context.Context, id, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok || p.WorkspaceID != workspaceID {
		return errs.NotFound("proposal %s not found", id)
	}
	p.Dismissed = true
	return nil
}

func (m *MemoryRepository) List(ctx context.Context, workspaceID string, includeCompleted bool) ([]*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Proposal
	for _, p := range m.proposals {
		if p.WorkspaceID != workspaceID || p.Dismissed {
			continue
		}
		if !includeCompleted && p.Status == StatusCanceled {
			continue
		}
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Count reports how many proposals exist for the workspace, dismissed or
// not. Tests use it to show denied creations persist nothing.
func (m *MemoryRepository) Count(workspaceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.proposals {
		if p.WorkspaceID == workspaceID {
			n++
		}
	}
	return n
}
