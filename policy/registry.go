package policy

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Vault is one registered destination vault.
type Vault struct {
	Address string
	ChainID int64
	Name    string
}

// WorkspaceStatus is the compliance state the gate checks.
type WorkspaceStatus struct {
	KYCApproved     bool
	InsuranceActive bool
}

// StatusListener observes workspace status transitions. The server wires
// the insurance.status.changed event emission through this.
type StatusListener func(workspaceID string, status WorkspaceStatus)

// RegistryGate is a Gate backed by an in-process registry of vaults and
// workspace compliance status. It stands in for the external compliance
// service behind the same contract.
type RegistryGate struct {
	mu          sync.RWMutex
	vaults      map[string]Vault
	workspaces  map[string]WorkspaceStatus
	onInsurance StatusListener
}

func NewRegistryGate() *RegistryGate {
	return &RegistryGate{
		vaults:     make(map[string]Vault),
		workspaces: make(map[string]WorkspaceStatus),
	}
}

// OnInsuranceChange registers a listener fired whenever a workspace's
// insurance state flips.
func (g *RegistryGate) OnInsuranceChange(fn StatusListener) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onInsurance = fn
}

func (g *RegistryGate) AddVault(v Vault) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.vaults[strings.ToLower(v.Address)] = v
}

func (g *RegistryGate) SetWorkspaceStatus(workspaceID string, status WorkspaceStatus) {
	g.mu.Lock()
	prev, existed := g.workspaces[workspaceID]
	g.workspaces[workspaceID] = status
	listener := g.onInsurance
	g.mu.Unlock()

	if listener != nil && (!existed || prev.InsuranceActive != status.InsuranceActive) {
		listener(workspaceID, status)
	}
}

func (g *RegistryGate) Check(ctx context.Context, workspaceID string, target Target) (Decision, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ws, ok := g.workspaces[workspaceID]
	if !ok || !ws.KYCApproved {
		return Decision{
			Reason: ReasonKYCIncomplete,
			Details: map[string]any{
				"kyc_status": kycStatus(ok, ws),
			},
		}, nil
	}
	if !ws.InsuranceActive {
		return Decision{
			Reason:  ReasonInsuranceSuspended,
			Details: map[string]any{"insurance_status": "suspended"},
		}, nil
	}

	if target.VaultAddress != "" {
		vault, ok := g.vaults[strings.ToLower(target.VaultAddress)]
		if !ok {
			return Decision{
				Reason: ReasonUnknownVault,
				Details: map[string]any{
					"suggested_vaults": g.suggestLocked(target.ChainID),
				},
			}, nil
		}
		if target.ChainID != 0 && vault.ChainID != target.ChainID {
			return Decision{
				Reason: ReasonChainMismatch,
				Details: map[string]any{
					"expected_chain_id": vault.ChainID,
					"provided_chain_id": target.ChainID,
				},
			}, nil
		}
	}

	return Decision{Actionable: true}, nil
}

// suggestLocked returns addresses of known vaults, preferring the caller's
// chain. Callers hold at least a read lock.
func (g *RegistryGate) suggestLocked(chainID int64) []string {
	var matched, others []string
	for _, v := range g.vaults {
		if chainID != 0 && v.ChainID == chainID {
			matched = append(matched, v.Address)
		} else {
			others = append(others, v.Address)
		}
	}
	sort.Strings(matched)
	sort.Strings(others)
	if len(matched) > 0 {
		return matched
	}
	return others
}

func kycStatus(known bool, ws WorkspaceStatus) string {
	switch {
	case !known:
		return "not_started"
	case !ws.KYCApproved:
		return "pending"
	default:
		return "approved"
	}
}
