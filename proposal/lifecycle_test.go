package proposal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/audit"
	"github.com/meridianpay/treasury/pkg/common/errs"
	"github.com/meridianpay/treasury/policy"
)

const vaultBase = "0x1111111111111111111111111111111111111111"

type capturingSink struct {
	events []string
}

func (c *capturingSink) Dispatch(eventType, workspaceID string, payload map[string]any) {
	c.events = append(c.events, eventType)
}

func newTestLifecycle() (*Lifecycle, *MemoryRepository, *policy.RegistryGate, *capturingSink) {
	repo := NewMemoryRepository()
	gate := policy.NewRegistryGate()
	gate.SetWorkspaceStatus("ws-1", policy.WorkspaceStatus{KYCApproved: true, InsuranceActive: true})
	gate.AddVault(policy.Vault{Address: vaultBase, ChainID: 8453, Name: "yield-base"})
	sink := &capturingSink{}
	l := NewLifecycle(repo, gate, audit.NewLogRecorder(zap.NewNop()), sink, zap.NewNop())
	return l, repo, gate, sink
}

func savingsPayload(t *testing.T, vault string, chainID int64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(SavingsPayload{VaultAddress: vault, Amount: "1000000", ChainID: chainID})
	require.NoError(t, err)
	return raw
}

func TestCreateSavingsDeposit(t *testing.T) {
	l, _, _, sink := newTestLifecycle()

	p, err := l.Create(context.Background(), CreateRequest{
		WorkspaceID:   "ws-1",
		OwnerIdentity: "ops@acme",
		Type:          TypeSavingsDeposit,
		Payload:       savingsPayload(t, vaultBase, 8453),
		Message:       "monthly sweep",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, StatusPending, p.Status)
	assert.False(t, p.Dismissed)
	assert.Equal(t, []string{audit.EventVaultActionCreated}, sink.events)
}

func TestCreateDeniedPersistsNothing(t *testing.T) {
	l, repo, gate, sink := newTestLifecycle()
	gate.SetWorkspaceStatus("ws-1", policy.WorkspaceStatus{KYCApproved: false})

	_, err := l.Create(context.Background(), CreateRequest{
		WorkspaceID: "ws-1",
		Type:        TypeSavingsDeposit,
		Payload:     savingsPayload(t, vaultBase, 8453),
	})
	require.Error(t, err)

	e := errs.From(err)
	assert.Equal(t, errs.CodeForbidden, e.Code)
	assert.Equal(t, policy.ReasonKYCIncomplete, e.Message)
	assert.Equal(t, 0, repo.Count("ws-1"), "denied attempts must not persist a proposal")
	assert.Empty(t, sink.events, "denied attempts are audited but not mirrored to webhooks")
}

func TestCreateChainMismatchDetails(t *testing.T) {
	l, repo, _, _ := newTestLifecycle()

	_, err := l.Create(context.Background(), CreateRequest{
		WorkspaceID: "ws-1",
		Type:        TypeSavingsDeposit,
		Payload:     savingsPayload(t, vaultBase, 1),
	})
	require.Error(t, err)

	e := errs.From(err)
	assert.Equal(t, errs.CodeInvalidState, e.Code)
	assert.Equal(t, int64(8453), e.Details["expected_chain_id"])
	assert.Equal(t, int64(1), e.Details["provided_chain_id"])
	assert.Equal(t, 0, repo.Count("ws-1"))
}

func TestCreateValidationFailures(t *testing.T) {
	l, _, _, _ := newTestLifecycle()
	ctx := context.Background()

	cases := []struct {
		name    string
		typ     Type
		payload string
	}{
		{"bad type", Type("teleport"), `{}`},
		{"bad vault address", TypeSavingsDeposit, `{"vault_address":"not-an-address","amount":"5"}`},
		{"negative amount", TypeSavingsDeposit, `{"vault_address":"` + vaultBase + `","amount":"-5"}`},
		{"non-numeric amount", TypeSavingsDeposit, `{"vault_address":"` + vaultBase + `","amount":"ten"}`},
		{"fractional base units", TypeCryptoTransfer, `{"to_address":"` + vaultBase + `","token_address":"` + vaultBase + `","amount":"1.5"}`},
		{"missing beneficiary", TypeBankTransfer, `{"amount":"100","currency":"USD"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Create(ctx, CreateRequest{
				WorkspaceID: "ws-1",
				Type:        tc.typ,
				Payload:     json.RawMessage(tc.payload),
			})
			require.Error(t, err)
			assert.Equal(t, errs.CodeBadRequest, errs.From(err).Code)
		})
	}
}

func TestCryptoTransferDecimalShift(t *testing.T) {
	six := int32(6)
	units, err := BaseUnits("12.5", &six)
	require.NoError(t, err)
	assert.Equal(t, "12500000", units.String())

	_, err = BaseUnits("0.0000001", &six)
	assert.Error(t, err, "sub-base-unit amounts must be rejected")
}

func TestApproveTransitions(t *testing.T) {
	l, _, _, sink := newTestLifecycle()
	ctx := context.Background()

	p, err := l.Create(ctx, CreateRequest{
		WorkspaceID: "ws-1", Type: TypeSavingsDeposit,
		Payload: savingsPayload(t, vaultBase, 8453),
	})
	require.NoError(t, err)

	require.NoError(t, l.Approve(ctx, p.ID, "ws-1", "approver@acme"))
	require.NoError(t, l.Approve(ctx, p.ID, "ws-1", "approver@acme"), "approve is idempotent")

	got, err := l.repo.Get(ctx, p.ID, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Equal(t, []string{audit.EventVaultActionCreated, audit.EventVaultActionCompleted}, sink.events,
		"the completed event fires exactly once")
}

func TestApproveCanceledIsInvalidState(t *testing.T) {
	l, _, _, _ := newTestLifecycle()
	ctx := context.Background()

	p, err := l.Create(ctx, CreateRequest{
		WorkspaceID: "ws-1", Type: TypeSavingsDeposit,
		Payload: savingsPayload(t, vaultBase, 8453),
	})
	require.NoError(t, err)
	require.NoError(t, l.Dismiss(ctx, p.ID, "ws-1"))

	err = l.Approve(ctx, p.ID, "ws-1", "approver@acme")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidState, errs.From(err).Code)
}

func TestDismissIsIdempotent(t *testing.T) {
	l, _, _, _ := newTestLifecycle()
	ctx := context.Background()

	p, err := l.Create(ctx, CreateRequest{
		WorkspaceID: "ws-1", Type: TypeSavingsDeposit,
		Payload: savingsPayload(t, vaultBase, 8453),
	})
	require.NoError(t, err)

	require.NoError(t, l.Dismiss(ctx, p.ID, "ws-1"))
	require.NoError(t, l.Dismiss(ctx, p.ID, "ws-1"), "second dismiss must succeed")

	got, err := l.repo.Get(ctx, p.ID, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
	assert.True(t, got.Dismissed)
}

func TestDismissApprovedOnlyHides(t *testing.T) {
	l, _, _, _ := newTestLifecycle()
	ctx := context.Background()

	p, err := l.Create(ctx, CreateRequest{
		WorkspaceID: "ws-1", Type: TypeSavingsDeposit,
		Payload: savingsPayload(t, vaultBase, 8453),
	})
	require.NoError(t, err)
	require.NoError(t, l.Approve(ctx, p.ID, "ws-1", "approver@acme"))
	require.NoError(t, l.Dismiss(ctx, p.ID, "ws-1"))

	got, err := l.repo.Get(ctx, p.ID, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status, "approved is terminal; dismiss only hides")
	assert.True(t, got.Dismissed)
}

func TestDismissCrossWorkspaceIsNotFound(t *testing.T) {
	l, _, gate, _ := newTestLifecycle()
	gate.SetWorkspaceStatus("ws-2", policy.WorkspaceStatus{KYCApproved: true, InsuranceActive: true})
	ctx := context.Background()

	p, err := l.Create(ctx, CreateRequest{
		WorkspaceID: "ws-1", Type: TypeSavingsDeposit,
		Payload: savingsPayload(t, vaultBase, 8453),
	})
	require.NoError(t, err)

	err = l.Dismiss(ctx, p.ID, "ws-2")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.From(err).Code, "existence must not leak across workspaces")
}

func TestListOrderingAndFilters(t *testing.T) {
	l, repo, _, _ := newTestLifecycle()
	ctx := context.Background()

	mk := func(created time.Time, status Status, dismissed bool) *Proposal {
		p := &Proposal{
			ID: created.Format("150405.000"), WorkspaceID: "ws-1",
			Type: TypeSavingsDeposit, Status: status, Dismissed: dismissed,
			Payload: savingsPayload(t, vaultBase, 8453), CreatedAt: created,
		}
		require.NoError(t, repo.Insert(ctx, p))
		return p
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	oldest := mk(base, StatusPending, false)
	canceled := mk(base.Add(time.Minute), StatusCanceled, false)
	hidden := mk(base.Add(2*time.Minute), StatusPending, true)
	newest := mk(base.Add(3*time.Minute), StatusApproved, false)

	defaultView, err := l.List(ctx, "ws-1", false)
	require.NoError(t, err)
	require.Len(t, defaultView, 2)
	assert.Equal(t, newest.ID, defaultView[0].ID, "newest first")
	assert.Equal(t, oldest.ID, defaultView[1].ID)

	full, err := l.List(ctx, "ws-1", true)
	require.NoError(t, err)
	require.Len(t, full, 3)
	assert.Equal(t, canceled.ID, full[1].ID, "includeCompleted adds canceled")
	for _, p := range full {
		assert.NotEqual(t, hidden.ID, p.ID, "dismissed stays hidden even with includeCompleted")
	}
}
