package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/allocation"
	"github.com/meridianpay/treasury/audit"
	"github.com/meridianpay/treasury/operator"
	"github.com/meridianpay/treasury/policy"
	"github.com/meridianpay/treasury/proposal"
)

const (
	testSecret = "test-secret"
	testVault  = "0x1111111111111111111111111111111111111111"
)

type fixture struct {
	srv       *Server
	proposals *proposal.MemoryRepository
	gate      *policy.RegistryGate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()

	allocRepo := allocation.NewMemoryRepository()
	reconciler := allocation.NewReconciler(allocRepo, log)
	allocator, err := allocation.NewAllocator(allocRepo, 3000, 2000, log)
	require.NoError(t, err)

	gate := policy.NewRegistryGate()
	gate.SetWorkspaceStatus("ws-1", policy.WorkspaceStatus{KYCApproved: true, InsuranceActive: true})
	gate.AddVault(policy.Vault{Address: testVault, ChainID: 8453, Name: "yield-base"})

	proposals := proposal.NewMemoryRepository()
	recorder := audit.NewLogRecorder(log)
	lifecycle := proposal.NewLifecycle(proposals, gate, recorder, nil, log)

	ops := operator.NewMemoryStore()
	hash, err := operator.HashPassword("hunter2")
	require.NoError(t, err)
	ops.Add(operator.Operator{
		Username: "alice", PasswordHash: hash,
		WorkspaceID: "ws-1", Status: operator.StatusActive,
	})

	srv := New(Deps{
		Reconciler:  reconciler,
		Allocator:   allocator,
		Allocations: allocRepo,
		Lifecycle:   lifecycle,
		Operators:   ops,
		Recorder:    recorder,
		JWTSecret:   testSecret,
		Log:         log,
	})
	return &fixture{srv: srv, proposals: proposals, gate: gate}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "hunter2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) (code string, details map[string]any) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Details
}

func TestLoginRejectsBadPassword(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "alice", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestsWithoutTokenAreUnauthorized(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/proposals", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndListProposal(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/proposals", token, map[string]any{
		"proposal_type": "savings_deposit",
		"vault_address": testVault,
		"amount":        "1000000",
		"chain_id":      8453,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		ProposalID string `json:"proposal_id"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)
	assert.NotEmpty(t, created.ProposalID)

	w = f.do(t, http.MethodGet, "/proposals", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Proposals []json.RawMessage `json:"proposals"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Count)
}

func TestCreateProposalChainMismatch(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/proposals", token, map[string]any{
		"proposal_type": "savings_deposit",
		"vault_address": testVault,
		"amount":        "1000000",
		"chain_id":      1,
	})
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())

	code, details := decodeError(t, w)
	assert.Equal(t, "invalid_state", code)
	assert.EqualValues(t, 8453, details["expected_chain_id"])
	assert.EqualValues(t, 1, details["provided_chain_id"])
	assert.Equal(t, 0, f.proposals.Count("ws-1"))
}

func TestDismissTwiceSucceeds(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/proposals", token, map[string]any{
		"proposal_type": "savings_deposit",
		"vault_address": testVault,
		"amount":        "50",
		"chain_id":      8453,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ProposalID string `json:"proposal_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	for i := 0; i < 2; i++ {
		w = f.do(t, http.MethodPost, "/proposals/"+created.ProposalID+"/dismiss", token, nil)
		require.Equal(t, http.StatusOK, w.Code, "dismiss call %d", i+1)
		var resp map[string]bool
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp["success"])
	}
}

func TestDismissUnknownProposalIsNotFound(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/proposals/does-not-exist/dismiss", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	code, _ := decodeError(t, w)
	assert.Equal(t, "not_found", code)
}

func TestReconcileAndConfirmFlow(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)
	account := "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"

	w := f.do(t, http.MethodPost, "/accounts/"+account+"/reconcile", token, map[string]string{
		"observed_balance": "1000000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec reconcileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, rec.NewDepositDetected)
	assert.Equal(t, "1000000", rec.DepositAmount)

	w = f.do(t, http.MethodPost, "/accounts/"+account+"/deposits/confirm", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var confirmed struct {
		Allocated allocatedBody  `json:"allocated"`
		State     allocation.Row `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &confirmed))
	assert.Equal(t, "300000", confirmed.Allocated.Tax)
	assert.Equal(t, "200000", confirmed.Allocated.Liquidity)
	assert.Equal(t, "500000", confirmed.Allocated.Yield)
	assert.Equal(t, "0", confirmed.State.PendingDeposit)

	w = f.do(t, http.MethodGet, "/accounts/"+account+"/allocation", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var row allocation.Row
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &row))
	assert.Equal(t, "1000000", row.TotalDeposited)
}

func TestReconcileRejectsMalformedBalance(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodPost, "/accounts/acct-1/reconcile", token, map[string]string{
		"observed_balance": "12.5",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAllocationUnknownAccount(t *testing.T) {
	f := newFixture(t)
	token := f.login(t)

	w := f.do(t, http.MethodGet, "/accounts/nobody/allocation", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
