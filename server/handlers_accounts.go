package server

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianpay/treasury/allocation"
	"github.com/meridianpay/treasury/audit"
	"github.com/meridianpay/treasury/pkg/common"
	"github.com/meridianpay/treasury/pkg/common/api"
	"github.com/meridianpay/treasury/pkg/common/errs"
)

func (s *Server) GetAllocationHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		api.WriteError(w, errs.Unauthorized("missing claims"))
		return
	}
	accountID := mux.Vars(r)["id"]

	state, err := s.Allocations.Get(r.Context(), accountID)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	s.Recorder.Record(r.Context(), audit.Event{
		EventType:   audit.EventVaultPositionUpdated,
		WorkspaceID: claims.WorkspaceID,
		Actor:       claims.Username,
		Metadata: map[string]any{
			"action":     "queried",
			"account_id": accountID,
		},
	})
	api.WriteSuccess(w, http.StatusOK, state.Row())
}

type reconcileBody struct {
	// ObservedBalance overrides the oracle read; base-unit decimal string.
	ObservedBalance string `json:"observed_balance,omitempty"`
}

type reconcileResponse struct {
	NewDepositDetected bool           `json:"new_deposit_detected"`
	DepositAmount      string         `json:"deposit_amount"`
	PendingAlreadyHeld bool           `json:"pending_already_held"`
	State              allocation.Row `json:"state"`
}

func (s *Server) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	var body reconcileBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			api.WriteError(w, errs.Validation("invalid request body"))
			return
		}
	}

	var observed *big.Int
	if body.ObservedBalance != "" {
		n, ok := new(big.Int).SetString(body.ObservedBalance, 10)
		if !ok {
			api.WriteError(w, errs.Validation("observed_balance %q is not a base-unit integer", body.ObservedBalance))
			return
		}
		observed = n
	} else {
		if s.Balances == nil {
			api.WriteError(w, errs.Validation("observed_balance is required: no balance oracle is configured"))
			return
		}
		n, err := s.Balances.BalanceOf(r.Context(), accountID)
		if err != nil {
			api.WriteError(w, err)
			return
		}
		observed = n
	}

	res, err := s.Reconciler.Reconcile(r.Context(), accountID, observed)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, reconcileResponse{
		NewDepositDetected: res.NewDepositDetected,
		DepositAmount:      res.DepositAmount.String(),
		PendingAlreadyHeld: res.PendingAlreadyHeld,
		State:              res.State.Row(),
	})
}

type allocatedBody struct {
	Tax       string `json:"tax"`
	Liquidity string `json:"liquidity"`
	Yield     string `json:"yield"`
}

func (s *Server) ConfirmDepositHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		api.WriteError(w, errs.Unauthorized("missing claims"))
		return
	}
	accountID := mux.Vars(r)["id"]

	state, allocated, err := s.Allocator.ConfirmPending(r.Context(), accountID)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	if allocated.Sum().Sign() > 0 {
		metadata := map[string]any{
			"account_id":      accountID,
			"allocated":       map[string]string{"tax": allocated.Tax.String(), "liquidity": allocated.Liquidity.String(), "yield": allocated.Yield.String()},
			"total_deposited": state.TotalDeposited.String(),
		}
		s.Recorder.Record(r.Context(), audit.Event{
			EventType:   audit.EventVaultPositionUpdated,
			WorkspaceID: claims.WorkspaceID,
			Actor:       claims.Username,
			Metadata:    metadata,
		})
		if s.Webhooks != nil {
			s.Webhooks.Dispatch(audit.EventVaultPositionUpdated, claims.WorkspaceID, metadata)
		}
	}

	api.WriteSuccess(w, http.StatusOK, map[string]any{
		"allocated": allocatedBody{
			Tax:       allocated.Tax.String(),
			Liquidity: allocated.Liquidity.String(),
			Yield:     allocated.Yield.String(),
		},
		"state": state.Row(),
	})
}
