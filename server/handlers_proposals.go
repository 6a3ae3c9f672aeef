package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/meridianpay/treasury/pkg/common"
	"github.com/meridianpay/treasury/pkg/common/api"
	"github.com/meridianpay/treasury/pkg/common/errs"
	"github.com/meridianpay/treasury/proposal"
)

// createProposalBody is the flat request shape: the type-specific payload
// fields plus proposal_type and an optional message.
type createProposalBody struct {
	ProposalType string `json:"proposal_type"`
	Message      string `json:"message,omitempty"`
}

func (s *Server) CreateProposalHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		api.WriteError(w, errs.Unauthorized("missing claims"))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		api.WriteError(w, errs.Validation("unreadable request body"))
		return
	}
	var body createProposalBody
	if err := json.Unmarshal(raw, &body); err != nil {
		api.WriteError(w, errs.Validation("invalid request body"))
		return
	}

	p, err := s.Lifecycle.Create(r.Context(), proposal.CreateRequest{
		WorkspaceID:   claims.WorkspaceID,
		OwnerIdentity: claims.Username,
		Type:          proposal.Type(body.ProposalType),
		Payload:       raw,
		Message:       body.Message,
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusCreated, map[string]string{
		"proposal_id": p.ID,
		"status":      string(p.Status),
	})
}

func (s *Server) ListProposalsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		api.WriteError(w, errs.Unauthorized("missing claims"))
		return
	}
	includeCompleted := r.URL.Query().Get("include_completed") == "true"

	proposals, err := s.Lifecycle.List(r.Context(), claims.WorkspaceID, includeCompleted)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if proposals == nil {
		proposals = []*proposal.Proposal{}
	}

	api.WriteSuccess(w, http.StatusOK, map[string]any{
		"proposals": proposals,
		"count":     len(proposals),
	})
}

func (s *Server) DismissProposalHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		api.WriteError(w, errs.Unauthorized("missing claims"))
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.Lifecycle.Dismiss(r.Context(), id, claims.WorkspaceID); err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) ApproveProposalHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		api.WriteError(w, errs.Unauthorized("missing claims"))
		return
	}
	id := mux.Vars(r)["id"]

	if err := s.Lifecycle.Approve(r.Context(), id, claims.WorkspaceID, claims.Username); err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteSuccess(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  string(proposal.StatusApproved),
	})
}
