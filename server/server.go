package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/meridianpay/treasury/allocation"
	"github.com/meridianpay/treasury/audit"
	"github.com/meridianpay/treasury/operator"
	"github.com/meridianpay/treasury/oracle"
	"github.com/meridianpay/treasury/pkg/common"
	"github.com/meridianpay/treasury/pkg/common/api"
	"github.com/meridianpay/treasury/proposal"
)

// Deps is everything the HTTP surface needs wired in.
type Deps struct {
	Reconciler  *allocation.Reconciler
	Allocator   *allocation.Allocator
	Allocations allocation.Repository
	Lifecycle   *proposal.Lifecycle
	Operators   operator.Store
	Balances    oracle.BalanceReader // optional; nil disables oracle-backed reconcile
	Recorder    audit.Recorder
	Webhooks    proposal.EventSink // optional
	JWTSecret   string
	Log         *zap.Logger
}

// Server is the HTTP control-plane surface.
type Server struct {
	router *mux.Router
	Deps
}

func New(deps Deps) *Server {
	s := &Server{Deps: deps}

	r := mux.NewRouter()
	r.Use(common.LoggingMiddleware(deps.Log))

	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.HandleFunc("/auth/login", s.LoginHandler).Methods("POST")

	authed := r.PathPrefix("/").Subrouter()
	authed.Use(common.AuthMiddleware(deps.JWTSecret))
	authed.HandleFunc("/proposals", s.CreateProposalHandler).Methods("POST")
	authed.HandleFunc("/proposals", s.ListProposalsHandler).Methods("GET")
	authed.HandleFunc("/proposals/{id}/dismiss", s.DismissProposalHandler).Methods("POST")
	authed.HandleFunc("/proposals/{id}/approve", s.ApproveProposalHandler).Methods("POST")
	authed.HandleFunc("/accounts/{id}/allocation", s.GetAllocationHandler).Methods("GET")
	authed.HandleFunc("/accounts/{id}/reconcile", s.ReconcileHandler).Methods("POST")
	authed.HandleFunc("/accounts/{id}/deposits/confirm", s.ConfirmDepositHandler).Methods("POST")

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	api.WriteSuccess(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "treasuryd",
	})
}
