package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meridianpay/treasury/operator"
	"github.com/meridianpay/treasury/pkg/common"
	"github.com/meridianpay/treasury/pkg/common/api"
	"github.com/meridianpay/treasury/pkg/common/errs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 24 * time.Hour

// LoginHandler exchanges operator credentials for a workspace-scoped JWT.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, errs.Validation("invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteError(w, errs.Validation("username and password are required"))
		return
	}

	op, err := s.Operators.Lookup(r.Context(), req.Username)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if err := operator.Verify(op, req.Password); err != nil {
		api.WriteError(w, err)
		return
	}

	expiresAt := time.Now().Add(tokenTTL)
	claims := &common.Claims{
		WorkspaceID: op.WorkspaceID,
		Username:    op.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecret))
	if err != nil {
		api.WriteError(w, errs.Internal(err))
		return
	}

	api.WriteSuccess(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
