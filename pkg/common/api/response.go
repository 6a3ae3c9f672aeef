package api

import (
	"encoding/json"
	"net/http"

	"github.com/meridianpay/treasury/pkg/common/errs"
)

// ErrorBody is the standard error envelope: {"error": {...}}.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message string         `json:"message"`
	Code    errs.Code      `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError maps a core error onto the standard envelope and status code.
func WriteError(w http.ResponseWriter, err error) {
	e := errs.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(e.Code))
	json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	}})
}

// WriteSuccess writes data as JSON with the given status.
func WriteSuccess(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
