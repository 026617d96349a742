package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atmsys/atm-backend/internal/errs"
)

type APIError struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteKind maps a service error onto the HTTP surface. Unknown errors are
// masked as a generic 500; the message of an Internal error never reaches
// the client.
func WriteKind(w http.ResponseWriter, err error) {
	var e *errs.Error
	kind := errs.KindOf(err)
	msg := "internal error"
	if errors.As(err, &e) && kind != errs.Internal {
		msg = e.Msg
	}
	switch kind {
	case errs.Validation:
		WriteError(w, http.StatusBadRequest, "validation_error", msg, nil)
	case errs.Unauthorized:
		WriteError(w, http.StatusUnauthorized, "unauthorized", msg, nil)
	case errs.Forbidden:
		WriteError(w, http.StatusForbidden, "forbidden", msg, nil)
	case errs.NotFound:
		WriteError(w, http.StatusNotFound, "not_found", msg, nil)
	case errs.Conflict:
		WriteError(w, http.StatusConflict, "conflict", msg, nil)
	case errs.Transient:
		WriteError(w, http.StatusServiceUnavailable, "try_again", "temporary failure, retry", nil)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", msg, nil)
	}
}
