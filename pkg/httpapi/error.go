package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iota-uz/tenantgate/pkg/serrors"
)

const (
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeRequestTooLarge    = "REQUEST_TOO_LARGE"
)

// ErrorEnvelope standardizes JSON error responses for API namespaces.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, &ErrorEnvelope{
		Code:    code,
		Message: message,
		Meta:    meta,
	})
}

// StatusResolver maps an error code to an HTTP status.
type StatusResolver func(code string) (int, bool)

// WriteServiceError renders coded errors with their public message only.
// Anything without a known code becomes a generic 503.
func WriteServiceError(w http.ResponseWriter, err error, resolve StatusResolver) error {
	var base serrors.Base
	if errors.As(err, &base) {
		if status, known := resolve(base.ErrorCode()); known {
			return WriteError(w, status, base.ErrorCode(), base.ErrorMessage(), nil)
		}
	}
	return WriteError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "service temporarily unavailable", nil)
}
