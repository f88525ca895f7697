package controllers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/iota-uz/tenantgate/modules/core/services"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
	"github.com/iota-uz/tenantgate/pkg/serrors"
)

const maxBodyBytes = 1 << 16

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		panic(err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string, meta map[string]string) {
	_ = httpapi.WriteError(w, status, code, message, meta)
}

// writeServiceError renders coded service errors; anything else is logged
// with full detail and answered with a generic 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if _, known := serrors.Code(err); !known {
		composables.UseLogger(r.Context()).WithError(err).Error("request failed")
	}
	_ = httpapi.WriteServiceError(w, err, services.HTTPStatus)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(dst)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, httpapi.CodeRequestTooLarge, "request body too large", nil)
		return false
	}
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "request body is not valid JSON", nil)
		return false
	}
	return true
}
