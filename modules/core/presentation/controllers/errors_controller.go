package controllers

import (
	"net/http"
	"strings"

	"github.com/iota-uz/tenantgate/pkg/composables"
)

func NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "not found", errorMeta(w, r, false))
	}
}

func MethodNotAllowed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", errorMeta(w, r, true))
	}
}

func errorMeta(w http.ResponseWriter, r *http.Request, withMethod bool) map[string]string {
	meta := map[string]string{
		"path": r.URL.Path,
	}
	if withMethod {
		meta["method"] = r.Method
	}
	if requestID := requestIDFromResponse(w, r); requestID != "" {
		meta["request_id"] = requestID
	}
	return meta
}

func requestIDFromResponse(w http.ResponseWriter, r *http.Request) string {
	if requestID := strings.TrimSpace(w.Header().Get("X-Request-Id")); requestID != "" {
		return requestID
	}
	if params, ok := composables.UseParams(r.Context()); ok {
		return params.RequestID
	}
	return ""
}
