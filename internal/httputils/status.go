// Package httputils maps this module's core.Error taxonomy onto HTTP
// responses, and writes the stable {code, detail} JSON body every
// handler in internal/httpapi returns for a failed request.
package httputils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
)

// StatusFor maps a core.Kind to its HTTP status: NotFound→404,
// Conflict→409, Invalid→400, Unauthorized→401, Upstream/Transient→503,
// Fatal→500.
func StatusFor(kind core.Kind) int {
	switch kind {
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindInvalid:
		return http.StatusBadRequest
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	case core.KindUpstream, core.KindTransient:
		return http.StatusServiceUnavailable
	case core.KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape every failed handler response carries.
type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// WriteError writes err as a JSON error body with the status
// StatusFor(err) resolves to. Unrecognized errors (not a *core.Error)
// are treated as Fatal, per core.KindOf's conservative default.
func WriteError(w http.ResponseWriter, err error) {
	var ce *core.Error
	kind := core.KindOf(err)
	code := "internal_error"
	detail := err.Error()
	if errors.As(err, &ce) {
		if ce.Code != "" {
			code = ce.Code
		}
		detail = ce.Detail
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(kind))
	_ = json.NewEncoder(w).Encode(errorBody{Code: code, Detail: detail})
}

// WriteJSON writes v as a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
