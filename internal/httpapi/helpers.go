// Package httpapi wires gorilla/mux controllers over the
// manifeststore/sourcepoller/clustergateway/deploymenttracker/placement/
// evalscheduler/terminalbroker packages, one controller per subsystem,
// split across the three binaries.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ThakiCloud/vllm-bench-deployer/internal/core"
	"github.com/ThakiCloud/vllm-bench-deployer/internal/httputils"
)

var validate = validator.New()

// decodeAndValidate reads a JSON request body into dst and runs struct
// tag validation, writing a 400 response and returning false if either
// step fails.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httputils.WriteError(w, core.Wrap(core.KindInvalid, "malformed_request_body", "request body is not valid JSON", err))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			httputils.WriteError(w, core.Wrap(core.KindInvalid, "request_validation_failed", verrs.Error(), err))
			return false
		}
		httputils.WriteError(w, core.Wrap(core.KindInvalid, "request_validation_failed", err.Error(), err))
		return false
	}
	return true
}
