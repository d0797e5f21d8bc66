package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kestrelfaas/kestrel/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an internal error to 400, 404 or 500 (405 comes from the
// mux; 200/201 are written directly by their handlers) via errors.As over
// the domain error kinds, and emits {error: <message>}.
// Everything the guest engine can raise once a function is actually
// running -- timeout, egress denial, a missing require() dependency, an
// unexecutable entry point, a parse/runtime panic -- renders as 500: the
// caller asked for a real function and the host failed to run it. Only a
// structurally bad request body and a dispatch-time lookup miss get a more
// specific status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var resourceNotFound *domain.ResourceNotFoundError
	var assetNotFound *domain.FunctionAssetNotFoundError
	var invalidManifest *domain.InvalidManifestError
	var invalidJSON *domain.InvalidJSONError

	switch {
	case errors.As(err, &resourceNotFound), errors.As(err, &assetNotFound):
		status = http.StatusNotFound
	case errors.As(err, &invalidManifest), errors.As(err, &invalidJSON):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
