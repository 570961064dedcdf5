package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skybridge-ai/compute-plane/internal/compute"
	"github.com/skybridge-ai/compute-plane/internal/provider"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeComputeError maps the orchestrator error taxonomy onto HTTP statuses.
func writeComputeError(w http.ResponseWriter, err error) {
	var apiErr *provider.APIError

	switch {
	case errors.Is(err, compute.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, compute.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, compute.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, compute.ErrExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, compute.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, compute.ErrProvisioningTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, provider.ErrNoToken):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
