package handlers

import (
	"net/http"

	"github.com/skybridge-ai/compute-plane/internal/database"
)

// HealthCheck reports service liveness and ledger connectivity.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if database.DB == nil {
		status = "degraded"
	} else if sqlDB, err := database.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
