package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skybridge-ai/compute-plane/internal/compute"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"github.com/skybridge-ai/compute-plane/internal/middleware"
)

// Compute is the orchestrator service the handlers delegate to. Wired in
// main.go.
var Compute *compute.Service

// ProvisionResource handles POST /compute/resources.
func ProvisionResource(w http.ResponseWriter, r *http.Request) {
	var req compute.ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.OrganizationID = middleware.OrganizationID(r)

	result, err := Compute.Provision(r.Context(), req)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ExecuteCommand handles POST /compute/resources/{id}/execute.
func ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req compute.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ResourceID = chi.URLParam(r, "id")
	req.OrganizationID = middleware.OrganizationID(r)

	result, err := Compute.Execute(r.Context(), req)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TransferFile handles POST /compute/resources/{id}/transfer.
func TransferFile(w http.ResponseWriter, r *http.Request) {
	var req compute.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.ResourceID = chi.URLParam(r, "id")
	req.OrganizationID = middleware.OrganizationID(r)

	result, err := Compute.Transfer(r.Context(), req)
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TeardownResource handles DELETE /compute/resources/{id}.
func TeardownResource(w http.ResponseWriter, r *http.Request) {
	result, err := Compute.Teardown(r.Context(), compute.TeardownRequest{
		ResourceID:     chi.URLParam(r, "id"),
		OrganizationID: middleware.OrganizationID(r),
	})
	if err != nil {
		writeComputeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type resourceResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	ResourceType string `json:"resource_type"`
	ExternalID   string `json:"external_id,omitempty"`
	Status       string `json:"status"`
	IP           string `json:"ip,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// ListResources handles GET /compute/resources. Secret material is never
// included in the listing.
func ListResources(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.OrganizationID(r)
	resources, err := database.ListResourcesByOrganization(orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		item := resourceResponse{
			ID:           res.ID,
			Name:         res.Name,
			Provider:     res.Provider,
			ResourceType: res.ResourceType,
			ExternalID:   res.ExternalID,
			Status:       res.Status,
			CreatedAt:    res.CreatedAt.UTC().Format(time.RFC3339),
		}
		if md, err := res.DecodeMetadata(); err == nil {
			item.IP = md.IP
			if !md.ExpiresAt.IsZero() {
				item.ExpiresAt = md.ExpiresAt.UTC().Format(time.RFC3339)
			}
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}
