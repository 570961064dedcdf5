package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skybridge-ai/compute-plane/internal/crypto"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"github.com/skybridge-ai/compute-plane/internal/middleware"
	"github.com/skybridge-ai/compute-plane/internal/provider"
	"gorm.io/gorm"
)

// Encryptor seals integration credentials at rest. Wired in main.go.
var Encryptor crypto.Encryptor = crypto.FernetEncryptor{}

type credentialRequest struct {
	Token string `json:"token"`
}

type credentialResponse struct {
	Provider    string `json:"provider"`
	MaskedToken string `json:"masked_token,omitempty"`
	Configured  bool   `json:"configured"`
}

// SetProviderCredential handles PUT /integrations/digitalocean. The token is
// stored Fernet-encrypted, scoped to the calling organization.
func SetProviderCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	sealed, err := Encryptor.Seal(req.Token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	orgID := middleware.OrganizationID(r)
	if err := database.SetIntegrationCredential(orgID, provider.DigitalOcean, sealed); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, credentialResponse{
		Provider:    provider.DigitalOcean,
		MaskedToken: crypto.Mask(req.Token),
		Configured:  true,
	})
}

// GetProviderCredential handles GET /integrations/digitalocean. The token is
// returned masked only.
func GetProviderCredential(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.OrganizationID(r)
	cred, err := database.GetIntegrationCredential(orgID, provider.DigitalOcean)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSON(w, http.StatusOK, credentialResponse{Provider: provider.DigitalOcean, Configured: false})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	token, err := Encryptor.Open(cred.Token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{
		Provider:    provider.DigitalOcean,
		MaskedToken: crypto.Mask(token),
		Configured:  true,
	})
}
