package provider

import (
	"errors"
	"fmt"
	"log"

	"github.com/skybridge-ai/compute-plane/internal/config"
	"github.com/skybridge-ai/compute-plane/internal/crypto"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"gorm.io/gorm"
)

// ErrNoToken means no provider API token could be resolved for the
// organization. Provisioning must never proceed unauthenticated.
var ErrNoToken = errors.New("no provider token resolvable")

// ResolveToken returns the provider API token for an organization. It prefers
// the organization's own integration credential (stored Fernet-encrypted) and
// falls back to the process-wide configured token.
func ResolveToken(enc crypto.Encryptor, organizationID string) (string, error) {
	cred, err := database.GetIntegrationCredential(organizationID, DigitalOcean)
	if err == nil {
		token, err := enc.Open(cred.Token)
		if err != nil {
			return "", fmt.Errorf("decrypt provider token for %s: %w", organizationID, err)
		}
		if token != "" {
			return token, nil
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("lookup provider token for %s: %w", organizationID, err)
	}

	if config.Cfg.ProviderToken != "" {
		log.Printf("[provider] using default token for organization %s", organizationID)
		return config.Cfg.ProviderToken, nil
	}

	return "", fmt.Errorf("%w for organization %s", ErrNoToken, organizationID)
}
