package compute

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/skybridge-ai/compute-plane/internal/database"
)

type TeardownRequest struct {
	ResourceID     string `json:"-"`
	OrganizationID string `json:"-"`
}

type TeardownResult struct {
	Success         bool     `json:"success"`
	Name            string   `json:"name"`
	DurationMinutes int      `json:"duration_minutes"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Teardown releases the resource's cloud VM and registered SSH key, then
// marks the ledger row destroyed and strips all secret material from it.
//
// Teardown is idempotent: on an already-destroyed resource it returns success
// immediately with zero provider calls. Provider-side deletes are best-effort
// (the remote side may already be gone); their failures are surfaced as
// warnings, never as a failed teardown, and the secret wipe happens
// regardless of delete outcomes.
func (s *Service) Teardown(ctx context.Context, req TeardownRequest) (*TeardownResult, error) {
	res, err := loadOwned(req.ResourceID, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	if res.Status == database.StatusDestroyed {
		return &TeardownResult{Success: true, Name: res.Name}, nil
	}

	md, err := res.DecodeMetadata()
	if err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", req.ResourceID, err)
	}

	durationMinutes := int(timeNow().Sub(res.CreatedAt).Minutes())

	var warnings []string
	token, err := s.ResolveToken(s.Encryptor, req.OrganizationID)
	if err != nil {
		// The ledger wipe below must still happen; the provider resources
		// will need manual cleanup.
		warnings = append(warnings, fmt.Sprintf("resolve provider token: %v", err))
	} else {
		api := s.NewProvider(token)

		if res.ExternalID != "" {
			if dropletID, convErr := strconv.ParseInt(res.ExternalID, 10, 64); convErr != nil {
				warnings = append(warnings, fmt.Sprintf("invalid external id %q", res.ExternalID))
			} else if delErr := api.DeleteDroplet(ctx, dropletID); delErr != nil {
				warnings = append(warnings, fmt.Sprintf("delete droplet %d: %v", dropletID, delErr))
			}
		}

		if md.SSHKeyID != 0 {
			if delErr := api.DeleteKey(ctx, md.SSHKeyID); delErr != nil {
				warnings = append(warnings, fmt.Sprintf("delete ssh key %d: %v", md.SSHKeyID, delErr))
			}
		}
	}

	// Unconditional: no stored secret outlives the logical session.
	res.Status = database.StatusDestroyed
	res.ExternalID = ""
	if err := res.EncodeMetadata(database.ResourceMetadata{IP: md.IP}); err != nil {
		return nil, err
	}
	if err := database.SaveResource(res); err != nil {
		return nil, fmt.Errorf("update ledger for %s: %w", req.ResourceID, err)
	}

	for _, w := range warnings {
		log.Printf("[teardown] %s: WARNING: %s", req.ResourceID, w)
	}
	log.Printf("[teardown] %s (%s) destroyed after %d minute(s)", req.ResourceID, res.Name, durationMinutes)

	return &TeardownResult{
		Success:         true,
		Name:            res.Name,
		DurationMinutes: durationMinutes,
		Warnings:        warnings,
	}, nil
}
