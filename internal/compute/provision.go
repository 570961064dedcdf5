package compute

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"github.com/skybridge-ai/compute-plane/internal/logutil"
	"github.com/skybridge-ai/compute-plane/internal/provider"
	"github.com/skybridge-ai/compute-plane/internal/sshkeys"
)

type ProvisionRequest struct {
	Region         string `json:"region"`
	Size           string `json:"size"`
	Image          string `json:"image"`
	TTLMinutes     int    `json:"ttl_minutes"`
	Name           string `json:"name,omitempty"`
	OrganizationID string `json:"-"`
}

type ProvisionResult struct {
	ResourceID string    `json:"resource_id"`
	DropletID  int64     `json:"droplet_id"`
	IP         string    `json:"ip"`
	Region     string    `json:"region"`
	Size       string    `json:"size"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Provision creates a fresh VM for the organization: ephemeral keypair, key
// registration, droplet creation with bootstrap user-data, status polling,
// SSH reachability check, then a ledger row with the encrypted private key.
//
// Every step is gated on the previous one; failures after the key is
// registered compensate by deleting what was already created. The decrypted
// private key is never part of the result.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (*ProvisionResult, error) {
	if req.TTLMinutes <= 0 {
		return nil, fmt.Errorf("%w: ttl_minutes must be positive", ErrInvalidArgument)
	}
	if req.Region == "" || req.Image == "" {
		return nil, fmt.Errorf("%w: region and image are required", ErrInvalidArgument)
	}
	slug, err := ResolveSize(req.Size)
	if err != nil {
		return nil, err
	}

	token, err := s.ResolveToken(s.Encryptor, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	api := s.NewProvider(token)

	publicKey, privateKey, err := sshkeys.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer wipe(privateKey)

	name := generateName(req.Name)

	key, err := api.CreateKey(ctx, name+"-key", string(publicKey))
	if err != nil {
		// Nothing created provider-side yet; no cleanup needed.
		return nil, fmt.Errorf("register ssh key: %w", err)
	}
	fingerprint, err := sshkeys.Fingerprint(publicKey)
	if err != nil {
		fingerprint = "unknown"
	}
	log.Printf("[provision] registered ssh key %d (%s) for %s", key.ID, fingerprint, logutil.SanitizeForLog(name))

	userData, err := BootstrapUserData()
	if err != nil {
		s.deleteKey(ctx, api, key.ID)
		return nil, err
	}

	droplet, err := api.CreateDroplet(ctx, provider.DropletRequest{
		Name:     name,
		Region:   req.Region,
		Size:     slug,
		Image:    req.Image,
		SSHKeys:  []int64{key.ID},
		UserData: userData,
		Tags:     []string{provider.EphemeralTag},
	})
	if err != nil {
		// Compensate: never leak an orphaned key.
		s.deleteKey(ctx, api, key.ID)
		return nil, fmt.Errorf("create droplet: %w", err)
	}
	log.Printf("[provision] created droplet %d (%s) in %s", droplet.ID, logutil.SanitizeForLog(name), logutil.SanitizeForLog(req.Region))

	ip, err := s.pollUntilActive(ctx, api, droplet.ID)
	if err != nil {
		s.abortProvisioning(ctx, api, req, name, droplet.ID, key.ID)
		return nil, err
	}

	signer, err := sshkeys.ParsePrivateKey(privateKey)
	if err != nil {
		s.abortProvisioning(ctx, api, req, name, droplet.ID, key.ID)
		return nil, err
	}
	if err := s.Transport.WaitReachable(ctx, ip, signer, s.ReachPollAttempts, s.ReachPollInterval); err != nil {
		s.abortProvisioning(ctx, api, req, name, droplet.ID, key.ID)
		return nil, fmt.Errorf("%w: %v", ErrProvisioningTimeout, err)
	}

	sealed, err := s.Encryptor.Seal(string(privateKey))
	if err != nil {
		s.abortProvisioning(ctx, api, req, name, droplet.ID, key.ID)
		return nil, fmt.Errorf("encrypt private key: %w", err)
	}

	expiresAt := timeNow().Add(time.Duration(req.TTLMinutes) * time.Minute)
	res := &database.ProvisionedResource{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Provider:       provider.DigitalOcean,
		ResourceType:   "droplet",
		ExternalID:     fmt.Sprintf("%d", droplet.ID),
		Name:           name,
		Status:         database.StatusActive,
	}
	if err := res.EncodeMetadata(database.ResourceMetadata{
		IP:         ip,
		SSHKeyID:   key.ID,
		PrivateKey: sealed,
		ExpiresAt:  expiresAt,
	}); err != nil {
		s.abortProvisioning(ctx, api, req, name, droplet.ID, key.ID)
		return nil, err
	}
	if err := database.CreateResource(res); err != nil {
		s.abortProvisioning(ctx, api, req, name, droplet.ID, key.ID)
		return nil, fmt.Errorf("persist resource: %w", err)
	}

	log.Printf("[provision] resource %s active: droplet %d at %s, expires %s",
		res.ID, droplet.ID, ip, expiresAt.UTC().Format(time.RFC3339))

	return &ProvisionResult{
		ResourceID: res.ID,
		DropletID:  droplet.ID,
		IP:         ip,
		Region:     req.Region,
		Size:       slug,
		ExpiresAt:  expiresAt,
	}, nil
}

// pollUntilActive polls the droplet until the provider reports it active with
// a public IPv4 address, within the bounded attempt budget.
func (s *Service) pollUntilActive(ctx context.Context, api ProviderAPI, dropletID int64) (string, error) {
	for i := 0; i < s.StatusPollAttempts; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		d, err := api.GetDroplet(ctx, dropletID)
		if err != nil {
			return "", fmt.Errorf("poll droplet %d: %w", dropletID, err)
		}
		if d.Status == "active" {
			if ip := d.PublicIPv4(); ip != "" {
				return ip, nil
			}
		}
		if i < s.StatusPollAttempts-1 {
			sleep(s.StatusPollInterval)
		}
	}
	return "", fmt.Errorf("%w: droplet %d not active with public IP after %d attempts",
		ErrProvisioningTimeout, dropletID, s.StatusPollAttempts)
}

// abortProvisioning compensates a failed provisioning run after the droplet
// exists: it deletes the droplet and the registered key (best-effort), and
// records a failed ledger row so the attempt is auditable and any surviving
// provider resource can be cleaned up manually. Compensation failures are
// logged but never mask the primary error.
func (s *Service) abortProvisioning(ctx context.Context, api ProviderAPI, req ProvisionRequest, name string, dropletID, keyID int64) {
	if err := api.DeleteDroplet(ctx, dropletID); err != nil {
		log.Printf("[provision] WARNING: cleanup of droplet %d failed: %v", dropletID, err)
	}
	s.deleteKey(ctx, api, keyID)

	res := &database.ProvisionedResource{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		Provider:       provider.DigitalOcean,
		ResourceType:   "droplet",
		ExternalID:     fmt.Sprintf("%d", dropletID),
		Name:           name,
		Status:         database.StatusFailed,
		Metadata:       "{}",
	}
	if err := database.CreateResource(res); err != nil {
		log.Printf("[provision] WARNING: recording failed resource: %v", err)
	}
}

func (s *Service) deleteKey(ctx context.Context, api ProviderAPI, keyID int64) {
	if err := api.DeleteKey(ctx, keyID); err != nil {
		log.Printf("[provision] WARNING: cleanup of ssh key %d failed: %v", keyID, err)
	}
}

// wipe zeroes key material once it is no longer needed in memory.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
