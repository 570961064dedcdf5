// Package compute implements the ephemeral compute orchestrators: provision,
// execute, transfer, and teardown of short-lived cloud VMs for agent sessions.
//
// All cross-request state lives in the resource ledger (internal/database);
// each operation validates ownership and liveness against the ledger before
// touching the provider API or SSH.
package compute

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skybridge-ai/compute-plane/internal/config"
	"github.com/skybridge-ai/compute-plane/internal/crypto"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"github.com/skybridge-ai/compute-plane/internal/provider"
	"github.com/skybridge-ai/compute-plane/internal/sshexec"
	"golang.org/x/crypto/ssh"
	"gorm.io/gorm"
)

// timeNow and sleep are package-level vars so tests can control the clock and
// retry delays.
var (
	timeNow = time.Now
	sleep   = time.Sleep
)

// ProviderAPI is the subset of the cloud provider gateway the orchestrators
// use. *provider.Client satisfies it.
type ProviderAPI interface {
	CreateKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error)
	DeleteKey(ctx context.Context, keyID int64) error
	CreateDroplet(ctx context.Context, req provider.DropletRequest) (*provider.Droplet, error)
	GetDroplet(ctx context.Context, dropletID int64) (*provider.Droplet, error)
	DeleteDroplet(ctx context.Context, dropletID int64) error
}

// Transport is the secure transport executor. *sshexec.Executor satisfies it.
type Transport interface {
	Run(ctx context.Context, host string, signer ssh.Signer, dir, command string, timeout time.Duration) (*sshexec.ExecResult, error)
	Stream(ctx context.Context, host string, signer ssh.Signer, dir, command string, sink func(line string)) (int, error)
	Push(ctx context.Context, host string, signer ssh.Signer, remotePath string, data []byte) error
	Pull(ctx context.Context, host string, signer ssh.Signer, remotePath string) ([]byte, error)
	WaitReachable(ctx context.Context, host string, signer ssh.Signer, attempts int, delay time.Duration) error
}

// Service coordinates provisioning, remote execution, file transfer, and
// teardown against the resource ledger.
type Service struct {
	Encryptor crypto.Encryptor
	Transport Transport

	// ResolveToken resolves the provider API token for an organization.
	ResolveToken func(enc crypto.Encryptor, organizationID string) (string, error)

	// NewProvider builds a provider client for a resolved token.
	NewProvider func(token string) ProviderAPI

	// Poll budgets for droplet status and SSH reachability.
	StatusPollAttempts int
	StatusPollInterval time.Duration
	ReachPollAttempts  int
	ReachPollInterval  time.Duration
}

// NewService wires a Service from process configuration.
func NewService() *Service {
	return &Service{
		Encryptor:    crypto.FernetEncryptor{},
		Transport:    sshexec.NewExecutor(config.Cfg.SSHUser, config.Cfg.SSHPort),
		ResolveToken: provider.ResolveToken,
		NewProvider: func(token string) ProviderAPI {
			return provider.NewClient(config.Cfg.ProviderBaseURL, token)
		},
		StatusPollAttempts: config.Cfg.StatusPollAttempts,
		StatusPollInterval: config.PollInterval(config.Cfg.StatusPollInterval, 5*time.Second),
		ReachPollAttempts:  config.Cfg.ReachPollAttempts,
		ReachPollInterval:  config.PollInterval(config.Cfg.ReachPollInterval, 5*time.Second),
	}
}

var nameSanitizer = regexp.MustCompile(`[^a-z0-9-]`)

// generateName derives a provider-safe VM name from a caller-supplied label,
// or invents one when the label is empty.
func generateName(label string) string {
	if label == "" {
		return "agent-vm-" + uuid.NewString()[:8]
	}
	name := strings.ToLower(label)
	name = regexp.MustCompile(`[\s_]+`).ReplaceAllString(name, "-")
	name = nameSanitizer.ReplaceAllString(name, "")
	name = strings.Trim(name, "-")
	if name == "" {
		return "agent-vm-" + uuid.NewString()[:8]
	}
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// loadOwned fetches the ledger row for resourceID and verifies ownership.
// The organization check runs before any state check so a cross-tenant caller
// always sees AccessDenied, never state details.
func loadOwned(resourceID, organizationID string) (*database.ProvisionedResource, error) {
	res, err := database.GetResource(resourceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if res.OrganizationID != organizationID {
		return nil, ErrAccessDenied
	}
	return res, nil
}

// requireActive enforces the shared precondition chain for execute/transfer:
// the resource must be active and its TTL deadline must not have passed.
func requireActive(res *database.ProvisionedResource, md database.ResourceMetadata) error {
	if res.Status != database.StatusActive {
		return fmt.Errorf("%w: %s, not active", ErrInvalidState, res.Status)
	}
	if !md.ExpiresAt.IsZero() && timeNow().After(md.ExpiresAt) {
		return ErrExpired
	}
	return nil
}
