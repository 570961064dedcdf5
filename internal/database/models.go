package database

import (
	"encoding/json"
	"time"
)

// Resource lifecycle states. Transitions are monotonic: once a resource is
// destroyed it is never re-activated.
const (
	StatusProvisioning = "provisioning"
	StatusActive       = "active"
	StatusDestroyed    = "destroyed"
	StatusFailed       = "failed"
)

// ProvisionedResource is the ledger row for every cloud resource this service
// has created. It is the single source of truth for ownership and lifecycle
// state: every operation after provisioning is gated on this row.
type ProvisionedResource struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string    `gorm:"not null;index" json:"organization_id"`
	Provider       string    `gorm:"not null;default:digitalocean" json:"provider"`
	ResourceType   string    `gorm:"not null;default:droplet" json:"resource_type"`
	ExternalID     string    `gorm:"index" json:"external_id"`
	Name           string    `gorm:"not null" json:"name"`
	Status         string    `gorm:"not null;default:provisioning" json:"status"`
	Metadata       string    `gorm:"type:text;default:'{}'" json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResourceMetadata is the structured content of ProvisionedResource.Metadata.
// PrivateKey is always stored encrypted; the plaintext exists only transiently
// in process memory during an SSH operation.
type ResourceMetadata struct {
	IP         string    `json:"ip,omitempty"`
	SSHKeyID   int64     `json:"ssh_key_id,omitempty"`
	PrivateKey string    `json:"private_key,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

// DecodeMetadata parses the metadata JSON column. An empty column decodes to
// the zero value.
func (r *ProvisionedResource) DecodeMetadata() (ResourceMetadata, error) {
	var md ResourceMetadata
	if r.Metadata == "" {
		return md, nil
	}
	err := json.Unmarshal([]byte(r.Metadata), &md)
	return md, err
}

// EncodeMetadata serializes md back into the metadata column.
func (r *ProvisionedResource) EncodeMetadata(md ResourceMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return err
	}
	r.Metadata = string(data)
	return nil
}

// IntegrationCredential holds a per-organization cloud provider API token.
// Token is Fernet-encrypted at rest.
type IntegrationCredential struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrganizationID string    `gorm:"not null;uniqueIndex:idx_org_provider" json:"organization_id"`
	Provider       string    `gorm:"not null;uniqueIndex:idx_org_provider" json:"provider"`
	Token          string    `json:"-"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
