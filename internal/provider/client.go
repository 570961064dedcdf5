// Package provider is a thin authenticated client for the cloud compute
// provider's control-plane REST API (DigitalOcean). It covers only the
// operations the provisioning core needs: SSH key registration/removal and
// droplet create/poll/delete. Provider failures are surfaced as typed
// *APIError values carrying the HTTP status and response body; the client
// never treats a non-2xx as a transport error.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DigitalOcean = "digitalocean"

// EphemeralTag is applied to every droplet this service creates so ephemeral
// resources are discoverable provider-side.
const EphemeralTag = "ephemeral-compute"

// APIError is a non-2xx response from the provider API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider API error: status %d: %s", e.Status, e.Body)
}

// Client talks to the provider's REST API with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given API base URL (e.g.
// "https://api.digitalocean.com/v2") and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues an authenticated JSON request and decodes a 2xx response body
// into out (when out is non-nil). Non-2xx responses return *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
	}
	return nil
}

// SSHKey is the provider-side record of a registered public key.
type SSHKey struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
}

// Droplet is the subset of the provider's droplet representation the
// provisioning core consumes.
type Droplet struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Networks struct {
		V4 []struct {
			IPAddress string `json:"ip_address"`
			Type      string `json:"type"`
		} `json:"v4"`
	} `json:"networks"`
}

// PublicIPv4 returns the droplet's public IPv4 address, or "" if none has
// been assigned yet.
func (d *Droplet) PublicIPv4() string {
	for _, n := range d.Networks.V4 {
		if n.Type == "public" {
			return n.IPAddress
		}
	}
	return ""
}

// DropletRequest is the droplet-create payload.
type DropletRequest struct {
	Name     string   `json:"name"`
	Region   string   `json:"region"`
	Size     string   `json:"size"`
	Image    string   `json:"image"`
	SSHKeys  []int64  `json:"ssh_keys"`
	UserData string   `json:"user_data,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// CreateKey registers a public key with the provider and returns its
// provider-assigned record.
func (c *Client) CreateKey(ctx context.Context, name, publicKey string) (*SSHKey, error) {
	var resp struct {
		SSHKey SSHKey `json:"ssh_key"`
	}
	err := c.do(ctx, http.MethodPost, "/account/keys", map[string]string{
		"name":       name,
		"public_key": publicKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.SSHKey, nil
}

// DeleteKey removes a registered public key.
func (c *Client) DeleteKey(ctx context.Context, keyID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/account/keys/%d", keyID), nil, nil)
}

// CreateDroplet creates a new droplet.
func (c *Client) CreateDroplet(ctx context.Context, req DropletRequest) (*Droplet, error) {
	var resp struct {
		Droplet Droplet `json:"droplet"`
	}
	if err := c.do(ctx, http.MethodPost, "/droplets", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Droplet, nil
}

// GetDroplet fetches the current state of a droplet.
func (c *Client) GetDroplet(ctx context.Context, dropletID int64) (*Droplet, error) {
	var resp struct {
		Droplet Droplet `json:"droplet"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/droplets/%d", dropletID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Droplet, nil
}

// DeleteDroplet destroys a droplet.
func (c *Client) DeleteDroplet(ctx context.Context, dropletID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/droplets/%d", dropletID), nil, nil)
}
