package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skybridge-ai/compute-plane/internal/compute"
	"github.com/skybridge-ai/compute-plane/internal/config"
	"github.com/skybridge-ai/compute-plane/internal/crypto"
	"github.com/skybridge-ai/compute-plane/internal/database"
	"github.com/skybridge-ai/compute-plane/internal/middleware"
	"github.com/skybridge-ai/compute-plane/internal/provider"
	"github.com/skybridge-ai/compute-plane/internal/sshexec"
	"github.com/skybridge-ai/compute-plane/internal/sshkeys"
	"golang.org/x/crypto/ssh"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubEncryptor is a reversible stand-in for Fernet.
type stubEncryptor struct{}

func (stubEncryptor) Seal(plaintext string) (string, error) { return "sealed:" + plaintext, nil }

func (stubEncryptor) Open(envelope string) (string, error) {
	if !strings.HasPrefix(envelope, "sealed:") {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return strings.TrimPrefix(envelope, "sealed:"), nil
}

// stubProvider answers every provider call successfully.
type stubProvider struct{}

func (stubProvider) CreateKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	return &provider.SSHKey{ID: 512189, Name: name, PublicKey: publicKey}, nil
}

func (stubProvider) DeleteKey(ctx context.Context, keyID int64) error { return nil }

func (stubProvider) CreateDroplet(ctx context.Context, req provider.DropletRequest) (*provider.Droplet, error) {
	return &provider.Droplet{ID: 67890, Name: req.Name, Status: "new"}, nil
}

func (stubProvider) GetDroplet(ctx context.Context, dropletID int64) (*provider.Droplet, error) {
	d := &provider.Droplet{ID: dropletID, Status: "active"}
	d.Networks.V4 = append(d.Networks.V4, struct {
		IPAddress string `json:"ip_address"`
		Type      string `json:"type"`
	}{IPAddress: "10.0.0.1", Type: "public"})
	return d, nil
}

func (stubProvider) DeleteDroplet(ctx context.Context, dropletID int64) error { return nil }

// stubTransport answers every SSH call successfully without a network.
type stubTransport struct{}

func (stubTransport) Run(ctx context.Context, host string, signer ssh.Signer, dir, command string, timeout time.Duration) (*sshexec.ExecResult, error) {
	return &sshexec.ExecResult{ExitCode: 0, Stdout: "ok\n", Duration: time.Second}, nil
}

func (stubTransport) Stream(ctx context.Context, host string, signer ssh.Signer, dir, command string, sink func(line string)) (int, error) {
	sink("ok")
	return 0, nil
}

func (stubTransport) Push(ctx context.Context, host string, signer ssh.Signer, remotePath string, data []byte) error {
	return nil
}

func (stubTransport) Pull(ctx context.Context, host string, signer ssh.Signer, remotePath string) ([]byte, error) {
	return []byte("data"), nil
}

func (stubTransport) WaitReachable(ctx context.Context, host string, signer ssh.Signer, attempts int, delay time.Duration) error {
	return nil
}

// setupAPI wires an in-memory database, stubbed orchestrator, and the same
// route tree main.go builds, and returns the router.
func setupAPI(t *testing.T) http.Handler {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&database.ProvisionedResource{}, &database.IntegrationCredential{}, &database.Setting{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	database.DB = db
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})

	Compute = &compute.Service{
		Encryptor: stubEncryptor{},
		Transport: stubTransport{},
		ResolveToken: func(enc crypto.Encryptor, organizationID string) (string, error) {
			return "test-token", nil
		},
		NewProvider:        func(token string) compute.ProviderAPI { return stubProvider{} },
		StatusPollAttempts: 3,
		StatusPollInterval: time.Millisecond,
		ReachPollAttempts:  3,
		ReachPollInterval:  time.Millisecond,
	}
	oldEnc := Encryptor
	Encryptor = stubEncryptor{}
	t.Cleanup(func() { Encryptor = oldEnc })

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireOrganization)
		r.Get("/compute/resources", ListResources)
		r.Post("/compute/resources", ProvisionResource)
		r.Post("/compute/resources/{id}/execute", ExecuteCommand)
		r.Post("/compute/resources/{id}/transfer", TransferFile)
		r.Delete("/compute/resources/{id}", TeardownResource)
		r.Get("/integrations/digitalocean", GetProviderCredential)
		r.Put("/integrations/digitalocean", SetProviderCredential)
		r.Get("/logs", GetServerLogs)
		r.Delete("/logs", ClearServerLogs)
	})
	return r
}

// seedResource inserts an active row for orgID and returns its ID.
func seedResource(t *testing.T, orgID string, expiresAt time.Time) string {
	t.Helper()
	_, priv, err := sshkeys.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	res := &database.ProvisionedResource{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Provider:       "digitalocean",
		ResourceType:   "droplet",
		ExternalID:     "67890",
		Name:           "build-old",
		Status:         database.StatusActive,
	}
	if err := res.EncodeMetadata(database.ResourceMetadata{
		IP:         "10.0.0.1",
		SSHKeyID:   512189,
		PrivateKey: "sealed:" + string(priv),
		ExpiresAt:  expiresAt,
	}); err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	if err := database.CreateResource(res); err != nil {
		t.Fatalf("seed resource: %v", err)
	}
	return res.ID
}

func doRequest(t *testing.T, handler http.Handler, method, path, orgID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if orgID != "" {
		req.Header.Set(middleware.OrganizationHeader, orgID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestProvisionEndpoint(t *testing.T) {
	api := setupAPI(t)

	rec := doRequest(t, api, http.MethodPost, "/api/v1/compute/resources", "org-123",
		`{"region":"nyc3","size":"medium","image":"ubuntu-24-04-x64","ttl_minutes":60}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var result compute.ProvisionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ResourceID == "" || result.IP != "10.0.0.1" {
		t.Errorf("result: %+v", result)
	}
}

func TestExecuteEndpoint(t *testing.T) {
	api := setupAPI(t)
	id := seedResource(t, "org-123", time.Now().Add(time.Hour))

	rec := doRequest(t, api, http.MethodPost, "/api/v1/compute/resources/"+id+"/execute", "org-123",
		`{"command":"ls","timeout":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}

	var result compute.ExecuteResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.ExitCode != 0 || result.Stdout != "ok\n" {
		t.Errorf("result: %+v", result)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	api := setupAPI(t)
	ownID := seedResource(t, "org-123", time.Now().Add(time.Hour))
	foreignID := seedResource(t, "org-OTHER", time.Now().Add(time.Hour))
	expiredID := seedResource(t, "org-123", time.Now().Add(-time.Minute))

	destroyedID := seedResource(t, "org-123", time.Now().Add(time.Hour))
	if rec := doRequest(t, api, http.MethodDelete, "/api/v1/compute/resources/"+destroyedID, "org-123", ""); rec.Code != http.StatusOK {
		t.Fatalf("teardown setup: %d: %s", rec.Code, rec.Body.String())
	}

	cases := []struct {
		name   string
		method string
		path   string
		org    string
		body   string
		want   int
	}{
		{"no identity", http.MethodGet, "/api/v1/compute/resources", "", "", http.StatusUnauthorized},
		{"not found", http.MethodPost, "/api/v1/compute/resources/missing/execute", "org-123", `{"command":"ls"}`, http.StatusNotFound},
		{"cross tenant", http.MethodPost, "/api/v1/compute/resources/" + foreignID + "/execute", "org-123", `{"command":"ls"}`, http.StatusForbidden},
		{"expired", http.MethodPost, "/api/v1/compute/resources/" + expiredID + "/execute", "org-123", `{"command":"ls"}`, http.StatusGone},
		{"destroyed", http.MethodPost, "/api/v1/compute/resources/" + destroyedID + "/execute", "org-123", `{"command":"ls"}`, http.StatusConflict},
		{"invalid argument", http.MethodPost, "/api/v1/compute/resources/" + ownID + "/transfer", "org-123", `{"direction":"sideways","remote_path":"/tmp/x"}`, http.StatusBadRequest},
		{"bad body", http.MethodPost, "/api/v1/compute/resources", "org-123", `{not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := doRequest(t, api, tc.method, tc.path, tc.org, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s: status %d, want %d: %s", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestListResourcesMasksSecrets(t *testing.T) {
	api := setupAPI(t)
	seedResource(t, "org-123", time.Now().Add(time.Hour))
	seedResource(t, "org-OTHER", time.Now().Add(time.Hour))

	rec := doRequest(t, api, http.MethodGet, "/api/v1/compute/resources", "org-123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, "private_key") || strings.Contains(body, "sealed:") {
		t.Error("listing leaks key material")
	}

	var items []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want only the caller's resources", len(items))
	}
	if items[0]["ip"] != "10.0.0.1" || items[0]["status"] != "active" {
		t.Errorf("item: %v", items[0])
	}
}

func TestTeardownEndpointIdempotent(t *testing.T) {
	api := setupAPI(t)
	id := seedResource(t, "org-123", time.Now().Add(time.Hour))

	first := doRequest(t, api, http.MethodDelete, "/api/v1/compute/resources/"+id, "org-123", "")
	if first.Code != http.StatusOK {
		t.Fatalf("first delete: %d: %s", first.Code, first.Body.String())
	}
	// Sub-minute sessions still report their duration.
	if !strings.Contains(first.Body.String(), `"duration_minutes":0`) {
		t.Errorf("duration_minutes missing from response: %s", first.Body.String())
	}
	second := doRequest(t, api, http.MethodDelete, "/api/v1/compute/resources/"+id, "org-123", "")
	if second.Code != http.StatusOK {
		t.Fatalf("second delete: %d: %s", second.Code, second.Body.String())
	}

	var result compute.TeardownResult
	if err := json.Unmarshal(second.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Success || result.Name != "build-old" {
		t.Errorf("result: %+v", result)
	}
}

func TestServerLogsEndpoint(t *testing.T) {
	api := setupAPI(t)

	logPath := filepath.Join(t.TempDir(), "compute.log")
	oldPath := config.Cfg.LogPath
	config.Cfg.LogPath = logPath
	t.Cleanup(func() { config.Cfg.LogPath = oldPath })

	if err := os.WriteFile(logPath, []byte("line one\nline two\nline three\n"), 0644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	rec := doRequest(t, api, http.MethodGet, "/api/v1/logs?lines=2", "org-123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get logs: %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["logs"] != "line two\nline three" {
		t.Errorf("logs tail: got %q", resp["logs"])
	}

	if rec := doRequest(t, api, http.MethodDelete, "/api/v1/logs", "org-123", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear logs: %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/logs", "org-123", "")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["logs"] != "" {
		t.Errorf("logs after clear: got %q", resp["logs"])
	}
}

func TestCredentialEndpoints(t *testing.T) {
	api := setupAPI(t)

	// Unconfigured organizations get a negative answer, not an error.
	rec := doRequest(t, api, http.MethodGet, "/api/v1/integrations/digitalocean", "org-123", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get before put: %d", rec.Code)
	}
	var resp credentialResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Configured {
		t.Error("expected configured=false before any token is stored")
	}

	rec = doRequest(t, api, http.MethodPut, "/api/v1/integrations/digitalocean", "org-123",
		`{"token":"dop_v1_0123456789abcdef"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: %d: %s", rec.Code, rec.Body.String())
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.MaskedToken != "****cdef" || !resp.Configured {
		t.Errorf("put response: %+v", resp)
	}
	if strings.Contains(rec.Body.String(), "dop_v1_0123456789abcdef") {
		t.Error("response echoes the full token")
	}

	// Stored encrypted, never plaintext.
	cred, err := database.GetIntegrationCredential("org-123", provider.DigitalOcean)
	if err != nil {
		t.Fatalf("credential not stored: %v", err)
	}
	if cred.Token == "dop_v1_0123456789abcdef" {
		t.Error("token stored in plaintext")
	}

	rec = doRequest(t, api, http.MethodGet, "/api/v1/integrations/digitalocean", "org-123", "")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.MaskedToken != "****cdef" || !resp.Configured {
		t.Errorf("get response: %+v", resp)
	}

	rec = doRequest(t, api, http.MethodPut, "/api/v1/integrations/digitalocean", "org-123", `{"token":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty token: got %d, want 400", rec.Code)
	}
}
