package compute

// Test fakes shared by the compute package tests. This file has no build tag;
// it is only referenced from _test.go files and keeps them readable.

import (
	"context"
	"fmt"
	"time"

	"github.com/skybridge-ai/compute-plane/internal/provider"
	"github.com/skybridge-ai/compute-plane/internal/sshexec"
	"golang.org/x/crypto/ssh"
)

// fakeEncryptor is a reversible stand-in for Fernet so tests can assert that
// stored values are not plaintext without a real key in the settings table.
type fakeEncryptor struct{}

func (fakeEncryptor) Seal(plaintext string) (string, error) {
	return "sealed:" + plaintext, nil
}

func (fakeEncryptor) Open(envelope string) (string, error) {
	if len(envelope) < 7 || envelope[:7] != "sealed:" {
		return "", fmt.Errorf("decrypt: invalid token")
	}
	return envelope[7:], nil
}

// fakeProvider implements ProviderAPI in memory and records every call.
type fakeProvider struct {
	createKeyCalls     int
	deleteKeyCalls     []int64
	createDropletCalls []provider.DropletRequest
	getDropletCalls    int
	deleteDropletCalls []int64

	keyID     int64
	dropletID int64
	ip        string

	// pollsUntilActive is how many GetDroplet calls report "new" before the
	// droplet turns active with an IP. Zero means active immediately.
	pollsUntilActive int

	failCreateKey     error
	failCreateDroplet error
	failGetDroplet    error
	failDeleteDroplet error
	failDeleteKey     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{keyID: 512189, dropletID: 67890, ip: "10.0.0.1"}
}

func (f *fakeProvider) CreateKey(ctx context.Context, name, publicKey string) (*provider.SSHKey, error) {
	f.createKeyCalls++
	if f.failCreateKey != nil {
		return nil, f.failCreateKey
	}
	return &provider.SSHKey{ID: f.keyID, Name: name, PublicKey: publicKey}, nil
}

func (f *fakeProvider) DeleteKey(ctx context.Context, keyID int64) error {
	f.deleteKeyCalls = append(f.deleteKeyCalls, keyID)
	return f.failDeleteKey
}

func (f *fakeProvider) CreateDroplet(ctx context.Context, req provider.DropletRequest) (*provider.Droplet, error) {
	f.createDropletCalls = append(f.createDropletCalls, req)
	if f.failCreateDroplet != nil {
		return nil, f.failCreateDroplet
	}
	return &provider.Droplet{ID: f.dropletID, Name: req.Name, Status: "new"}, nil
}

func (f *fakeProvider) GetDroplet(ctx context.Context, dropletID int64) (*provider.Droplet, error) {
	f.getDropletCalls++
	if f.failGetDroplet != nil {
		return nil, f.failGetDroplet
	}
	d := &provider.Droplet{ID: dropletID, Status: "new"}
	if f.getDropletCalls > f.pollsUntilActive {
		d.Status = "active"
		d.Networks.V4 = append(d.Networks.V4, struct {
			IPAddress string `json:"ip_address"`
			Type      string `json:"type"`
		}{IPAddress: f.ip, Type: "public"})
	}
	return d, nil
}

func (f *fakeProvider) DeleteDroplet(ctx context.Context, dropletID int64) error {
	f.deleteDropletCalls = append(f.deleteDropletCalls, dropletID)
	return f.failDeleteDroplet
}

// fakeTransport implements Transport without any network access.
type fakeTransport struct {
	runCalls       int
	streamCalls    int
	pushCalls      int
	pullCalls      int
	reachableCalls int

	lastHost    string
	lastDir     string
	lastCommand string
	lastPath    string
	lastData    []byte

	runResult     *sshexec.ExecResult
	pullData      []byte
	streamLines   []string
	streamExit    int
	failRun       error
	failPush      error
	failPull      error
	failReachable error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		runResult: &sshexec.ExecResult{ExitCode: 0, Stdout: "ok\n", Duration: time.Second},
	}
}

func (f *fakeTransport) Run(ctx context.Context, host string, signer ssh.Signer, dir, command string, timeout time.Duration) (*sshexec.ExecResult, error) {
	f.runCalls++
	f.lastHost, f.lastDir, f.lastCommand = host, dir, command
	if f.failRun != nil {
		return nil, f.failRun
	}
	return f.runResult, nil
}

func (f *fakeTransport) Stream(ctx context.Context, host string, signer ssh.Signer, dir, command string, sink func(line string)) (int, error) {
	f.streamCalls++
	f.lastHost, f.lastDir, f.lastCommand = host, dir, command
	for _, line := range f.streamLines {
		sink(line)
	}
	return f.streamExit, nil
}

func (f *fakeTransport) Push(ctx context.Context, host string, signer ssh.Signer, remotePath string, data []byte) error {
	f.pushCalls++
	f.lastHost, f.lastPath, f.lastData = host, remotePath, data
	return f.failPush
}

func (f *fakeTransport) Pull(ctx context.Context, host string, signer ssh.Signer, remotePath string) ([]byte, error) {
	f.pullCalls++
	f.lastHost, f.lastPath = host, remotePath
	if f.failPull != nil {
		return nil, f.failPull
	}
	return f.pullData, nil
}

func (f *fakeTransport) WaitReachable(ctx context.Context, host string, signer ssh.Signer, attempts int, delay time.Duration) error {
	f.reachableCalls++
	f.lastHost = host
	return f.failReachable
}
