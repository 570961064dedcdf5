package compute

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skybridge-ai/compute-plane/internal/sshkeys"
	"golang.org/x/crypto/ssh"
)

type ExecuteRequest struct {
	ResourceID     string `json:"-"`
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout"`
	OrganizationID string `json:"-"`
}

type ExecuteResult struct {
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMs int64  `json:"duration_ms"`
}

const defaultExecTimeout = 120 * time.Second

// Execute runs a command on the resource's VM in the workspace directory.
// Preconditions are checked in order: existence, ownership, state, expiry.
// The remote exit code, stdout, and stderr are returned verbatim.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if req.Command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidArgument)
	}

	signer, md, err := s.sessionFor(req.ResourceID, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	timeout := defaultExecTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	result, err := s.Transport.Run(ctx, md.IP, signer, WorkspacePath, req.Command, timeout)
	if err != nil {
		return nil, fmt.Errorf("execute on %s: %w", req.ResourceID, err)
	}

	log.Printf("[execute] %s: exit=%d in %s", req.ResourceID, result.ExitCode, result.Duration)
	return &ExecuteResult{
		ExitCode:   result.ExitCode,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		DurationMs: result.Duration.Milliseconds(),
	}, nil
}

// ExecuteStream runs a command on the resource's VM, delivering output lines
// to sink as they are produced. Returns the remote exit code.
func (s *Service) ExecuteStream(ctx context.Context, req ExecuteRequest, sink func(line string)) (int, error) {
	if req.Command == "" {
		return -1, fmt.Errorf("%w: command is required", ErrInvalidArgument)
	}

	signer, md, err := s.sessionFor(req.ResourceID, req.OrganizationID)
	if err != nil {
		return -1, err
	}

	exitCode, err := s.Transport.Stream(ctx, md.IP, signer, WorkspacePath, req.Command, sink)
	if err != nil {
		return -1, fmt.Errorf("stream on %s: %w", req.ResourceID, err)
	}
	return exitCode, nil
}

// sessionFor runs the full precondition chain for a remote operation and, on
// success, returns the decrypted SSH signer and the resource metadata. The
// plaintext key exists only for the duration of the call chain.
func (s *Service) sessionFor(resourceID, organizationID string) (ssh.Signer, *dialTarget, error) {
	res, err := loadOwned(resourceID, organizationID)
	if err != nil {
		return nil, nil, err
	}
	md, err := res.DecodeMetadata()
	if err != nil {
		return nil, nil, fmt.Errorf("decode metadata for %s: %w", resourceID, err)
	}
	if err := requireActive(res, md); err != nil {
		return nil, nil, err
	}

	privateKey, err := s.Encryptor.Open(md.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("decrypt private key for %s: %w", resourceID, err)
	}
	signer, err := sshkeys.ParsePrivateKey([]byte(privateKey))
	if err != nil {
		return nil, nil, err
	}
	return signer, &dialTarget{IP: md.IP}, nil
}

// dialTarget is the connection summary sessionFor hands back.
type dialTarget struct {
	IP string
}
