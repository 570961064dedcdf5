package compute

import (
	"context"
	"fmt"
	"log"

	"github.com/skybridge-ai/compute-plane/internal/logutil"
)

const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

type TransferRequest struct {
	ResourceID     string `json:"-"`
	Direction      string `json:"direction"`
	Content        string `json:"content,omitempty"`
	RemotePath     string `json:"remote_path"`
	OrganizationID string `json:"-"`
}

type TransferResult struct {
	Success          bool   `json:"success"`
	BytesTransferred int    `json:"bytes_transferred,omitempty"`
	Content          string `json:"content,omitempty"`
}

// Transfer pushes content to, or pulls content from, the resource's VM.
// Content is treated as opaque bytes; no encoding conversion is applied.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.RemotePath == "" {
		return nil, fmt.Errorf("%w: remote_path is required", ErrInvalidArgument)
	}
	if req.Direction != DirectionPush && req.Direction != DirectionPull {
		return nil, fmt.Errorf("%w: direction must be %q or %q", ErrInvalidArgument, DirectionPush, DirectionPull)
	}
	if req.Direction == DirectionPush && req.Content == "" {
		return nil, fmt.Errorf("%w: content is required for push", ErrInvalidArgument)
	}

	signer, md, err := s.sessionFor(req.ResourceID, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	switch req.Direction {
	case DirectionPush:
		if err := s.Transport.Push(ctx, md.IP, signer, req.RemotePath, []byte(req.Content)); err != nil {
			return nil, fmt.Errorf("push to %s: %w", req.ResourceID, err)
		}
		log.Printf("[transfer] pushed %d bytes to %s:%s", len(req.Content), req.ResourceID, logutil.SanitizeForLog(req.RemotePath))
		return &TransferResult{Success: true, BytesTransferred: len(req.Content)}, nil

	default: // pull
		data, err := s.Transport.Pull(ctx, md.IP, signer, req.RemotePath)
		if err != nil {
			return nil, fmt.Errorf("pull from %s: %w", req.ResourceID, err)
		}
		log.Printf("[transfer] pulled %d bytes from %s:%s", len(data), req.ResourceID, logutil.SanitizeForLog(req.RemotePath))
		return &TransferResult{Success: true, Content: string(data)}, nil
	}
}
