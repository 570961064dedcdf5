package compute

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTransferPush(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, newFakeProvider(), transport)
	id := seedActiveResource(t, "org-123", time.Now().Add(time.Hour))

	result, err := svc.Transfer(context.Background(), TransferRequest{
		ResourceID:     id,
		Direction:      DirectionPush,
		Content:        "Hello World",
		RemotePath:     "/workspace/input.txt",
		OrganizationID: "org-123",
	})
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	if !result.Success {
		t.Error("expected success")
	}
	if result.BytesTransferred != 11 {
		t.Errorf("bytes transferred: got %d, want 11", result.BytesTransferred)
	}
	if transport.lastPath != "/workspace/input.txt" {
		t.Errorf("remote path: got %q", transport.lastPath)
	}
	if string(transport.lastData) != "Hello World" {
		t.Errorf("pushed data: got %q", transport.lastData)
	}
}

func TestTransferPull(t *testing.T) {
	transport := newFakeTransport()
	transport.pullData = []byte("result: ok\n")
	svc := newTestService(t, newFakeProvider(), transport)
	id := seedActiveResource(t, "org-123", time.Now().Add(time.Hour))

	result, err := svc.Transfer(context.Background(), TransferRequest{
		ResourceID:     id,
		Direction:      DirectionPull,
		RemotePath:     "/workspace/out.log",
		OrganizationID: "org-123",
	})
	if err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}
	if result.Content != "result: ok\n" {
		t.Errorf("content: got %q", result.Content)
	}
}

func TestTransferValidation(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, newFakeProvider(), transport)
	id := seedActiveResource(t, "org-123", time.Now().Add(time.Hour))

	cases := []struct {
		name    string
		req     TransferRequest
		message string
	}{
		{
			name:    "missing remote path",
			req:     TransferRequest{ResourceID: id, Direction: DirectionPush, Content: "x", OrganizationID: "org-123"},
			message: "remote_path is required",
		},
		{
			name:    "bad direction",
			req:     TransferRequest{ResourceID: id, Direction: "sideways", RemotePath: "/tmp/x", OrganizationID: "org-123"},
			message: "direction must be",
		},
		{
			name:    "push without content",
			req:     TransferRequest{ResourceID: id, Direction: DirectionPush, RemotePath: "/tmp/x", OrganizationID: "org-123"},
			message: "content is required",
		},
	}
	for _, tc := range cases {
		_, err := svc.Transfer(context.Background(), tc.req)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: expected ErrInvalidArgument, got %v", tc.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.message) {
			t.Errorf("%s: message %q does not mention %q", tc.name, err.Error(), tc.message)
		}
	}
	if transport.pushCalls != 0 || transport.pullCalls != 0 {
		t.Error("transport was called for an invalid request")
	}
}

func TestTransferOwnershipIsolation(t *testing.T) {
	transport := newFakeTransport()
	svc := newTestService(t, newFakeProvider(), transport)
	id := seedActiveResource(t, "org-OTHER", time.Now().Add(time.Hour))

	_, err := svc.Transfer(context.Background(), TransferRequest{
		ResourceID:     id,
		Direction:      DirectionPull,
		RemotePath:     "/etc/passwd",
		OrganizationID: "org-123",
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if transport.pullCalls != 0 {
		t.Error("transport was called despite access denial")
	}
}

func TestTransferExpiredResource(t *testing.T) {
	svc := newTestService(t, newFakeProvider(), newFakeTransport())
	id := seedActiveResource(t, "org-123", time.Now().Add(-time.Hour))

	_, err := svc.Transfer(context.Background(), TransferRequest{
		ResourceID:     id,
		Direction:      DirectionPush,
		Content:        "late",
		RemotePath:     "/tmp/late",
		OrganizationID: "org-123",
	})
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}
