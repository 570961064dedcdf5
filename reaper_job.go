package main

import (
	"context"
	"log"
	"time"

	"github.com/skybridge-ai/compute-plane/internal/compute"
	"github.com/skybridge-ai/compute-plane/internal/database"
)

// reaperNow is a package-level var so tests can control the sweep clock.
var reaperNow = time.Now

// reapExpiredResources tears down every active resource whose TTL deadline
// has passed. Each teardown runs with the owning organization's identity, so
// the normal ownership checks apply. Per-resource failures are logged and do
// not stop the sweep.
func reapExpiredResources(ctx context.Context, svc *compute.Service) {
	resources, err := database.ListActiveResources()
	if err != nil {
		log.Printf("[reaper] list active resources: %v", err)
		return
	}

	now := reaperNow()
	reaped := 0
	for _, res := range resources {
		md, err := res.DecodeMetadata()
		if err != nil {
			log.Printf("[reaper] %s: decode metadata: %v", res.ID, err)
			continue
		}
		if md.ExpiresAt.IsZero() || now.Before(md.ExpiresAt) {
			continue
		}

		result, err := svc.Teardown(ctx, compute.TeardownRequest{
			ResourceID:     res.ID,
			OrganizationID: res.OrganizationID,
		})
		if err != nil {
			log.Printf("[reaper] %s (%s): teardown failed: %v", res.ID, res.Name, err)
			continue
		}
		log.Printf("[reaper] reclaimed expired resource %s (%s) after %d minute(s)",
			res.ID, result.Name, result.DurationMinutes)
		reaped++
	}

	if reaped > 0 {
		log.Printf("[reaper] sweep complete: %d resource(s) reclaimed", reaped)
	}
}
