// Package middleware carries the calling organization's identity through
// request context. The service sits behind the platform's API layer on an
// internal trust boundary: the upstream has already authenticated the tenant
// and asserts it via the X-Organization-ID header.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const orgContextKey contextKey = "organization"

// OrganizationHeader is the header the upstream API layer uses to assert the
// calling tenant.
const OrganizationHeader = "X-Organization-ID"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequireOrganization rejects requests without an organization identity and
// stores the asserted organization ID in the request context.
func RequireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(OrganizationHeader)
		if orgID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Organization identity required"})
			return
		}
		ctx := context.WithValue(r.Context(), orgContextKey, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrganizationID returns the organization asserted for this request, or ""
// when the middleware did not run.
func OrganizationID(r *http.Request) string {
	if orgID, ok := r.Context().Value(orgContextKey).(string); ok {
		return orgID
	}
	return ""
}
