package compute

import "errors"

// Failure kinds surfaced by the orchestrators. Callers match with errors.Is;
// provider-API failures additionally carry status and body via
// *provider.APIError (matched with errors.As).
var (
	// ErrNotFound means no ledger row exists for the resource ID.
	ErrNotFound = errors.New("resource not found")

	// ErrAccessDenied means the caller's organization does not own the
	// resource. Cross-tenant access is a hard authorization boundary and is
	// never reported as NotFound.
	ErrAccessDenied = errors.New("access denied: resource belongs to a different organization")

	// ErrInvalidState means the operation was attempted on a resource that
	// is not active (destroyed or failed).
	ErrInvalidState = errors.New("invalid resource state")

	// ErrExpired means the resource's TTL deadline has passed. Expiry is
	// enforced at the access layer; the status field is unchanged.
	ErrExpired = errors.New("resource expired")

	// ErrInvalidArgument means the request itself was malformed.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProvisioningTimeout means the VM never became active with a public
	// IP, or never became SSH-reachable, within the polling budget.
	ErrProvisioningTimeout = errors.New("provisioning timed out")
)
