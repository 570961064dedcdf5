package compute

import "fmt"

// sizeSlugs maps the named size presets to provider size slugs. The mapping
// is fixed: callers never pass provider slugs directly.
var sizeSlugs = map[string]string{
	"small":  "s-1vcpu-2gb",
	"medium": "s-2vcpu-4gb",
	"large":  "s-4vcpu-8gb",
}

// ResolveSize translates a named preset into the provider's size slug.
func ResolveSize(preset string) (string, error) {
	slug, ok := sizeSlugs[preset]
	if !ok {
		return "", fmt.Errorf("%w: unknown size %q (expected small, medium, or large)", ErrInvalidArgument, preset)
	}
	return slug, nil
}
