// Package docs defines the document-store boundary. The engine persists only
// opaque references (URLs) to PO/PFI artifacts; byte storage lives behind an
// external service.
package docs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Ref is an opaque pointer to a stored document.
type Ref string

// ParseRef validates an externally supplied document reference. This is the
// single adapter point for document URLs entering the engine.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("document reference required: %w", shared.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("document reference %q is not an absolute URL: %w", raw, shared.ErrValidation)
	}
	switch u.Scheme {
	case "http", "https":
		return Ref(u.String()), nil
	}
	return "", fmt.Errorf("document reference scheme %q not supported: %w", u.Scheme, shared.ErrValidation)
}

// String returns the underlying URL.
func (r Ref) String() string { return string(r) }
