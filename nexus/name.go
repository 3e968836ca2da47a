package nexus

import (
	"github.com/sledctl/sledctl/apierr"
)

const maxNameLength = 63

// ValidateName enforces the resource name grammar: begins with an
// ASCII lowercase letter, thereafter lowercase ASCII letters, digits,
// or '-', length at most 63. Rejection messages name the offending
// character whenever one exists, matching the resource API's
// documented error text.
func ValidateName(name string) error {
	if len(name) == 0 {
		return apierr.InvalidRequest("name must begin with an ASCII lowercase character")
	}
	if len(name) > maxNameLength {
		return apierr.InvalidRequest("name may not exceed %d characters", maxNameLength)
	}

	first := name[0]
	if first < 'a' || first > 'z' {
		return apierr.InvalidRequest("name must begin with an ASCII lowercase character")
	}

	for _, r := range name[1:] {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return apierr.InvalidRequest("name contains invalid character: %q (allowed characters are lowercase ASCII, digits, and \"-\")", string(r))
	}

	return nil
}
