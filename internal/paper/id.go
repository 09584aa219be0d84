// Package paper defines the core identity and record types for collected papers.
package paper

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidID is returned when a paper ID does not match the arXiv format.
var ErrInvalidID = errors.New("invalid paper ID")

// IDFormatHint describes the accepted ID format for user-facing messages.
const IDFormatHint = "paper ID must be in format YYMM.NNNNN (e.g., 2401.12345)"

// idPattern matches new-style arXiv identifiers (YYMM.NNNN or YYMM.NNNNN).
// Paper IDs double as directory names, so nothing outside this pattern
// may ever reach a filesystem path.
var idPattern = regexp.MustCompile(`^\d{4}\.\d{4,5}$`)

// ValidID reports whether id matches the paper ID format.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ValidateID returns an error wrapping ErrInvalidID if id is malformed.
func ValidateID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
