package eam

import (
	"errors"
	"fmt"
	"strings"
)

// ConflictKind categorizes why the target refused a location delete.
//
// The reconciliation engine branches on these kinds to widen its deletion
// scope; it must never inspect error message wording itself. All knowledge
// of how the target phrases its refusals lives in this package.
type ConflictKind string

const (
	// ConflictHasChildren: the location still has child locations the
	// engine does not know about.
	ConflictHasChildren ConflictKind = "HAS_CHILDREN"

	// ConflictAssetReference: the location is still referenced by one or
	// more asset records.
	ConflictAssetReference ConflictKind = "ASSET_REFERENCE"

	// ConflictOther: the target reported a conflict the engine has no
	// cascade strategy for. Treated as a per-item failure.
	ConflictOther ConflictKind = "OTHER"
)

// ConflictError is a structured delete refusal from the target system.
type ConflictError struct {
	Kind       ConflictKind
	LocationID string
	Message    string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.LocationID != "" {
		return fmt.Sprintf("%s: %s (location=%s)", e.Kind, e.Message, e.LocationID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// AsConflict extracts a ConflictError from err, unwrapping as needed.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsConflict reports whether err is a conflict of the given kind.
func IsConflict(err error, kind ConflictKind) bool {
	ce, ok := AsConflict(err)
	return ok && ce.Kind == kind
}

// classifyConflict maps the target's error body onto a conflict kind.
// The machine-readable code is authoritative; older target versions only
// send prose, so recognizable phrasings are matched as a fallback.
func classifyConflict(code, message string) ConflictKind {
	switch code {
	case "LOC_HAS_CHILDREN":
		return ConflictHasChildren
	case "LOC_ASSET_REFERENCE":
		return ConflictAssetReference
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "has children"):
		return ConflictHasChildren
	case strings.Contains(lower, "referenced in the asset table"),
		strings.Contains(lower, "referenced by an asset"):
		return ConflictAssetReference
	}
	return ConflictOther
}
