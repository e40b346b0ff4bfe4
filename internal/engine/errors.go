package engine

import (
	"errors"
	"fmt"
)

// journalError marks a journal persistence failure. The journal is the only
// crash-recovery record, so losing a write aborts the run; per-entity target
// failures do not.
type journalError struct {
	err error
}

func (e *journalError) Error() string {
	return fmt.Sprintf("journal append failed: %v", e.err)
}

func (e *journalError) Unwrap() error {
	return e.err
}

// isFatal reports whether an error from a per-entity operation must abort
// the whole run instead of being logged and skipped.
func isFatal(err error) bool {
	var jerr *journalError
	return errors.As(err, &jerr)
}
