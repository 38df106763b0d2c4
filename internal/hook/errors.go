package hook

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by management operations. Transient delivery failures
// are not errors at this layer; they are recorded on the delivery record.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation")
)

// NotFoundf wraps ErrNotFound with context. Cross-owner access reports
// not-found rather than forbidden so endpoint existence never leaks.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Conflictf wraps ErrConflict with context.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Validationf wraps ErrValidation with context.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}
