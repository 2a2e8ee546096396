package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnhealthy indicates a remote collaborator is unreachable
	ErrUnhealthy = errors.New("remote unhealthy")

	// ErrLocked indicates another sync run holds the state lock
	ErrLocked = errors.New("sync state locked by another run")
)

// UsageError reports invalid command-line arguments. The CLI exits with
// status 2 when it sees one.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Usagef builds a UsageError
func Usagef(format string, args ...interface{}) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// IsUsageError reports whether err wraps a UsageError
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}
