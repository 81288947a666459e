package meshcli

import (
	"errors"
	"fmt"
)

// ErrCommandTimeout indicates the device command exceeded its deadline.
var ErrCommandTimeout = errors.New("device command timed out")

// CommandError wraps a failed device command invocation. Retryable; the
// triggering pass is aborted with no catalog writes.
type CommandError struct {
	Op     string // "report" or "config export"
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("device %s command failed: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("device %s command failed: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
