package generalize

import (
	"fmt"
	"time"
)

// ConsistencyViolationError blocks a promotion whose member patches have
// diverged since the pattern was marked ready. It never affects resolution.
type ConsistencyViolationError struct {
	PatternID string
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("pattern %s failed consistency re-validation", e.PatternID)
}

// LockTimeoutError means the baseline document lock could not be obtained in
// time. Promotions hitting it can simply be retried.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not lock %s within %s", e.Path, e.Timeout)
}

// BackupFailureError hard-aborts a promotion before any baseline write is
// attempted; a write without a verified backup is never allowed.
type BackupFailureError struct {
	Path  string
	Cause error
}

func (e *BackupFailureError) Error() string {
	return fmt.Sprintf("failed to back up %s: %v", e.Path, e.Cause)
}

func (e *BackupFailureError) Unwrap() error { return e.Cause }
