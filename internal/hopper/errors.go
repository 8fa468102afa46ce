package hopper

import (
	"errors"
	"fmt"
)

// Expected negative outcomes. These flow back to callers as ordinary results,
// never as aborts.
var (
	ErrNotFound         = errors.New("hopper not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// InvariantError reports an internal consistency violation (double
// registration, missing location). The offending operation is aborted and the
// record stays in its last known-good state.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

func invariant(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// Verdict is the caller-facing outcome of a permission-gated operation. A
// declined action carries a short machine-readable reason; presentation is
// the host's problem.
type Verdict struct {
	OK     bool
	Reason string
}

func allow() Verdict             { return Verdict{OK: true} }
func deny(reason string) Verdict { return Verdict{OK: false, Reason: reason} }

func (v Verdict) Denied() bool { return !v.OK }
