package prereq

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTopic          = errors.New("prereq: topic has no letters or digits")
	ErrRootMissing         = errors.New("prereq: learner graph has no root")
	ErrDepthExceeded       = errors.New("prereq: expansion depth exceeded")
	ErrOracleDecomposition = errors.New("prereq: topic decomposition failed")
	ErrOracleCoverage      = errors.New("prereq: coverage lookup failed")
	ErrStoreRead           = errors.New("prereq: store read failed")
	ErrStoreWrite          = errors.New("prereq: store write failed")
	ErrSignalPublish       = errors.New("prereq: signal publish failed")
	ErrMalformedStatus     = errors.New("prereq: malformed node status")
)

// MalformedStatusError reports a vertex whose stored status is outside the
// state machine. Propagation records it and skips that branch.
type MalformedStatusError struct {
	NodeID string
	Raw    string
}

func (e *MalformedStatusError) Error() string {
	return fmt.Sprintf("prereq: node %q has malformed status %q", e.NodeID, e.Raw)
}

func (e *MalformedStatusError) Unwrap() error { return ErrMalformedStatus }

// wrap tags cause with kind so callers can match either with errors.Is.
func wrap(kind error, format string, cause error, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, cause)
}
