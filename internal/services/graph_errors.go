package services

import (
	"errors"
	"fmt"

	types "github.com/yungbote/neurobridge-prereq/internal/domain"
)

var (
	ErrNodeNotFound      = errors.New("node not found")
	ErrRootImmutable     = errors.New("root node status cannot change")
	ErrInvalidStatus     = errors.New("invalid node status")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrUnknownGrade      = errors.New("unknown grade level")
)

// TransitionError names the rejected move.
type TransitionError struct {
	NodeID string
	From   types.NodeStatus
	To     types.NodeStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("node %q cannot move from %s to %s", e.NodeID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
