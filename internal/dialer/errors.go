package dialer

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("dialer: run not found")

	// ErrNoContactsRemaining guards start(): a run needs at least one
	// un-dialed contact.
	ErrNoContactsRemaining = errors.New("dialer: no contacts remaining in list")

	// ErrNoCallerIDs guards start(): origination needs a from-number.
	ErrNoCallerIDs = errors.New("dialer: run has no caller ids configured")
)

// InvalidTransitionError is returned when a lifecycle action is not allowed
// from the run's current status. It is surfaced to the user with the current
// state included; never silently ignored.
type InvalidTransitionError struct {
	RunID  string
	From   RunStatus
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("dialer: cannot %s run %s from status %q", e.Action, e.RunID, e.From)
}

// ConflictError reports that another run already holds the active-run claim.
// The caller may retry with force once the operator decides to override.
type ConflictError struct {
	BlockingRunID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dialer: another run is already active: %s", e.BlockingRunID)
}
