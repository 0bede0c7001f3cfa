package domain

import (
	"errors"
	"time"
)

// ChangeState tags where a pending email change is in its lifecycle.
type ChangeState string

const (
	// StateAwaitingCode means a confirmation code has been sent and the
	// change waits for it to be verified.
	StateAwaitingCode ChangeState = "awaiting_code"
	// StateCommitted means the code was verified and the account's email
	// was updated.
	StateCommitted ChangeState = "committed"
	// StateAbandoned means the change was cancelled or superseded before
	// the code was verified.
	StateAbandoned ChangeState = "abandoned"
)

// ErrInvalidTransition is returned when a lifecycle transition is attempted
// from a state that does not allow it.
var ErrInvalidTransition = errors.New("invalid email change state transition")

// PendingEmailChange is an in-flight request to move an account to a new
// email address. At most one exists per account in the awaiting_code state.
type PendingEmailChange struct {
	ID          string
	AccountID   string
	NewEmail    string
	State       ChangeState
	ChallengeID string // the confirmation challenge tied to this change
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Commit moves the change to committed. Only an awaiting_code change can commit.
func (c *PendingEmailChange) Commit(at time.Time) error {
	if c.State != StateAwaitingCode {
		return ErrInvalidTransition
	}
	c.State = StateCommitted
	c.UpdatedAt = at
	return nil
}

// Abandon moves the change to abandoned. Only an awaiting_code change can be abandoned.
func (c *PendingEmailChange) Abandon(at time.Time) error {
	if c.State != StateAwaitingCode {
		return ErrInvalidTransition
	}
	c.State = StateAbandoned
	c.UpdatedAt = at
	return nil
}
