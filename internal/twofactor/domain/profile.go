package domain

import "time"

// CodePurpose says what a pending verification code unlocks when verified.
type CodePurpose string

const (
	// CodePurposeLogin is a step-up code issued during sign-in.
	CodePurposeLogin CodePurpose = "login"
	// CodePurposeEmailChange is a code confirming an email address change.
	CodePurposeEmailChange CodePurpose = "email_change"
)

// SecondFactorProfile holds an account's second-factor settings together with
// its pending challenge, if any. The pending code lives on the profile row so
// issuing a new code overwrites the previous one and at most one code is
// outstanding per account.
type SecondFactorProfile struct {
	AccountID     string
	Enabled       bool
	ChallengeID   string // opaque handle returned to the caller; empty when no code is pending
	CodeHash      string // SHA-256 hex of the pending code
	CodePurpose   CodePurpose
	CodeIssuedAt  *time.Time
	CodeExpiresAt *time.Time
	AttemptCount  int
	UpdatedAt     time.Time
}

// HasPendingChallenge reports whether a code is currently outstanding.
func (p *SecondFactorProfile) HasPendingChallenge() bool {
	return p.ChallengeID != "" && p.CodeHash != ""
}

// CodeExpired reports whether the pending code's validity window has passed
// at the given time. False when no code is pending.
func (p *SecondFactorProfile) CodeExpired(at time.Time) bool {
	return p.CodeExpiresAt != nil && !at.Before(*p.CodeExpiresAt)
}
