package domain

import "time"

// Policy represents a named Rego policy loaded by the step-up evaluator.
type Policy struct {
	ID        string
	Name      string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
