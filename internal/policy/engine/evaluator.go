package engine

import (
	"context"

	accountdomain "snaplink/backend/internal/account/domain"
	twofactordomain "snaplink/backend/internal/twofactor/domain"
)

// StepUpResult holds the result of step-up policy evaluation.
type StepUpResult struct {
	StepUpRequired bool
}

// Evaluator decides whether an operation must be confirmed with a second
// factor, using OPA or other engines.
type Evaluator interface {
	// EvaluateStepUp evaluates step-up policy for the given account, its
	// second-factor profile and the operation being attempted. profile may
	// be nil when the account has no profile row.
	EvaluateStepUp(
		ctx context.Context,
		account *accountdomain.Account,
		profile *twofactordomain.SecondFactorProfile,
		purpose twofactordomain.CodePurpose,
	) (StepUpResult, error)
}
