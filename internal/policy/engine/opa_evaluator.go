package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	accountdomain "snaplink/backend/internal/account/domain"
	"snaplink/backend/internal/policy/repository"
	twofactordomain "snaplink/backend/internal/twofactor/domain"
)

// Default Rego policy: sign-in needs a code when the account opted in to the
// second factor; email changes always need one.
const defaultRegoPolicy = `package snaplink.step_up

default step_up_required = false

step_up_required if {
	input.purpose == "login"
	input.profile.exists
	input.profile.enabled
}

step_up_required if {
	input.purpose == "email_change"
}
`

// OPAEvaluator evaluates step-up policies using OPA Rego.
type OPAEvaluator struct {
	policyRepo repository.Repository
	log        *zap.Logger
}

// NewOPAEvaluator returns an OPA-based step-up evaluator. policyRepo may be
// nil; then only the built-in default policy is used.
func NewOPAEvaluator(policyRepo repository.Repository, log *zap.Logger) *OPAEvaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &OPAEvaluator{policyRepo: policyRepo, log: log}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo or database. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return fmt.Errorf("compile default policy: %w", err)
	}
	minimalInput := map[string]interface{}{
		"purpose": "login",
		"account": map[string]interface{}{"id": "", "status": "active"},
		"profile": map[string]interface{}{"exists": false, "enabled": false},
	}
	q := rego.New(
		rego.Query("data.snaplink.step_up.step_up_required"),
		rego.Compiler(compiler),
		rego.Input(minimalInput),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return fmt.Errorf("eval default policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("policy query returned no result")
	}
	return nil
}

// EvaluateStepUp evaluates step-up policy using OPA Rego policies.
func (e *OPAEvaluator) EvaluateStepUp(
	ctx context.Context,
	account *accountdomain.Account,
	profile *twofactordomain.SecondFactorProfile,
	purpose twofactordomain.CodePurpose,
) (StepUpResult, error) {
	input := e.buildInput(account, profile, purpose)

	// Load enabled policies; fall back to the built-in default.
	var policies []string
	if e.policyRepo != nil {
		enabledPolicies, err := e.policyRepo.GetEnabledPolicies(ctx)
		if err != nil {
			e.log.Warn("policy: failed to load policies", zap.Error(err))
		} else {
			for _, p := range enabledPolicies {
				if p.Enabled && p.Rules != "" {
					policies = append(policies, p.Rules)
				}
			}
		}
	}
	if len(policies) == 0 {
		policies = []string{defaultRegoPolicy}
	}

	result, err := e.evaluatePolicies(ctx, policies, input)
	if err != nil {
		e.log.Warn("policy: evaluation failed, using defaults", zap.Error(err))
		return e.defaultResult(profile, purpose), nil
	}
	return result, nil
}

func (e *OPAEvaluator) buildInput(
	account *accountdomain.Account,
	profile *twofactordomain.SecondFactorProfile,
	purpose twofactordomain.CodePurpose,
) map[string]interface{} {
	accountMap := map[string]interface{}{
		"id":     "",
		"status": "",
	}
	if account != nil {
		accountMap["id"] = account.ID
		accountMap["status"] = string(account.Status)
	}

	profileMap := map[string]interface{}{
		"exists":  false,
		"enabled": false,
	}
	if profile != nil {
		profileMap["exists"] = true
		profileMap["enabled"] = profile.Enabled
	}

	return map[string]interface{}{
		"purpose": string(purpose),
		"account": accountMap,
		"profile": profileMap,
	}
}

func (e *OPAEvaluator) evaluatePolicies(ctx context.Context, policies []string, input map[string]interface{}) (StepUpResult, error) {
	modules := make(map[string]string)
	for i, policy := range policies {
		modules[fmt.Sprintf("policy_%d.rego", i)] = policy
	}

	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return StepUpResult{}, fmt.Errorf("compile policies: %w", err)
	}

	out := StepUpResult{StepUpRequired: false}

	q := rego.New(
		rego.Query("data.snaplink.step_up.step_up_required"),
		rego.Compiler(compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return StepUpResult{}, fmt.Errorf("eval step_up_required: %w", err)
	}
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if v, ok := rs[0].Expressions[0].Value.(bool); ok {
			out.StepUpRequired = v
		}
	}
	return out, nil
}

// defaultResult mirrors the built-in policy without going through Rego.
func (e *OPAEvaluator) defaultResult(profile *twofactordomain.SecondFactorProfile, purpose twofactordomain.CodePurpose) StepUpResult {
	if purpose == twofactordomain.CodePurposeEmailChange {
		return StepUpResult{StepUpRequired: true}
	}
	return StepUpResult{StepUpRequired: profile != nil && profile.Enabled}
}
