package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/identity"
)

// Verdict is the outcome of checking a caller against a clearance
// requirement.
type Verdict string

const (
	VerdictDenied          Verdict = "DENIED"
	VerdictPendingApproval Verdict = "PENDING_APPROVAL"
	VerdictApproved        Verdict = "APPROVED"
)

// Decision carries a verdict together with the clearance that produced it
// and, when an approver qualified, the condition they qualified under.
type Decision struct {
	Verdict           Verdict
	RequiredClearance Clearance
	SatisfiedBy       Condition
}

// Engine decides whether an action may run, must wait for approval, or has
// been approved by a qualifying party. Permission and clearance are
// independent axes: an ungranted action is always denied, never parked.
type Engine struct {
	resolver *Resolver
}

func NewEngine(resolver *Resolver) *Engine {
	return &Engine{resolver: resolver}
}

// Evaluate computes the verdict for a freshly resolved permission before
// any approver has acted. Independent clearance is approved outright;
// everything else awaits approval.
func (e *Engine) Evaluate(effective *EffectivePermission) Decision {
	if effective.Clearance == ClearanceIndependent {
		return Decision{Verdict: VerdictApproved, RequiredClearance: ClearanceIndependent}
	}
	return Decision{Verdict: VerdictPendingApproval, RequiredClearance: effective.Clearance}
}

// EvaluateApproval re-evaluates a parked action with an approver identity.
// Conditions are checked strongest first; the first one the approver meets
// settles the verdict. An approver who meets none leaves the verdict at
// PendingApproval so the caller can reject the attempt explicitly.
func (e *Engine) EvaluateApproval(ctx context.Context, effective *EffectivePermission, channelID string, shellSubtype action.ShellSubtype, approver identity.Ref) (Decision, error) {
	decision := e.Evaluate(effective)
	if decision.Verdict == VerdictApproved {
		return decision, nil
	}

	for _, cond := range SatisfyingConditions(effective.Clearance) {
		ok, err := e.meets(ctx, effective, channelID, shellSubtype, approver, cond)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			decision.Verdict = VerdictApproved
			decision.SatisfiedBy = cond
			return decision, nil
		}
	}
	return decision, nil
}

func (e *Engine) meets(ctx context.Context, effective *EffectivePermission, channelID string, shellSubtype action.ShellSubtype, approver identity.Ref, cond Condition) (bool, error) {
	switch cond {
	case CondWhitelistedAgent:
		return approver.IsAgent() && effective.Set.AgentWhitelisted(approver.AgentID), nil
	case CondWhitelistedUser:
		return approver.IsUser() && effective.Set.UserWhitelisted(approver.UserID), nil
	case CondPermittedAgent:
		if !approver.IsAgent() {
			return false, nil
		}
		_, err := e.resolver.ResolveForAgent(ctx, approver.AgentID, channelID, effective.ActionType, shellSubtype, effective.ResourceID)
		if errors.Is(err, ErrActionNotGranted) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("resolve approver agent %s: %w", approver.AgentID, err)
		}
		return true, nil
	case CondIndependentUser:
		if !approver.IsUser() {
			return false, nil
		}
		own, err := e.resolver.ResolveForUser(ctx, approver.UserID, channelID, effective.ActionType, shellSubtype, effective.ResourceID)
		if errors.Is(err, ErrActionNotGranted) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("resolve approver user %s: %w", approver.UserID, err)
		}
		return own.Clearance == ClearanceIndependent, nil
	default:
		return false, nil
	}
}
