package permission

// Clearance is the approval strength a granted action still requires before
// it may run. Levels are ordered by required strictness, low to high:
// same-level-user approval is the baseline, Independent means no approval at
// all. The satisfaction relation between levels is a partial order, not a
// total one (see satisfiedBy), so never compare clearances numerically.
type Clearance string

const (
	// ClearanceUnset marks a grant that inherits the set's DefaultClearance.
	// It is a fallback marker, not a real level.
	ClearanceUnset Clearance = ""

	ClearanceSameLevelUser    Clearance = "APPROVED_BY_SAME_LEVEL_USER"
	ClearanceWhitelistedUser  Clearance = "APPROVED_BY_WHITELISTED_USER"
	ClearancePermittedAgent   Clearance = "APPROVED_BY_PERMITTED_AGENT"
	ClearanceWhitelistedAgent Clearance = "APPROVED_BY_WHITELISTED_AGENT"
	ClearanceIndependent      Clearance = "INDEPENDENT"
)

func (c Clearance) Valid() bool {
	switch c {
	case ClearanceSameLevelUser, ClearanceWhitelistedUser, ClearancePermittedAgent,
		ClearanceWhitelistedAgent, ClearanceIndependent:
		return true
	default:
		return false
	}
}

// Condition is one way an approver can qualify.
type Condition string

const (
	// CondWhitelistedAgent: the approver is an agent on the set's agent whitelist.
	CondWhitelistedAgent Condition = "WHITELISTED_AGENT"
	// CondPermittedAgent: the approver is an agent that independently holds
	// the same permission.
	CondPermittedAgent Condition = "PERMITTED_AGENT"
	// CondWhitelistedUser: the approver is a user on the set's user whitelist.
	CondWhitelistedUser Condition = "WHITELISTED_USER"
	// CondIndependentUser: the approver is a user that independently holds
	// the same permission at Independent.
	CondIndependentUser Condition = "INDEPENDENT_USER"
)

// satisfiedBy is the explicit satisfaction graph: for each required
// clearance, the conditions that qualify an approver, strongest first.
// Modeled as a table rather than an integer comparison because the levels
// form a partial order: WhitelistedUser and PermittedAgent are sibling
// branches, while WhitelistedAgent subsumes both and everything under them.
var satisfiedBy = map[Clearance][]Condition{
	ClearanceSameLevelUser: {
		CondWhitelistedAgent, CondPermittedAgent, CondWhitelistedUser, CondIndependentUser,
	},
	ClearanceWhitelistedUser: {
		CondWhitelistedAgent, CondWhitelistedUser, CondIndependentUser,
	},
	ClearancePermittedAgent: {
		CondWhitelistedAgent, CondPermittedAgent, CondWhitelistedUser, CondIndependentUser,
	},
	ClearanceWhitelistedAgent: {
		CondWhitelistedAgent, CondPermittedAgent, CondWhitelistedUser, CondIndependentUser,
	},
	// ClearanceIndependent needs no approver at all; it never reaches the
	// condition check.
}

// SatisfyingConditions returns the conditions qualifying an approver for the
// given requirement, in check priority order.
func SatisfyingConditions(required Clearance) []Condition {
	return satisfiedBy[required]
}
