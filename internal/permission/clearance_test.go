package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSatisfactionIsMonotonic(t *testing.T) {
	conditions := func(c Clearance) map[Condition]bool {
		m := make(map[Condition]bool)
		for _, cond := range SatisfyingConditions(c) {
			m[cond] = true
		}
		return m
	}

	strictest := conditions(ClearanceWhitelistedAgent)
	for _, c := range []Clearance{ClearanceSameLevelUser, ClearanceWhitelistedUser, ClearancePermittedAgent} {
		for cond := range conditions(c) {
			assert.True(t, strictest[cond], "condition %s satisfies %s but not the strictest requirement", cond, c)
		}
	}

	// Anyone qualifying for a stricter requirement also qualifies for the
	// baseline.
	baseline := conditions(ClearanceSameLevelUser)
	for _, c := range []Clearance{ClearanceWhitelistedUser, ClearancePermittedAgent, ClearanceWhitelistedAgent} {
		for cond := range conditions(c) {
			assert.True(t, baseline[cond], "condition %s satisfies %s but not the baseline requirement", cond, c)
		}
	}
}

func TestSiblingBranches(t *testing.T) {
	wlUser := SatisfyingConditions(ClearanceWhitelistedUser)
	assert.NotContains(t, wlUser, CondPermittedAgent)
	assert.Contains(t, SatisfyingConditions(ClearancePermittedAgent), CondWhitelistedUser)
}

func TestIndependentNeedsNoApprover(t *testing.T) {
	assert.Empty(t, SatisfyingConditions(ClearanceIndependent))
}

func TestClearanceValidity(t *testing.T) {
	assert.False(t, ClearanceUnset.Valid())
	assert.False(t, Clearance("SOMETHING_ELSE").Valid())
	for _, c := range []Clearance{ClearanceSameLevelUser, ClearanceWhitelistedUser, ClearancePermittedAgent, ClearanceWhitelistedAgent, ClearanceIndependent} {
		assert.True(t, c.Valid(), "clearance %s", c)
	}
}
