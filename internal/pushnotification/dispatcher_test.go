package pushnotification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/pushsubscription"
)

func effWith(clearance permission.Clearance, userWhitelist []string) *permission.EffectivePermission {
	return &permission.EffectivePermission{
		ActionType: action.TypeExecuteSafeShell,
		Clearance:  clearance,
		Set: &permission.PermissionSet{
			ID:                     "ps-test",
			DefaultClearance:       clearance,
			ClearanceUserWhitelist: userWhitelist,
		},
	}
}

func TestApproverTargets(t *testing.T) {
	// No whitelist: any sufficiently cleared user may approve, so everyone
	// gets notified.
	assert.Nil(t, approverTargets(effWith(permission.ClearanceSameLevelUser, nil)))

	// Whitelisted users qualify as approvers for this requirement; the
	// notification targets them.
	assert.Equal(t, []string{"user-a", "user-b"},
		approverTargets(effWith(permission.ClearanceWhitelistedUser, []string{"user-a", "user-b"})))
	assert.Equal(t, []string{"user-a"},
		approverTargets(effWith(permission.ClearanceSameLevelUser, []string{"user-a"})))

	// Independent needs no approver at all; nothing to target.
	assert.Nil(t, approverTargets(effWith(permission.ClearanceIndependent, []string{"user-a"})))
}

func TestFilterSubscriptions(t *testing.T) {
	subs := []*pushsubscription.Subscription{
		{ID: "s1", UserID: "user-a"},
		{ID: "s2", UserID: "user-b"},
		{ID: "s3"}, // unbound, receives everything
	}

	assert.Equal(t, subs, filterSubscriptions(subs, nil))

	got := filterSubscriptions(subs, []string{"user-b"})
	ids := make([]string, 0, len(got))
	for _, s := range got {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"s2", "s3"}, ids)

	got = filterSubscriptions(subs, []string{"user-z"})
	assert.Len(t, got, 1)
	assert.Equal(t, "s3", got[0].ID)
}
