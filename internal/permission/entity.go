package permission

import (
	"time"

	"github.com/agentgate/agentgate/internal/action"
)

// WildcardResource grants access to every resource of a kind. A specific
// resource grant and the wildcard may coexist; the specific one wins.
const WildcardResource = "*"

// Grant permits access to one resource (or all of a kind) at a clearance.
// An unset clearance inherits the set's DefaultClearance.
type Grant struct {
	ResourceID string    `yaml:"resource_id" json:"resourceId"`
	Clearance  Clearance `yaml:"clearance,omitempty" json:"clearance,omitempty"`
}

// PermissionSet is a named bundle of capability flags and per-resource-kind
// clearance grants, plus the whitelists of principals allowed to approve
// actions on its behalf regardless of their own clearance.
type PermissionSet struct {
	ID               string    `yaml:"id" json:"id"`
	Name             string    `yaml:"name" json:"name"`
	DefaultClearance Clearance `yaml:"default_clearance" json:"defaultClearance"`

	CanCreateSubAgents    bool `yaml:"can_create_sub_agents" json:"canCreateSubAgents"`
	CanCreateContainers   bool `yaml:"can_create_containers" json:"canCreateContainers"`
	CanRegisterInfoStores bool `yaml:"can_register_info_stores" json:"canRegisterInfoStores"`
	CanAccessLocalhost    bool `yaml:"can_access_localhost" json:"canAccessLocalhost"`

	Grants map[action.ResourceKind][]Grant `yaml:"grants" json:"grants"`

	ClearanceUserWhitelist  []string `yaml:"clearance_user_whitelist" json:"clearanceUserWhitelist"`
	ClearanceAgentWhitelist []string `yaml:"clearance_agent_whitelist" json:"clearanceAgentWhitelist"`

	UpdatedAt time.Time `yaml:"updated_at" json:"updatedAt"`
}

// GlobalFlag reports whether the set carries the given global capability.
func (ps *PermissionSet) GlobalFlag(cap action.GlobalCapability) bool {
	switch cap {
	case action.CapCreateSubAgents:
		return ps.CanCreateSubAgents
	case action.CapCreateContainers:
		return ps.CanCreateContainers
	case action.CapRegisterInfoStores:
		return ps.CanRegisterInfoStores
	case action.CapAccessLocalhost:
		return ps.CanAccessLocalhost
	default:
		return false
	}
}

// FindGrant looks up the grant for a resource within one kind: an exact
// match wins over the wildcard; nil when neither exists.
func (ps *PermissionSet) FindGrant(kind action.ResourceKind, resourceID string) *Grant {
	grants := ps.Grants[kind]
	var wildcard *Grant
	for i := range grants {
		switch grants[i].ResourceID {
		case resourceID:
			return &grants[i]
		case WildcardResource:
			wildcard = &grants[i]
		}
	}
	return wildcard
}

// UserWhitelisted reports whether the user may approve on this set's behalf.
func (ps *PermissionSet) UserWhitelisted(userID string) bool {
	for _, id := range ps.ClearanceUserWhitelist {
		if id == userID {
			return true
		}
	}
	return false
}

// AgentWhitelisted reports whether the agent may approve on this set's behalf.
func (ps *PermissionSet) AgentWhitelisted(agentID string) bool {
	for _, id := range ps.ClearanceAgentWhitelist {
		if id == agentID {
			return true
		}
	}
	return false
}

// Source names the scope layer that produced an effective permission.
type Source string

const (
	SourceRole    Source = "role"
	SourceContext Source = "context"
	SourceChannel Source = "channel"
)

// EffectivePermission is the read-only result of resolving one action
// against the winning PermissionSet. It is recomputed per evaluation and
// never persisted.
type EffectivePermission struct {
	ActionType action.Type
	Clearance  Clearance
	ResourceID string
	Source     Source

	// Set is the winning PermissionSet; the verdict engine consults its
	// whitelists.
	Set *PermissionSet
}
