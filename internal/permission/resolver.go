package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/channel"
	"github.com/agentgate/agentgate/internal/identity"
)

// ErrActionNotGranted is returned when no set in the scope chain grants the
// capability an action requires.
var ErrActionNotGranted = errors.New("action not granted by any scope")

// ScopeRef pairs a permission set with the scope layer it came from.
type ScopeRef struct {
	Source Source
	Set    *PermissionSet
}

// Resolve picks the last non-nil permission set in the chain (the most
// specific scope fully overrides the others, grants are never merged across
// scopes) and resolves the action within it. The chain must be ordered role,
// context, channel; trailing layers may be absent. A grant with no clearance
// of its own inherits the winning set's default.
func Resolve(chain []ScopeRef, actionType action.Type, shellSubtype action.ShellSubtype, resourceID string) (*EffectivePermission, error) {
	capability, _, err := action.Classify(actionType, shellSubtype)
	if err != nil {
		return nil, err
	}

	var winner ScopeRef
	for _, ref := range chain {
		if ref.Set != nil {
			winner = ref
		}
	}
	if winner.Set == nil {
		return nil, ErrActionNotGranted
	}

	if capability.IsGlobal() {
		if !winner.Set.GlobalFlag(capability.Global) {
			return nil, ErrActionNotGranted
		}
		return &EffectivePermission{
			ActionType: actionType,
			Clearance:  winner.Set.DefaultClearance,
			Source:     winner.Source,
			Set:        winner.Set,
		}, nil
	}

	grant := winner.Set.FindGrant(capability.Resource, resourceID)
	if grant == nil {
		return nil, ErrActionNotGranted
	}
	clearance := grant.Clearance
	if clearance == ClearanceUnset {
		clearance = winner.Set.DefaultClearance
	}
	return &EffectivePermission{
		ActionType: actionType,
		Clearance:  clearance,
		ResourceID: resourceID,
		Source:     winner.Source,
		Set:        winner.Set,
	}, nil
}

// Resolver loads the scope chain behind a channel and resolves permissions
// for the agents and users acting in it.
type Resolver struct {
	permissionRepo Repository
	channelRepo    channel.Repository
	identityRepo   identity.Repository
}

func NewResolver(permissionRepo Repository, channelRepo channel.Repository, identityRepo identity.Repository) *Resolver {
	return &Resolver{
		permissionRepo: permissionRepo,
		channelRepo:    channelRepo,
		identityRepo:   identityRepo,
	}
}

// ScopeChain assembles the role, context and channel permission sets for a
// principal acting in a channel, ordered least specific first.
func (r *Resolver) ScopeChain(ctx context.Context, roleID, channelID string) ([]ScopeRef, error) {
	var chain []ScopeRef

	role, err := r.channelRepo.GetRole(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("load role %s: %w", roleID, err)
	}
	roleSet, err := r.permissionRepo.Get(ctx, role.PermissionSetID)
	if err != nil {
		return nil, fmt.Errorf("load role permission set %s: %w", role.PermissionSetID, err)
	}
	chain = append(chain, ScopeRef{Source: SourceRole, Set: roleSet})

	if channelID == "" {
		return chain, nil
	}
	ch, err := r.channelRepo.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load channel %s: %w", channelID, err)
	}
	chCtx, err := r.channelRepo.GetContext(ctx, ch.ContextID)
	if err != nil {
		return nil, fmt.Errorf("load context %s: %w", ch.ContextID, err)
	}
	if chCtx.PermissionSetID != "" {
		set, err := r.permissionRepo.Get(ctx, chCtx.PermissionSetID)
		if err != nil {
			return nil, fmt.Errorf("load context permission set %s: %w", chCtx.PermissionSetID, err)
		}
		chain = append(chain, ScopeRef{Source: SourceContext, Set: set})
	}
	if ch.PermissionSetID != "" {
		set, err := r.permissionRepo.Get(ctx, ch.PermissionSetID)
		if err != nil {
			return nil, fmt.Errorf("load channel permission set %s: %w", ch.PermissionSetID, err)
		}
		chain = append(chain, ScopeRef{Source: SourceChannel, Set: set})
	}
	return chain, nil
}

// ResolveForAgent resolves an action for an agent acting in a channel.
func (r *Resolver) ResolveForAgent(ctx context.Context, agentID, channelID string, actionType action.Type, shellSubtype action.ShellSubtype, resourceID string) (*EffectivePermission, error) {
	agent, err := r.identityRepo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", agentID, err)
	}
	chain, err := r.ScopeChain(ctx, agent.RoleID, channelID)
	if err != nil {
		return nil, err
	}
	return Resolve(chain, actionType, shellSubtype, resourceID)
}

// ResolveForUser resolves an action for a user acting in a channel.
func (r *Resolver) ResolveForUser(ctx context.Context, userID, channelID string, actionType action.Type, shellSubtype action.ShellSubtype, resourceID string) (*EffectivePermission, error) {
	user, err := r.identityRepo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	chain, err := r.ScopeChain(ctx, user.RoleID, channelID)
	if err != nil {
		return nil, err
	}
	return Resolve(chain, actionType, shellSubtype, resourceID)
}
