package permission

import (
	"context"
	"fmt"

	"github.com/agentgate/agentgate/internal/channel"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/pkg/cerr"
)

type memPermissionRepo struct {
	sets map[string]*PermissionSet
}

func (m *memPermissionRepo) Get(_ context.Context, id string) (*PermissionSet, error) {
	set, ok := m.sets[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("permission set %s not found", id), nil)
	}
	return set, nil
}

func (m *memPermissionRepo) List(_ context.Context) ([]*PermissionSet, error) {
	sets := make([]*PermissionSet, 0, len(m.sets))
	for _, s := range m.sets {
		sets = append(sets, s)
	}
	return sets, nil
}

func (m *memPermissionRepo) Upsert(_ context.Context, set *PermissionSet) error {
	m.sets[set.ID] = set
	return nil
}

type memChannelRepo struct {
	roles    map[string]*channel.Role
	contexts map[string]*channel.Context
	channels map[string]*channel.Channel
}

func (m *memChannelRepo) CreateRole(_ context.Context, r *channel.Role) error {
	m.roles[r.ID] = r
	return nil
}

func (m *memChannelRepo) GetRole(_ context.Context, id string) (*channel.Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("role %s not found", id), nil)
	}
	return r, nil
}

func (m *memChannelRepo) CreateContext(_ context.Context, c *channel.Context) error {
	m.contexts[c.ID] = c
	return nil
}

func (m *memChannelRepo) GetContext(_ context.Context, id string) (*channel.Context, error) {
	c, ok := m.contexts[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("context %s not found", id), nil)
	}
	return c, nil
}

func (m *memChannelRepo) CreateChannel(_ context.Context, c *channel.Channel) error {
	m.channels[c.ID] = c
	return nil
}

func (m *memChannelRepo) GetChannel(_ context.Context, id string) (*channel.Channel, error) {
	c, ok := m.channels[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("channel %s not found", id), nil)
	}
	return c, nil
}

func (m *memChannelRepo) ListChannels(_ context.Context) ([]*channel.Channel, error) {
	channels := make([]*channel.Channel, 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}
	return channels, nil
}

type memIdentityRepo struct {
	users  map[string]*identity.User
	agents map[string]*identity.Agent
}

func (m *memIdentityRepo) CreateUser(_ context.Context, u *identity.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memIdentityRepo) GetUser(_ context.Context, id string) (*identity.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("user %s not found", id), nil)
	}
	return u, nil
}

func (m *memIdentityRepo) ListUsers(_ context.Context) ([]*identity.User, error) {
	users := make([]*identity.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	return users, nil
}

func (m *memIdentityRepo) CreateAgent(_ context.Context, a *identity.Agent) error {
	m.agents[a.ID] = a
	return nil
}

func (m *memIdentityRepo) GetAgent(_ context.Context, id string) (*identity.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("agent %s not found", id), nil)
	}
	return a, nil
}

func (m *memIdentityRepo) ListAgents(_ context.Context) ([]*identity.Agent, error) {
	agents := make([]*identity.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	return agents, nil
}

// testWorld wires an in-memory resolver with one role, context and channel
// per permission set handed in.
type testWorld struct {
	permRepo     *memPermissionRepo
	channelRepo  *memChannelRepo
	identityRepo *memIdentityRepo
	resolver     *Resolver
}

func newTestWorld() *testWorld {
	w := &testWorld{
		permRepo:     &memPermissionRepo{sets: map[string]*PermissionSet{}},
		channelRepo:  &memChannelRepo{roles: map[string]*channel.Role{}, contexts: map[string]*channel.Context{}, channels: map[string]*channel.Channel{}},
		identityRepo: &memIdentityRepo{users: map[string]*identity.User{}, agents: map[string]*identity.Agent{}},
	}
	w.resolver = NewResolver(w.permRepo, w.channelRepo, w.identityRepo)
	return w
}

func (w *testWorld) addSet(set *PermissionSet) {
	w.permRepo.sets[set.ID] = set
}

func (w *testWorld) addRole(id, permissionSetID string) {
	w.channelRepo.roles[id] = &channel.Role{ID: id, Name: id, PermissionSetID: permissionSetID}
}

func (w *testWorld) addScope(contextID, channelID, contextSetID, channelSetID string) {
	w.channelRepo.contexts[contextID] = &channel.Context{ID: contextID, Name: contextID, PermissionSetID: contextSetID}
	w.channelRepo.channels[channelID] = &channel.Channel{ID: channelID, Name: channelID, ContextID: contextID, PermissionSetID: channelSetID}
}

func (w *testWorld) addUser(id, roleID string) {
	w.identityRepo.users[id] = &identity.User{ID: id, Name: id, RoleID: roleID}
}

func (w *testWorld) addAgent(id, roleID string) {
	w.identityRepo.agents[id] = &identity.Agent{ID: id, Name: id, RoleID: roleID}
}
