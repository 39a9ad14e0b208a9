package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/channel"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/eventbus"
	"github.com/agentgate/agentgate/internal/executor"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/internal/job"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/pkg/cerr"
)

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*job.AgentJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[string]*job.AgentJob{}}
}

func (m *memJobRepo) Create(_ context.Context, j *job.AgentJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return cerr.NewError(cerr.AlreadyExists, fmt.Sprintf("job %s already exists", j.ID), nil)
	}
	clone := *j
	m.jobs[j.ID] = &clone
	return nil
}

func (m *memJobRepo) Get(_ context.Context, id string) (*job.AgentJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("job %s not found", id), nil)
	}
	clone := *j
	return &clone, nil
}

func (m *memJobRepo) Update(_ context.Context, j *job.AgentJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *j
	m.jobs[j.ID] = &clone
	return nil
}

func (m *memJobRepo) List(_ context.Context) ([]*job.AgentJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*job.AgentJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		clone := *j
		jobs = append(jobs, &clone)
	}
	return jobs, nil
}

func (m *memJobRepo) ListByStatus(ctx context.Context, status job.Status) ([]*job.AgentJob, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]*job.AgentJob, 0, len(all))
	for _, j := range all {
		if j.Status == status {
			filtered = append(filtered, j)
		}
	}
	return filtered, nil
}

type memPermissionRepo struct {
	sets map[string]*permission.PermissionSet
}

func (m *memPermissionRepo) Get(_ context.Context, id string) (*permission.PermissionSet, error) {
	set, ok := m.sets[id]
	if !ok {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("permission set %s not found", id), nil)
	}
	return set, nil
}

func (m *memPermissionRepo) List(_ context.Context) ([]*permission.PermissionSet, error) {
	sets := make([]*permission.PermissionSet, 0, len(m.sets))
	for _, s := range m.sets {
		sets = append(sets, s)
	}
	return sets, nil
}

func (m *memPermissionRepo) Upsert(_ context.Context, set *permission.PermissionSet) error {
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

// fixture wires an orchestrator over in-memory stores, a real sandbox in a
// temp dir, and a cast of principals:
//
//	agent-worker  holds safe-shell execution on "alice" at the clearance
//	              the test configures
//	user-boss     holds the same permission at Independent
//	user-nobody   holds nothing
type fixture struct {
	orch     *Orchestrator
	jobRepo  *memJobRepo
	permRepo *memPermissionRepo
}

func newFixture(t *testing.T, clearance permission.Clearance) *fixture {
	t.Helper()
	permRepo := &memPermissionRepo{sets: map[string]*permission.PermissionSet{
		"ps-worker": {
			ID:               "ps-worker",
			DefaultClearance: clearance,
			Grants: map[action.ResourceKind][]permission.Grant{
				action.KindSystemUser:   {{ResourceID: "alice"}},
				action.KindWebsite:      {{ResourceID: "example.com"}},
				action.KindSearchEngine: {{ResourceID: permission.WildcardResource, Clearance: permission.ClearanceIndependent}},
			},
		},
		"ps-boss": {
			ID:               "ps-boss",
			DefaultClearance: permission.ClearanceIndependent,
			Grants: map[action.ResourceKind][]permission.Grant{
				action.KindSystemUser: {{ResourceID: "alice"}},
			},
		},
		"ps-empty": {ID: "ps-empty", DefaultClearance: permission.ClearanceSameLevelUser},
	}}
	channelRepo := &memChannelRepo{
		roles: map[string]*channel.Role{
			"role-worker": {ID: "role-worker", PermissionSetID: "ps-worker"},
			"role-boss":   {ID: "role-boss", PermissionSetID: "ps-boss"},
			"role-empty":  {ID: "role-empty", PermissionSetID: "ps-empty"},
		},
		contexts: map[string]*channel.Context{
			"ctx-main": {ID: "ctx-main"},
		},
		channels: map[string]*channel.Channel{
			"chan-main": {ID: "chan-main", ContextID: "ctx-main"},
		},
	}
	identityRepo := &memIdentityRepo{
		users: map[string]*identity.User{
			"user-boss":   {ID: "user-boss", RoleID: "role-boss"},
			"user-nobody": {ID: "user-nobody", RoleID: "role-empty"},
		},
		agents: map[string]*identity.Agent{
			"agent-worker": {ID: "agent-worker", RoleID: "role-worker"},
		},
	}

	resolver := permission.NewResolver(permRepo, channelRepo, identityRepo)
	engine := permission.NewEngine(resolver)
	sandbox := executor.NewSandbox(&config.SandboxEnv{
		RootDir:         t.TempDir(),
		AllowedBinaries: []string{"cat"},
	}, 0)
	process := executor.NewProcess(t.TempDir(), 0)
	jobRepo := newMemJobRepo()

	f := &fixture{jobRepo: jobRepo, permRepo: permRepo}
	f.orch = New(jobRepo, resolver, engine, sandbox, process, eventbus.New(), 0)
	t.Cleanup(f.orch.Shutdown)
	return f
}

func safeShellSubmit() *SubmitRequest {
	return &SubmitRequest{
		AgentID:    "agent-worker",
		ChannelID:  "chan-main",
		Caller:     identity.Ref{AgentID: "agent-worker"},
		ActionType: action.TypeExecuteSafeShell,
		ResourceID: "alice",
		Shell: &job.ShellSpec{
			Safe: &job.SafeShell{
				Subtype: action.SafeShellScript,
				Script:  "write out.txt done\nread out.txt",
			},
		},
	}
}

func (f *fixture) waitForStatus(t *testing.T, jobID string, want job.Status) *job.AgentJob {
	t.Helper()
	var got *job.AgentJob
	require.Eventually(t, func() bool {
		j, err := f.jobRepo.Get(context.Background(), jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job never reached %s", want)
	return got
}

func TestSubmitIndependentExecutesImmediately(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)
	assert.Equal(t, permission.ClearanceIndependent, j.RequiredClearance)

	done := f.waitForStatus(t, j.ID, job.StatusCompleted)
	assert.Equal(t, "done", done.ResultData)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
}

func TestSubmitUngrantedActionIsDenied(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	req := safeShellSubmit()
	req.ResourceID = "bob" // no grant for this system user
	j, err := f.orch.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDenied, j.Status)
	assert.True(t, j.Status.Terminal())
}

func TestSubmitUnknownActionTypeFailsWithoutJob(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	req := safeShellSubmit()
	req.ActionType = action.Type("MAKE_COFFEE")
	req.Shell = nil
	_, err := f.orch.Submit(context.Background(), req)
	require.ErrorIs(t, err, action.ErrUnknownActionType)

	jobs, err := f.jobRepo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitRequiresChannel(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	req := safeShellSubmit()
	req.ChannelID = ""
	_, err := f.orch.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel id")

	jobs, err := f.jobRepo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSubmitShellPayloadMismatch(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	req := safeShellSubmit()
	req.ActionType = action.TypeExecuteDangerousShell
	_, err := f.orch.Submit(context.Background(), req)
	assert.ErrorIs(t, err, action.ErrUnknownActionType)
}

func TestApprovalFlow(t *testing.T) {
	f := newFixture(t, permission.ClearanceSameLevelUser)

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)
	require.Equal(t, job.StatusAwaitingApproval, j.Status)
	assert.Equal(t, permission.ClearanceSameLevelUser, j.RequiredClearance)

	// An unrelated user does not qualify; the job stays parked.
	_, err = f.orch.Approve(context.Background(), j.ID, identity.Ref{UserID: "user-nobody"})
	require.ErrorIs(t, err, ErrApprovalNotAuthorized)
	parked, err := f.orch.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusAwaitingApproval, parked.Status)

	// A user holding the permission at Independent qualifies.
	approved, err := f.orch.Approve(context.Background(), j.ID, identity.Ref{UserID: "user-boss"})
	require.NoError(t, err)
	assert.Equal(t, identity.Ref{UserID: "user-boss"}, approved.ApprovedBy)

	done := f.waitForStatus(t, j.ID, job.StatusCompleted)
	assert.Equal(t, "done", done.ResultData)
}

func TestApproveNonParkedJob(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)
	f.waitForStatus(t, j.ID, job.StatusCompleted)

	_, err = f.orch.Approve(context.Background(), j.ID, identity.Ref{UserID: "user-boss"})
	assert.Error(t, err)
}

func TestApproveAfterGrantRevoked(t *testing.T) {
	f := newFixture(t, permission.ClearanceSameLevelUser)

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)
	require.Equal(t, job.StatusAwaitingApproval, j.Status)

	// Revoke the grant while the job is parked; approval is re-evaluated
	// against current state and must fail.
	f.permRepo.sets["ps-worker"].Grants = nil
	_, err = f.orch.Approve(context.Background(), j.ID, identity.Ref{UserID: "user-boss"})
	assert.ErrorIs(t, err, ErrApprovalNotAuthorized)
}

func TestCancelParkedJob(t *testing.T) {
	f := newFixture(t, permission.ClearanceSameLevelUser)

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)

	cancelled, err := f.orch.Cancel(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, cancelled.Status)

	_, err = f.orch.Approve(context.Background(), j.ID, identity.Ref{UserID: "user-boss"})
	assert.Error(t, err)
	_, err = f.orch.Cancel(context.Background(), j.ID)
	assert.Error(t, err)
}

func TestNonShellActionCompletesAsAuthorized(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	j, err := f.orch.Submit(context.Background(), &SubmitRequest{
		AgentID:    "agent-worker",
		ChannelID:  "chan-main",
		Caller:     identity.Ref{UserID: "user-boss"},
		ActionType: action.TypeSearch,
		ResourceID: "any-engine",
	})
	require.NoError(t, err)

	done := f.waitForStatus(t, j.ID, job.StatusCompleted)
	assert.Equal(t, "authorized", done.ResultData)
}

func TestSandboxViolationFailsJob(t *testing.T) {
	f := newFixture(t, permission.ClearanceIndependent)

	req := safeShellSubmit()
	req.Shell.Safe.Script = "read ../../etc/passwd"
	j, err := f.orch.Submit(context.Background(), req)
	require.NoError(t, err)

	failed := f.waitForStatus(t, j.ID, job.StatusFailed)
	assert.Contains(t, failed.ErrorLog, "sandbox violation")
}

func TestExpireStale(t *testing.T) {
	f := newFixture(t, permission.ClearanceSameLevelUser)
	f.orch.approvalTTL = time.Nanosecond

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)
	require.Equal(t, job.StatusAwaitingApproval, j.Status)

	time.Sleep(time.Millisecond)
	require.NoError(t, f.orch.ExpireStale(context.Background()))

	expired, err := f.orch.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, expired.Status)
}

func TestExpireStaleDisabledByDefault(t *testing.T) {
	f := newFixture(t, permission.ClearanceSameLevelUser)

	j, err := f.orch.Submit(context.Background(), safeShellSubmit())
	require.NoError(t, err)

	require.NoError(t, f.orch.ExpireStale(context.Background()))
	parked, err := f.orch.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusAwaitingApproval, parked.Status)
}
