package repositoryimpl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/identity"
	"github.com/agentgate/agentgate/internal/job"
	"github.com/agentgate/agentgate/pkg/cerr"
	"github.com/agentgate/agentgate/pkg/storage"
)

func newTestRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(store)
}

func TestJobRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	j := job.New("agent-a", "chan-1", identity.Ref{UserID: "user-u"}, action.TypeExecuteSafeShell, "alice", &job.ShellSpec{
		Safe: &job.SafeShell{Subtype: action.SafeShellScript, Script: "read notes.txt"},
	})
	j.AppendLog("submitted")
	require.NoError(t, repo.Create(ctx, j))

	loaded, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, loaded.ID)
	assert.Equal(t, job.StatusQueued, loaded.Status)
	assert.Equal(t, identity.Ref{UserID: "user-u"}, loaded.Caller)
	require.NotNil(t, loaded.Shell.Safe)
	assert.Equal(t, action.SafeShellScript, loaded.Shell.Safe.Subtype)
	require.Len(t, loaded.Log, 1)
	assert.Equal(t, "submitted", loaded.Log[0].Message)
}

func TestJobCreateTwiceFails(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	j := job.New("agent-a", "chan-1", identity.Ref{UserID: "user-u"}, action.TypeSearch, "ddg", nil)
	require.NoError(t, repo.Create(ctx, j))
	err := repo.Create(ctx, j)
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))
}

func TestJobUpdatePersistsTransitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	j := job.New("agent-a", "chan-1", identity.Ref{UserID: "user-u"}, action.TypeSearch, "ddg", nil)
	require.NoError(t, repo.Create(ctx, j))

	require.NoError(t, j.Transition(job.StatusAwaitingApproval))
	require.NoError(t, repo.Update(ctx, j))

	loaded, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusAwaitingApproval, loaded.Status)
}

func TestJobListByStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	parked := job.New("agent-a", "chan-1", identity.Ref{UserID: "user-u"}, action.TypeSearch, "ddg", nil)
	require.NoError(t, parked.Transition(job.StatusAwaitingApproval))
	queued := job.New("agent-b", "chan-1", identity.Ref{UserID: "user-u"}, action.TypeSearch, "ddg", nil)
	require.NoError(t, repo.Create(ctx, parked))
	require.NoError(t, repo.Create(ctx, queued))

	jobs, err := repo.ListByStatus(ctx, job.StatusAwaitingApproval)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, parked.ID, jobs[0].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetMissingJob(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}
