package gitsync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/remote"
	"github.com/projecteru2/warren/workspace"
)

// requireGit skips the test when git is not available.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, dir, name, content, msg string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	git(t, dir, "add", name)
	git(t, dir, "commit", "-q", "-m", msg)
}

// setupHost creates a host repository with one commit and returns its path
// and checked-out branch.
func setupHost(t *testing.T) (string, string) {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	git(t, dir, "init", "-q")
	git(t, dir, "config", "user.name", "Test User")
	git(t, dir, "config", "user.email", "test@test.com")
	commitFile(t, dir, "README.md", "# test\n", "initial commit")
	return dir, git(t, dir, "symbolic-ref", "--short", "HEAD")
}

// setupEngine wires a host repo, a guest-side registry over a Local runner,
// and the engine between them.
func setupEngine(t *testing.T) (*Engine, *workspace.Registry, string, string, string) {
	t.Helper()
	hostDir, branch := setupHost(t)
	guest := t.TempDir()
	conf := config.DefaultConfig()
	conf.RootDir = t.TempDir()
	conf.PoolSize = 2
	runner := remote.NewLocal(guest)
	return New(hostDir, runner), workspace.NewRegistry(conf, runner), hostDir, guest, branch
}

func TestPushRoundTrip(t *testing.T) {
	e, reg, hostDir, guest, branch := setupEngine(t)
	ctx := context.Background()

	ws, created, err := reg.Ensure(ctx, "myrepo", branch)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, e.Push(ctx, branch, ws))

	wsDir := filepath.Join(guest, ws.Path)
	assert.Equal(t, git(t, hostDir, "rev-parse", branch), git(t, wsDir, "rev-parse", branch))
	// The working tree reflects the pushed branch.
	assert.Equal(t, branch, git(t, wsDir, "symbolic-ref", "--short", "HEAD"))
	assert.FileExists(t, filepath.Join(wsDir, "README.md"))
}

func TestPushAutoCreatesBranch(t *testing.T) {
	e, reg, hostDir, _, _ := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", "topic")
	require.NoError(t, err)

	// "topic" does not exist on the host yet; Push creates it from HEAD.
	require.NoError(t, e.Push(ctx, "topic", ws))
	assert.Equal(t, git(t, hostDir, "rev-parse", "HEAD"), git(t, hostDir, "rev-parse", "topic"))
}

func TestPushDiverged(t *testing.T) {
	e, reg, hostDir, guest, branch := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", branch)
	require.NoError(t, err)
	require.NoError(t, e.Push(ctx, branch, ws))

	// Both sides advance independently.
	commitFile(t, filepath.Join(guest, ws.Path), "guest.txt", "guest\n", "guest work")
	commitFile(t, hostDir, "host.txt", "host\n", "host work")

	err = e.Push(ctx, branch, ws)
	require.ErrorIs(t, err, ErrDiverged)

	// The guest commit survived.
	assert.FileExists(t, filepath.Join(guest, ws.Path, "guest.txt"))
}

func TestFetchCheckedOutBranch(t *testing.T) {
	e, reg, hostDir, guest, branch := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", branch)
	require.NoError(t, err)
	require.NoError(t, e.Push(ctx, branch, ws))

	wsDir := filepath.Join(guest, ws.Path)
	commitFile(t, wsDir, "feature.go", "package feature\n", "guest work")

	res, err := e.Fetch(ctx, branch, ws)
	require.NoError(t, err)
	assert.False(t, res.DirtyWarned)

	// Ref and working tree moved together.
	assert.Equal(t, git(t, wsDir, "rev-parse", branch), git(t, hostDir, "rev-parse", branch))
	assert.FileExists(t, filepath.Join(hostDir, "feature.go"))
}

func TestFetchOtherBranch(t *testing.T) {
	e, reg, hostDir, guest, branch := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", "topic")
	require.NoError(t, err)
	require.NoError(t, e.Push(ctx, "topic", ws))

	wsDir := filepath.Join(guest, ws.Path)
	commitFile(t, wsDir, "topic.txt", "work\n", "guest work")

	res, err := e.Fetch(ctx, "topic", ws)
	require.NoError(t, err)
	assert.False(t, res.DirtyWarned)

	// The host ref advanced; the checked-out branch did not move.
	assert.Equal(t, git(t, wsDir, "rev-parse", "topic"), git(t, hostDir, "rev-parse", "topic"))
	assert.Equal(t, branch, git(t, hostDir, "symbolic-ref", "--short", "HEAD"))
	assert.NoFileExists(t, filepath.Join(hostDir, "topic.txt"))
}

func TestFetchDirtyWarns(t *testing.T) {
	e, reg, _, guest, branch := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", branch)
	require.NoError(t, err)
	require.NoError(t, e.Push(ctx, branch, ws))

	// Uncommitted guest changes warn but never block.
	require.NoError(t, os.WriteFile(filepath.Join(guest, ws.Path, "wip.txt"), []byte("wip\n"), 0o644))

	res, err := e.Fetch(ctx, branch, ws)
	require.NoError(t, err)
	assert.True(t, res.DirtyWarned)

	// The uncommitted file stayed behind in the guest.
	assert.FileExists(t, filepath.Join(guest, ws.Path, "wip.txt"))
}

func TestFetchDiverged(t *testing.T) {
	e, reg, hostDir, guest, _ := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", "topic")
	require.NoError(t, err)
	require.NoError(t, e.Push(ctx, "topic", ws))

	commitFile(t, filepath.Join(guest, ws.Path), "guest.txt", "guest\n", "guest work")
	git(t, hostDir, "checkout", "-q", "topic")
	commitFile(t, hostDir, "host.txt", "host\n", "host work")

	_, err = e.Fetch(ctx, "topic", ws)
	require.ErrorIs(t, err, ErrDiverged)

	// Non-destructive: the host commit is still there.
	assert.FileExists(t, filepath.Join(hostDir, "host.txt"))
}

func TestPushThenFetchKeepsHistoryIdentical(t *testing.T) {
	e, reg, hostDir, guest, branch := setupEngine(t)
	ctx := context.Background()

	ws, _, err := reg.Ensure(ctx, "myrepo", branch)
	require.NoError(t, err)
	require.NoError(t, e.Push(ctx, branch, ws))

	wsDir := filepath.Join(guest, ws.Path)
	commitFile(t, wsDir, "a.txt", "a\n", "first")
	commitFile(t, wsDir, "b.txt", "b\n", "second")

	_, err = e.Fetch(ctx, branch, ws)
	require.NoError(t, err)

	// Same commit objects on both sides, not equivalent rewrites.
	assert.Equal(t,
		git(t, wsDir, "rev-list", branch),
		git(t, hostDir, "rev-list", branch))
}
