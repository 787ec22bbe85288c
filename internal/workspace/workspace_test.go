package workspace

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func requireGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed, skipping")
	}
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	require.NoErrorf(t, cmd.Run(), "git %v failed: %s", args, out.String())

	return out.String()
}

func newFixtureRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	gitRun(t, dir, "init")
	gitRun(t, dir, "config", "user.name", "fixture")
	gitRun(t, dir, "config", "user.email", "fixture@example.com")
	gitRun(t, dir, "config", "commit.gpgsign", "false")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1\n"), 0o644))
	gitRun(t, dir, "add", "a.txt")
	gitRun(t, dir, "commit", "-m", "initial commit")

	return dir
}

func TestPrepareCreatesFreshConfiguredClone(t *testing.T) {
	requireGit(t)
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	upstream := newFixtureRepo(t)

	mgr := NewManager(t.TempDir(), "backport-bot", "bot@example.com")

	ws, err := mgr.Prepare(context.Background(), "o/r", upstream)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(ws.Path, ".git"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(ws.Path, "a.txt"))
	require.NoError(t, err)

	assert.Equal(t, "backport-bot",
		strings.TrimSpace(gitRun(t, ws.Path, "config", "user.name")))
	assert.Equal(t, "bot@example.com",
		strings.TrimSpace(gitRun(t, ws.Path, "config", "user.email")))
	assert.Equal(t, "false",
		strings.TrimSpace(gitRun(t, ws.Path, "config", "commit.gpgsign")))
}

func TestPrepareDoesNotReuseWorkspaceDirectories(t *testing.T) {
	requireGit(t)
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	upstream := newFixtureRepo(t)

	mgr := NewManager(t.TempDir(), "backport-bot", "bot@example.com")

	ws1, err := mgr.Prepare(context.Background(), "o/r", upstream)
	require.NoError(t, err)

	ws2, err := mgr.Prepare(context.Background(), "o/r", upstream)
	require.NoError(t, err)

	assert.NotEqual(t, ws1.Path, ws2.Path)
}

func TestPrepareFailsWhenCloneFails(t *testing.T) {
	requireGit(t)
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	mgr := NewManager(t.TempDir(), "backport-bot", "bot@example.com")

	_, err := mgr.Prepare(context.Background(), "o/r", filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestBindRemotesFailsOnDuplicateName(t *testing.T) {
	requireGit(t)
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	upstream := newFixtureRepo(t)

	mgr := NewManager(t.TempDir(), "backport-bot", "bot@example.com")

	ws, err := mgr.Prepare(context.Background(), "o/r", upstream)
	require.NoError(t, err)

	err = ws.BindRemotes(context.Background(), Remote{Name: "fork", URL: upstream})
	require.NoError(t, err)

	err = ws.BindRemotes(context.Background(), Remote{Name: "fork", URL: upstream})
	require.Error(t, err)
}

func TestBindRemotesFetchesRefs(t *testing.T) {
	requireGit(t)
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	upstream := newFixtureRepo(t)
	gitRun(t, upstream, "branch", "release-1.0")

	mgr := NewManager(t.TempDir(), "backport-bot", "bot@example.com")

	ws, err := mgr.Prepare(context.Background(), "o/r", upstream)
	require.NoError(t, err)

	err = ws.BindRemotes(context.Background(), Remote{Name: "target_repo", URL: upstream})
	require.NoError(t, err)

	gitRun(t, ws.Path, "rev-parse", "--verify", "target_repo/release-1.0")
}
