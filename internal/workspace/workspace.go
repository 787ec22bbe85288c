// Package workspace manages per-job git working directories.
//
// A workspace is a fresh clone of a repository below a base directory that
// is keyed by the repository slug. Workspaces are not reused across jobs,
// every job gets a newly created directory.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/gitcmd"
	"github.com/simplesurance/backportd/internal/logfields"
)

const loggerName = "workspace"

type Manager struct {
	workDir      string
	gitUserName  string
	gitUserEmail string
	logger       *zap.Logger
}

func NewManager(workDir, gitUserName, gitUserEmail string) *Manager {
	return &Manager{
		workDir:      workDir,
		gitUserName:  gitUserName,
		gitUserEmail: gitUserEmail,
		logger:       zap.L().Named(loggerName),
	}
}

// Remote is a named git remote.
type Remote struct {
	Name string
	URL  string
}

// Workspace is the working directory of a single job.
type Workspace struct {
	Path string
	Slug string

	logger *zap.Logger
}

// Prepare creates a fresh workspace for the repository and clones it.
//
// The workspace directory is created below <workDir>/<slug>, cleared and
// recreated to guarantee that it is empty, the repository is cloned into it,
// untracked files that a partial clone might have left behind are discarded,
// the default branch is checked out and pulled and the bot git identity is
// configured locally for the clone.
// Any failing git operation is fatal, the half-prepared directory is left
// behind for the OS tempdir cleanup.
func (m *Manager) Prepare(ctx context.Context, slug, cloneURL string) (*Workspace, error) {
	baseDir := filepath.Join(m.workDir, filepath.FromSlash(slug))

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace base directory failed: %w", err)
	}

	dir := filepath.Join(baseDir, fmt.Sprintf("job-%d", time.Now().UnixNano()))

	// clear twice, a retried job must never find leftovers
	for i := 0; i < 2; i++ {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("clearing workspace directory failed: %w", err)
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating workspace directory failed: %w", err)
		}
	}

	logger := m.logger.With(
		logfields.Repository(slug),
		logfields.Workspace(dir),
	)

	logger.Debug("workspace directory created", logfields.Event("workspace_created"))

	if _, err := gitcmd.Run(ctx, []string{"clone", cloneURL, "."}, gitcmd.Options{Dir: dir}); err != nil {
		return nil, fmt.Errorf("cloning repository failed: %w", err)
	}

	if _, err := gitcmd.Run(ctx, []string{"reset", "--hard"}, gitcmd.Options{Dir: dir}); err != nil {
		return nil, fmt.Errorf("resetting clone failed: %w", err)
	}

	if _, err := gitcmd.Run(ctx, []string{"clean", "-fd"}, gitcmd.Options{Dir: dir}); err != nil {
		return nil, fmt.Errorf("discarding untracked files failed: %w", err)
	}

	defBranch, err := defaultBranch(ctx, dir)
	if err != nil {
		return nil, err
	}

	if _, err := gitcmd.Run(ctx, []string{"checkout", defBranch}, gitcmd.Options{Dir: dir}); err != nil {
		return nil, fmt.Errorf("checking out default branch %q failed: %w", defBranch, err)
	}

	if _, err := gitcmd.Run(ctx, []string{"pull"}, gitcmd.Options{Dir: dir}); err != nil {
		return nil, fmt.Errorf("pulling default branch failed: %w", err)
	}

	for _, kv := range [][2]string{
		{"user.name", m.gitUserName},
		{"user.email", m.gitUserEmail},
		{"commit.gpgsign", "false"},
	} {
		if _, err := gitcmd.Run(ctx, []string{"config", "--local", kv[0], kv[1]}, gitcmd.Options{Dir: dir}); err != nil {
			return nil, fmt.Errorf("setting git config %s failed: %w", kv[0], err)
		}
	}

	logger.Debug(
		"workspace prepared",
		logfields.Event("workspace_prepared"),
		logfields.Branch(defBranch),
	)

	return &Workspace{
		Path:   dir,
		Slug:   slug,
		logger: logger,
	}, nil
}

func defaultBranch(ctx context.Context, dir string) (string, error) {
	res, err := gitcmd.Run(ctx, []string{"rev-parse", "--abbrev-ref", "HEAD"}, gitcmd.Options{Dir: dir})
	if err != nil {
		return "", fmt.Errorf("resolving default branch failed: %w", err)
	}

	branch := strings.TrimSpace(res.Stdout)
	if branch == "" || branch == "HEAD" {
		return "", fmt.Errorf("could not resolve default branch, rev-parse returned %q", branch)
	}

	return branch, nil
}

// BindRemotes adds the given remotes to the workspace and fetches each of
// them, in the order given.
// Binding is append-only, remotes are never removed. Adding a remote with an
// already bound name fails.
func (ws *Workspace) BindRemotes(ctx context.Context, remotes ...Remote) error {
	for _, remote := range remotes {
		if _, err := gitcmd.Run(ctx,
			[]string{"remote", "add", remote.Name, remote.URL},
			gitcmd.Options{Dir: ws.Path},
		); err != nil {
			return fmt.Errorf("adding remote %q failed: %w", remote.Name, err)
		}
	}

	for _, remote := range remotes {
		if _, err := gitcmd.Run(ctx,
			[]string{"fetch", remote.Name},
			gitcmd.Options{Dir: ws.Path},
		); err != nil {
			return fmt.Errorf("fetching remote %q failed: %w", remote.Name, err)
		}

		ws.logger.Debug(
			"remote bound",
			logfields.Event("workspace_remote_bound"),
			zap.String("git.remote", remote.Name),
		)
	}

	return nil
}

// CheckoutRemoteBranch checks out a local branch tracking remote/branch and
// pulls it to ensure it is up to date.
func (ws *Workspace) CheckoutRemoteBranch(ctx context.Context, remote, branch string) error {
	ref := remote + "/" + branch

	if _, err := gitcmd.Run(ctx,
		[]string{"checkout", "-B", branch, ref},
		gitcmd.Options{Dir: ws.Path},
	); err != nil {
		return fmt.Errorf("checking out %q failed: %w", ref, err)
	}

	if _, err := gitcmd.Run(ctx,
		[]string{"pull", remote, branch},
		gitcmd.Options{Dir: ws.Path},
	); err != nil {
		return fmt.Errorf("pulling %q failed: %w", ref, err)
	}

	return nil
}

// CreateBranch creates and checks out a new local branch from the current
// HEAD.
func (ws *Workspace) CreateBranch(ctx context.Context, name string) error {
	if _, err := gitcmd.Run(ctx,
		[]string{"checkout", "-b", name},
		gitcmd.Options{Dir: ws.Path},
	); err != nil {
		return fmt.Errorf("creating branch %q failed: %w", name, err)
	}

	return nil
}

// ApplyPatch applies a mailbox-format patch file with a three-way merge
// fallback, creating a commit.
func (ws *Workspace) ApplyPatch(ctx context.Context, patchFile string) error {
	if _, err := gitcmd.Run(ctx,
		[]string{"am", "--3way", patchFile},
		gitcmd.Options{Dir: ws.Path},
	); err != nil {
		return fmt.Errorf("applying patch failed: %w", err)
	}

	return nil
}

// Push pushes branch to the remote and sets it as upstream.
func (ws *Workspace) Push(ctx context.Context, remote, branch string) error {
	if _, err := gitcmd.Run(ctx,
		[]string{"push", "--set-upstream", remote, branch},
		gitcmd.Options{Dir: ws.Path},
	); err != nil {
		return fmt.Errorf("pushing branch %q to %q failed: %w", branch, remote, err)
	}

	return nil
}
