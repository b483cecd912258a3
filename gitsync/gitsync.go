// Package gitsync moves commits between the host repository and a workspace
// clone inside the VM, in both directions. Workspaces are full clones, so
// both directions are ordinary distributed-git ref exchange: no bespoke
// state reconciliation, and divergent history is an error, never an
// overwrite.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/warren/remote"
	"github.com/projecteru2/warren/workspace"
)

// ErrDiverged marks conflicting history between host and guest. The transfer
// is non-destructive: reconcile manually, then retry.
var ErrDiverged = errors.New("host and workspace histories have diverged")

// Engine syncs one host repository against workspace clones.
type Engine struct {
	hostDir string
	runner  remote.Runner
}

// New creates an Engine for the host repository at hostDir.
func New(hostDir string, runner remote.Runner) *Engine {
	return &Engine{hostDir: hostDir, runner: runner}
}

// FetchResult reports what Fetch observed.
type FetchResult struct {
	// DirtyWarned is true when the guest working tree had uncommitted
	// modifications that the history transfer could not capture.
	DirtyWarned bool
}

// Push transmits branch to the workspace clone and checks it out there. The
// branch is auto-created from the current host HEAD when absent — requiring
// users to pre-create branches would be needless friction. Guest-side
// history is never discarded: a non-fast-forward push fails with ErrDiverged.
func (e *Engine) Push(ctx context.Context, branch string, ws *workspace.Workspace) error {
	if err := e.ensureBranch(ctx, branch); err != nil {
		return err
	}

	url := e.runner.GitURL(ws.Path)
	if out, err := e.hostGit(ctx, "push", url, branch+":"+branch); err != nil {
		if isDivergence(out) {
			return fmt.Errorf("%w: branch %s — run: warren fetch %s, reconcile, then push again", ErrDiverged, branch, branch)
		}
		return fmt.Errorf("push %s to %s: %w", branch, ws.Name, err)
	}

	// Make the guest working tree reflect the transferred branch.
	if _, err := e.runner.Run(ctx, "git", "-C", ws.Path, "checkout", "-q", branch); err != nil {
		return fmt.Errorf("checkout %s in %s: %w", branch, ws.Name, err)
	}
	return nil
}

// Fetch pulls branch from the workspace clone into the host repository.
// Uncommitted guest changes are invisible to a history transfer by
// construction, so they produce a prominent warning — never a block, since
// blocking would trap the user. When the branch is checked out on the host
// the working tree is updated in the same step; otherwise only the ref
// advances.
func (e *Engine) Fetch(ctx context.Context, branch string, ws *workspace.Workspace) (*FetchResult, error) {
	logger := log.WithFunc("gitsync.Fetch")
	res := &FetchResult{}

	// Dirty inspection comes first, unconditionally: any caller that also
	// tears down the mount must have seen this warning before paths vanish.
	out, err := e.runner.Run(ctx, "git", "-C", ws.Path, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", ws.Name, err)
	}
	if strings.TrimSpace(out) != "" {
		res.DirtyWarned = true
		logger.Warnf(ctx, "workspace %s has uncommitted changes — they will NOT be fetched; commit them inside the VM first if you need them", ws.Name)
	}

	url := e.runner.GitURL(ws.Path)
	if e.currentBranch(ctx) == branch {
		// Working tree and ref must move together.
		if out, err := e.hostGit(ctx, "pull", "--ff-only", url, branch); err != nil {
			if isDivergence(out) {
				return nil, fmt.Errorf("%w: branch %s is checked out and has local commits the workspace lacks", ErrDiverged, branch)
			}
			return nil, fmt.Errorf("pull %s from %s: %w", branch, ws.Name, err)
		}
		return res, nil
	}

	// Non-forced refspec: refuses non-fast-forward updates.
	if out, err := e.hostGit(ctx, "fetch", url, branch+":"+branch); err != nil {
		if isDivergence(out) {
			return nil, fmt.Errorf("%w: branch %s — check it out and reconcile, or push your host commits first", ErrDiverged, branch)
		}
		return nil, fmt.Errorf("fetch %s from %s: %w", branch, ws.Name, err)
	}
	return res, nil
}

// ensureBranch creates branch from the current HEAD when it does not exist.
func (e *Engine) ensureBranch(ctx context.Context, branch string) error {
	if _, err := e.hostGit(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch); err == nil {
		return nil
	}
	if out, err := e.hostGit(ctx, "branch", branch); err != nil {
		return fmt.Errorf("create branch %s: %s: %w", branch, strings.TrimSpace(out), err)
	}
	return nil
}

// currentBranch returns the branch checked out on the host, or "" for a
// detached HEAD or an unborn branch.
func (e *Engine) currentBranch(ctx context.Context) string {
	out, err := e.hostGit(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// hostGit runs git against the host repository with the runner's transport
// environment, returning combined output for error classification.
func (e *Engine) hostGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", e.hostDir}, args...)...) //nolint:gosec
	cmd.Env = append(os.Environ(), e.runner.GitEnv()...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// isDivergence classifies git transport output as conflicting-history.
func isDivergence(out string) bool {
	out = strings.ToLower(out)
	for _, marker := range []string{
		"non-fast-forward",
		"fetch first",
		"rejected",
		"not possible to fast-forward",
		"divergent branches",
		"refusing to update",
	} {
		if strings.Contains(out, marker) {
			return true
		}
	}
	return false
}
