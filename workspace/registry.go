package workspace

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/remote"
	"github.com/projecteru2/warren/types"
)

// Registry enumerates, creates, and removes workspaces inside the running VM.
// Workspace existence is always re-derived by querying the guest — there is
// no host-side workspace index to go stale.
type Registry struct {
	conf   *config.Config
	runner remote.Runner
}

// NewRegistry creates a Registry talking to the guest via runner.
func NewRegistry(conf *config.Config, runner remote.Runner) *Registry {
	return &Registry{conf: conf, runner: runner}
}

// Runner exposes the underlying channel for components layered on top
// (git sync, mount) that address the same guest.
func (r *Registry) Runner() remote.Runner { return r.runner }

func (r *Registry) root() string { return r.conf.VM.GuestRoot }

// List returns all workspaces with their last-modified times, via a single
// remote command. Purely informational: no state mutation, and a missing
// root simply yields an empty listing.
func (r *Registry) List(ctx context.Context) ([]types.WorkspaceInfo, error) {
	root := shellquote.Join(r.root())
	script := fmt.Sprintf(
		`[ -d %s ] || exit 0; find %s -mindepth 1 -maxdepth 1 -type d -exec sh -c 'echo "${0##*/}	$(stat -c %%Y "$0")"' {} \;`,
		root, root)
	out, err := r.runner.Run(ctx, "sh", "-c", script)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	var infos []types.WorkspaceInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		name, epoch, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		sec, err := strconv.ParseInt(strings.TrimSpace(epoch), 10, 64)
		if err != nil {
			continue
		}
		p, err := guestPath(r.root(), name)
		if err != nil {
			continue
		}
		infos = append(infos, types.WorkspaceInfo{
			Name:         name,
			Path:         p,
			LastModified: time.Unix(sec, 0),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Ensure makes sure the workspace for (repo, branch) exists and is a valid
// git repository. Returns created=true when this call initialized it, so the
// caller knows to trigger initial population. A directory without .git is
// reported as ErrCorrupt, never auto-repaired.
func (r *Registry) Ensure(ctx context.Context, repo, branch string) (*Workspace, bool, error) {
	name, err := Name(repo, branch)
	if err != nil {
		return nil, false, err
	}
	p, err := guestPath(r.root(), name)
	if err != nil {
		return nil, false, err
	}
	ws := &Workspace{Name: name, Path: p}

	qp := shellquote.Join(p)
	probe := fmt.Sprintf("if [ -d %s/.git ]; then echo repo; elif [ -e %s ]; then echo corrupt; else echo absent; fi", qp, qp)
	out, err := r.runner.Run(ctx, "sh", "-c", probe)
	if err != nil {
		return nil, false, fmt.Errorf("probe workspace %s: %w", name, err)
	}

	switch strings.TrimSpace(out) {
	case "repo":
		return ws, false, nil
	case "corrupt":
		return nil, false, fmt.Errorf("%w: %s — inspect it inside the VM, then remove it with: warren clean %s", ErrCorrupt, p, name)
	case "absent":
		if err := r.initialize(ctx, ws); err != nil {
			return nil, false, err
		}
		return ws, true, nil
	default:
		return nil, false, fmt.Errorf("probe workspace %s: unexpected output %q", name, out)
	}
}

// Lookup resolves an existing workspace by name without creating anything.
func (r *Registry) Lookup(ctx context.Context, name string) (*Workspace, error) {
	if err := validate(name); err != nil {
		return nil, err
	}
	p, err := guestPath(r.root(), name)
	if err != nil {
		return nil, err
	}
	qp := shellquote.Join(p)
	out, err := r.runner.Run(ctx, "sh", "-c",
		fmt.Sprintf("if [ -d %s/.git ]; then echo repo; elif [ -e %s ]; then echo corrupt; else echo absent; fi", qp, qp))
	if err != nil {
		return nil, fmt.Errorf("probe workspace %s: %w", name, err)
	}
	switch strings.TrimSpace(out) {
	case "repo":
		return &Workspace{Name: name, Path: p}, nil
	case "corrupt":
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
}

// initialize creates the directory and an empty clone with the host's git
// identity (falling back to a placeholder so guest commits never fail on a
// missing identity).
func (r *Registry) initialize(ctx context.Context, ws *Workspace) error {
	userName, userEmail := hostGitIdentity(ctx)
	qp := shellquote.Join(ws.Path)
	script := strings.Join([]string{
		fmt.Sprintf("mkdir -p %s", qp),
		fmt.Sprintf("git -C %s init -q", qp),
		fmt.Sprintf("git -C %s config user.name %s", qp, shellquote.Join(userName)),
		fmt.Sprintf("git -C %s config user.email %s", qp, shellquote.Join(userEmail)),
		fmt.Sprintf("git -C %s config receive.denyCurrentBranch updateInstead", qp),
	}, " && ")
	if _, err := r.runner.Run(ctx, "sh", "-c", script); err != nil {
		return fmt.Errorf("initialize workspace %s: %w", ws.Name, err)
	}
	return nil
}

// Dirty reports whether the workspace working tree or index has uncommitted
// modifications. Computed on demand, never cached.
func (r *Registry) Dirty(ctx context.Context, ws *Workspace) (bool, error) {
	out, err := r.runner.Run(ctx, "git", "-C", ws.Path, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status %s: %w", ws.Name, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// Clean removes one workspace. Deletion is explicit and assumed intentional:
// a dirty working tree produces a warning, not a hard block. The removal is
// verified before the caller is told to drop any host-side bookkeeping.
func (r *Registry) Clean(ctx context.Context, name string) error {
	logger := log.WithFunc("workspace.Clean")
	ws, err := r.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			// Corrupt workspaces are exactly what clean is for — carry on
			// with the path we can still compute.
			p, perr := guestPath(r.root(), name)
			if perr != nil {
				return perr
			}
			ws = &Workspace{Name: name, Path: p}
		} else {
			return err
		}
	} else {
		dirty, derr := r.Dirty(ctx, ws)
		if derr != nil {
			logger.Warnf(ctx, "dirty check for %s failed: %v", name, derr)
		} else if dirty {
			logger.Warnf(ctx, "workspace %s has uncommitted changes — they will be lost", name)
		}
	}

	qp := shellquote.Join(ws.Path)
	// Remove and verify in one round trip; bookkeeping cleanup happens only
	// after confirmed removal.
	script := fmt.Sprintf("rm -rf %s && [ ! -e %s ]", qp, qp)
	if _, err := r.runner.Run(ctx, "sh", "-c", script); err != nil {
		return fmt.Errorf("remove workspace %s: %w", name, err)
	}
	return nil
}

// CleanAll removes every workspace. Independent directories, so the fan-out
// runs concurrently, bounded by PoolSize. Best-effort: all removals are
// attempted and failures joined.
func (r *Registry) CleanAll(ctx context.Context) ([]string, error) {
	infos, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.conf.PoolSize)

	removed := make([]string, 0, len(infos))
	errs := make([]error, len(infos))
	results := make([]bool, len(infos))
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			if err := r.Clean(ctx, info.Name); err != nil {
				errs[i] = fmt.Errorf("workspace %s: %w", info.Name, err)
				return nil // best-effort: keep going
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range results {
		if ok {
			removed = append(removed, infos[i].Name)
		}
	}
	return removed, errors.Join(errs...)
}

// hostGitIdentity reads the host's git identity for guest-side commits,
// falling back to a generic placeholder.
func hostGitIdentity(ctx context.Context) (name, email string) {
	name, email = "warren", "warren@localhost"
	if out, err := exec.CommandContext(ctx, "git", "config", "--get", "user.name").Output(); err == nil {
		if v := strings.TrimSpace(string(out)); v != "" {
			name = v
		}
	}
	if out, err := exec.CommandContext(ctx, "git", "config", "--get", "user.email").Output(); err == nil {
		if v := strings.TrimSpace(string(out)); v != "" {
			email = v
		}
	}
	return name, email
}
