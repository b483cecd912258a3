package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	cmdcore "github.com/projecteru2/warren/cmd/core"
	"github.com/projecteru2/warren/mount"
	"github.com/projecteru2/warren/types"
	"github.com/projecteru2/warren/vm"
	"github.com/projecteru2/warren/workspace"
)

// Handler implements Actions over the VM controller, workspace registry,
// sync engine and mount manager.
type Handler struct {
	cmdcore.BaseHandler
}

// Connect brings up the VM if needed, ensures the branch workspace exists,
// mounts the guest tree on the host, then drops into a shell (or runs the
// command after "--") inside the workspace.
func (h Handler) Connect(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	logger := log.WithFunc("workspace.Connect")

	branchArgs := args
	var command string
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		branchArgs = args[:at]
		command = shellquote.Join(args[at:]...)
	}
	if len(branchArgs) > 1 {
		return fmt.Errorf("at most one branch argument, got %d", len(branchArgs))
	}

	hostDir, repo, hostBranch, err := cmdcore.HostRepo(ctx)
	if err != nil {
		return err
	}
	branch := hostBranch
	if len(branchArgs) == 1 {
		branch = branchArgs[0]
	}
	if branch == "" {
		return fmt.Errorf("host repo is in detached HEAD state, pass a branch explicitly")
	}

	overrides, err := cmdcore.ResourceOverridesFromFlags(cmd, conf)
	if err != nil {
		return err
	}
	credsPath, _ := cmd.Flags().GetString("credentials")

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	ep, err := ctrl.EnsureRunning(ctx, overrides, credsPath)
	if err != nil {
		return err
	}

	runner, registry, mounter := cmdcore.GuestComponents(conf, ep)

	ws, created, err := registry.Ensure(ctx, repo, branch)
	if err != nil {
		return err
	}
	if created {
		logger.Infof(ctx, "created workspace %s, pushing %s", ws.Name, branch)
		if err := cmdcore.SyncEngine(hostDir, runner).Push(ctx, branch, ws); err != nil {
			return fmt.Errorf("initial push of %s: %w", branch, err)
		}
	}

	if err := mounter.EnsureMounted(ctx); err != nil {
		if errors.Is(err, mount.ErrUnavailable) {
			logger.Warnf(ctx, "mount bridge unavailable, continuing without host mount: %v", err)
		} else {
			logger.Warnf(ctx, "mount failed, continuing without host mount: %v", err)
		}
	}

	if command == "" && !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(cmd.OutOrStdout(), "workspace %s ready at %s\n", ws.Name, ws.Path)
		return nil
	}
	return runner.Interactive(ws.Path, command)
}

// Push syncs a branch from the host repo to its workspace, creating the
// workspace when absent.
func (h Handler) Push(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	branch := args[0]

	hostDir, repo, _, err := cmdcore.HostRepo(ctx)
	if err != nil {
		return err
	}

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	ep, err := ctrl.EnsureRunning(ctx, nil, "")
	if err != nil {
		return err
	}

	runner, registry, _ := cmdcore.GuestComponents(conf, ep)
	ws, created, err := registry.Ensure(ctx, repo, branch)
	if err != nil {
		return err
	}
	if err := cmdcore.SyncEngine(hostDir, runner).Push(ctx, branch, ws); err != nil {
		return err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "created workspace %s\n", ws.Name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s\n", branch, ws.Name)
	return nil
}

// Fetch syncs a branch from its workspace back to the host repo. The
// workspace must already exist.
func (h Handler) Fetch(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	branch := args[0]

	hostDir, repo, _, err := cmdcore.HostRepo(ctx)
	if err != nil {
		return err
	}
	name, err := workspace.Name(repo, branch)
	if err != nil {
		return err
	}

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	ep, err := ctrl.EnsureRunning(ctx, nil, "")
	if err != nil {
		return err
	}

	runner, registry, _ := cmdcore.GuestComponents(conf, ep)
	ws, err := registry.Lookup(ctx, name)
	if err != nil {
		return err
	}
	res, err := cmdcore.SyncEngine(hostDir, runner).Fetch(ctx, branch, ws)
	if err != nil {
		return err
	}
	if res.DirtyWarned {
		fmt.Fprintf(cmd.OutOrStdout(), "workspace %s has uncommitted changes, fetched committed state only\n", ws.Name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "fetched %s from %s\n", branch, ws.Name)
	return nil
}

// endpointOfExisting converges an already-declared VM and returns its
// endpoint, or ok=false when no VM exists. List and clean are read/cleanup
// intents: they must never provision a VM as a side effect, so first-use
// provisioning stays with connect and push.
func endpointOfExisting(ctx context.Context, ctrl *vm.Controller) (*types.Endpoint, bool, error) {
	st, err := ctrl.Status(ctx)
	if err != nil {
		return nil, false, err
	}
	if st.State == types.VMStateAbsent {
		return nil, false, nil
	}
	ep, err := ctrl.EnsureRunning(ctx, nil, "")
	if err != nil {
		return nil, false, err
	}
	return ep, true, nil
}

// List prints the workspaces in the VM as a table.
func (h Handler) List(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	withDirty, _ := cmd.Flags().GetBool("dirty")

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	ep, ok, err := endpointOfExisting(ctx, ctrl)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no VM, nothing to list")
		return nil
	}

	_, registry, _ := cmdcore.GuestComponents(conf, ep)
	infos, err := registry.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	if withDirty {
		fmt.Fprintln(w, "NAME\tLAST MODIFIED\tDIRTY")
	} else {
		fmt.Fprintln(w, "NAME\tLAST MODIFIED")
	}
	for _, info := range infos {
		if withDirty {
			ws, err := registry.Lookup(ctx, info.Name)
			dirty := "?"
			if err == nil {
				if d, err := registry.Dirty(ctx, ws); err == nil {
					dirty = "no"
					if d {
						dirty = "yes"
					}
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, info.LastModified.Format("2006-01-02 15:04:05"), dirty)
		} else {
			fmt.Fprintf(w, "%s\t%s\n", info.Name, info.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return w.Flush()
}

// Clean removes one workspace and its stale mount path, if any.
func (h Handler) Clean(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	ep, ok, err := endpointOfExisting(ctx, ctrl)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no VM, nothing to clean")
		return nil
	}

	_, registry, mounter := cmdcore.GuestComponents(conf, ep)

	// The argument is a branch of the enclosing repo when one resolves to an
	// existing workspace; otherwise it is taken as a literal workspace name.
	name := args[0]
	if _, repo, _, herr := cmdcore.HostRepo(ctx); herr == nil {
		if n, nerr := workspace.Name(repo, args[0]); nerr == nil {
			if _, lerr := registry.Lookup(ctx, n); lerr == nil || errors.Is(lerr, workspace.ErrCorrupt) {
				name = n
			}
		}
	}

	if err := registry.Clean(ctx, name); err != nil {
		return err
	}
	if err := mounter.CleanupStale(name); err != nil {
		log.WithFunc("workspace.Clean").Warnf(ctx, "stale mount path for %s not removed: %v", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed workspace %s\n", name)
	return nil
}

// CleanAll removes every workspace, best effort.
func (h Handler) CleanAll(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}

	ctrl, _, err := cmdcore.InitController(conf)
	if err != nil {
		return err
	}
	ep, ok, err := endpointOfExisting(ctx, ctrl)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no VM, nothing to clean")
		return nil
	}

	_, registry, mounter := cmdcore.GuestComponents(conf, ep)
	removed, err := registry.CleanAll(ctx)
	for _, name := range removed {
		if cerr := mounter.CleanupStale(name); cerr != nil {
			log.WithFunc("workspace.CleanAll").Warnf(ctx, "stale mount path for %s not removed: %v", name, cerr)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed workspace %s\n", name)
	}
	return err
}
