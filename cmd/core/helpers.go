package core

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/gitsync"
	"github.com/projecteru2/warren/mount"
	"github.com/projecteru2/warren/provision"
	"github.com/projecteru2/warren/provision/terraform"
	"github.com/projecteru2/warren/remote"
	"github.com/projecteru2/warren/types"
	"github.com/projecteru2/warren/vm"
	"github.com/projecteru2/warren/workspace"
)

// BaseHandler provides shared config access for all command handlers.
type BaseHandler struct {
	ConfProvider func() *config.Config
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// InitController wires the provisioning backend into a lifecycle controller.
func InitController(conf *config.Config) (*vm.Controller, provision.Provisioner, error) {
	backend, err := terraform.New(conf)
	if err != nil {
		return nil, nil, fmt.Errorf("init backend: %w", err)
	}
	ctrl, err := vm.NewController(conf, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("init controller: %w", err)
	}
	return ctrl, backend, nil
}

// GuestComponents builds the per-endpoint component set: the remote channel,
// the workspace registry, and the mount manager.
func GuestComponents(conf *config.Config, ep *types.Endpoint) (*remote.SSH, *workspace.Registry, *mount.Manager) {
	runner := remote.NewSSH(conf, ep)
	return runner, workspace.NewRegistry(conf, runner), mount.NewManager(conf, ep)
}

// SyncEngine builds a git sync engine for the host repo over runner.
func SyncEngine(hostDir string, runner remote.Runner) *gitsync.Engine {
	return gitsync.New(hostDir, runner)
}

// HostRepo locates the enclosing host git repository: its top-level dir,
// repository name and currently checked-out branch ("" when detached).
func HostRepo(ctx context.Context) (dir, name, branch string, err error) {
	out, err := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", "", "", fmt.Errorf("not inside a git repository (run warren from your project checkout)")
	}
	dir = strings.TrimSpace(string(out))
	name = filepath.Base(dir)

	if out, err := exec.CommandContext(ctx, "git", "-C", dir, "symbolic-ref", "--quiet", "--short", "HEAD").Output(); err == nil {
		branch = strings.TrimSpace(string(out))
	}
	return dir, name, branch, nil
}

// ResourceOverridesFromFlags parses --memory/--cpus/--disk. Returns nil when
// no override flag was set, so the controller can tell "defaults" apart from
// "explicit request" when warning about an existing VM.
func ResourceOverridesFromFlags(cmd *cobra.Command, conf *config.Config) (*types.ResourceSpec, error) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if !changed("memory") && !changed("cpus") && !changed("disk") {
		return nil, nil
	}

	memStr, _ := cmd.Flags().GetString("memory")
	cpus, _ := cmd.Flags().GetInt("cpus")
	diskStr, _ := cmd.Flags().GetString("disk")
	if memStr == "" {
		memStr = conf.VM.Memory
	}
	if cpus <= 0 {
		cpus = conf.VM.CPUs
	}
	if diskStr == "" {
		diskStr = conf.VM.Disk
	}

	mem, err := units.RAMInBytes(memStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --memory %q: %w", memStr, err)
	}
	disk, err := units.RAMInBytes(diskStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --disk %q: %w", diskStr, err)
	}
	return &types.ResourceSpec{Memory: mem, CPUs: cpus, Disk: disk}, nil
}

// FormatSize humanizes a byte count for listings.
func FormatSize(bytes int64) string {
	return units.BytesSize(float64(bytes))
}

// Fatalf is used by main for errors that escape cobra.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
