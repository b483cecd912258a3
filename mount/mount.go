// Package mount binds a single host directory to the VM's entire workspace
// root over an sshfs bridge. The binding is singular per VM: new workspaces
// show up in the next directory listing without any additional bind.
package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/types"
)

// ErrUnavailable marks a missing bridge tool or a failed bind. Degraded
// mode: callers warn and continue, ssh-based workflows stay usable.
var ErrUnavailable = errors.New("remote-filesystem bridge unavailable")

// bindTimeout bounds one mount/unmount call. These are short operations; a
// hang means the bridge is wedged, not slow.
const bindTimeout = 30 * time.Second

// Manager owns the single host mount point.
type Manager struct {
	conf     *config.Config
	endpoint *types.Endpoint
}

// NewManager creates a Manager for the given endpoint. A nil endpoint is
// valid for unmount-only flows (destroy does not need a live VM).
func NewManager(conf *config.Config, ep *types.Endpoint) *Manager {
	return &Manager{conf: conf, endpoint: ep}
}

// Mounted reports whether the mount point is currently bound.
func (m *Manager) Mounted() bool {
	return isMountPoint(m.conf.MountDir())
}

// EnsureMounted binds the mount point to the guest workspace root.
// Idempotent: an existing binding returns immediately. The bridge is
// configured to reconnect across transient network loss so the binding
// survives brief VM unavailability.
func (m *Manager) EnsureMounted(ctx context.Context) error {
	dir := m.conf.MountDir()
	if isMountPoint(dir) {
		return nil
	}
	if m.endpoint == nil {
		return fmt.Errorf("%w: no endpoint", ErrUnavailable)
	}

	bin, err := exec.LookPath(m.conf.Mount.Binary)
	if err != nil {
		return fmt.Errorf("%w: %s not found on host (install it to browse workspaces locally)", ErrUnavailable, m.conf.Mount.Binary)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create mount point: %w", err)
	}

	opts := []string{
		"reconnect",
		"ServerAliveInterval=15",
		"ServerAliveCountMax=3",
		"StrictHostKeyChecking=accept-new",
	}
	if m.endpoint.KeyPath != "" {
		opts = append(opts, "IdentityFile="+m.endpoint.KeyPath)
	}

	source := fmt.Sprintf("%s@%s:%s", m.endpoint.User, m.endpoint.Host, m.conf.VM.GuestRoot)
	args := []string{
		source, dir,
		"-p", fmt.Sprintf("%d", m.endpoint.Port),
		"-o", strings.Join(opts, ","),
	}

	ctx, cancel := context.WithTimeout(ctx, bindTimeout)
	defer cancel()
	if out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput(); err != nil { //nolint:gosec
		return fmt.Errorf("%w: bind %s: %s: %v", ErrUnavailable, dir, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Unmount releases the binding. Idempotent: already-unmounted is a no-op.
// Callers that also fetch must have completed their dirty check before this
// runs — unmounting makes every workspace path vanish from the host at once.
func (m *Manager) Unmount(ctx context.Context) error {
	dir := m.conf.MountDir()
	if !isMountPoint(dir) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, bindTimeout)
	defer cancel()

	// fusermount is the FUSE-native path; umount covers the rest.
	if out, err := exec.CommandContext(ctx, "fusermount", "-u", dir).CombinedOutput(); err == nil {
		return nil
	} else if out2, err2 := exec.CommandContext(ctx, "umount", dir).CombinedOutput(); err2 != nil {
		return fmt.Errorf("unmount %s: %s / %s: %w",
			dir, strings.TrimSpace(string(out)), strings.TrimSpace(string(out2)), err2)
	}
	return nil
}

// CleanupStale removes host-side residue for a deleted workspace: a local
// directory shadowing the mount point while the bridge is down. Never
// touches anything while the binding is live — that would delete guest data.
func (m *Manager) CleanupStale(name string) error {
	if m.Mounted() {
		return nil
	}
	p, err := securejoin.SecureJoin(m.conf.MountDir(), name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove stale %s: %w", p, err)
	}
	return nil
}

// isMountPoint checks the host mount table for dir. Prefers /proc/self/mounts
// and falls back to the mount binary where /proc is absent.
func isMountPoint(dir string) bool {
	target := filepath.Clean(dir)
	if data, err := os.ReadFile("/proc/self/mounts"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			fields := strings.Fields(line)
			if len(fields) >= 2 && unescapeMountPath(fields[1]) == target {
				return true
			}
		}
		return false
	}
	out, err := exec.Command("mount").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), " on "+target+" ")
}

// unescapeMountPath decodes the octal escapes /proc/self/mounts uses for
// spaces and tabs in paths.
func unescapeMountPath(s string) string {
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
