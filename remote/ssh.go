package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/types"
)

// compile-time interface check.
var _ Runner = (*SSH)(nil)

// SSH runs guest commands over the ssh binary using the key pair exposed by
// the provisioning backend's outputs.
type SSH struct {
	binary         string
	endpoint       *types.Endpoint
	connectTimeout time.Duration
	execTimeout    time.Duration
}

// NewSSH creates an SSH runner for the given endpoint.
func NewSSH(conf *config.Config, ep *types.Endpoint) *SSH {
	return &SSH{
		binary:         conf.SSH.Binary,
		endpoint:       ep,
		connectTimeout: time.Duration(conf.SSH.ConnectTimeoutSeconds) * time.Second,
		execTimeout:    time.Duration(conf.SSH.ExecTimeoutSeconds) * time.Second,
	}
}

// baseArgs returns the common ssh options (no destination).
func (s *SSH) baseArgs() []string {
	args := []string{
		"-p", fmt.Sprintf("%d", s.endpoint.Port),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(s.connectTimeout.Seconds())),
	}
	if s.endpoint.KeyPath != "" {
		args = append(args, "-i", s.endpoint.KeyPath)
	}
	return args
}

// Destination returns the user@host string.
func (s *SSH) Destination() string {
	return fmt.Sprintf("%s@%s", s.endpoint.User, s.endpoint.Host)
}

// Run executes argv in the guest and returns stdout. The per-call timeout is
// enforced with CommandContext so a hung channel cannot stall the invocation.
func (s *SSH) Run(ctx context.Context, argv ...string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty remote command")
	}
	ctx, cancel := context.WithTimeout(ctx, s.execTimeout)
	defer cancel()

	args := append(s.baseArgs(), s.Destination(), shellquote.Join(argv...))
	cmd := exec.CommandContext(ctx, s.binary, args...) //nolint:gosec
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("remote command %q timed out after %s", argv[0], s.execTimeout)
		}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return string(out), fmt.Errorf("remote command %q: %s: %w",
				argv[0], strings.TrimSpace(string(ee.Stderr)), err)
		}
		return "", fmt.Errorf("remote command %q: %w", argv[0], err)
	}
	return string(out), nil
}

// CheckConnection reports whether the guest accepts a connection right now.
func (s *SSH) CheckConnection(ctx context.Context) bool {
	_, err := s.Run(ctx, "true")
	return err == nil
}

// GitURL returns an ssh:// address for a guest path relative to the remote
// home directory (git expands the /~/ form server-side).
func (s *SSH) GitURL(path string) string {
	return fmt.Sprintf("ssh://%s@%s:%d/~/%s", s.endpoint.User, s.endpoint.Host, s.endpoint.Port, path)
}

// GitEnv returns the GIT_SSH_COMMAND entry that lets the host git speak to
// GitURL addresses with the backend-provided key.
func (s *SSH) GitEnv() []string {
	parts := append([]string{s.binary}, s.baseArgs()...)
	return []string{"GIT_SSH_COMMAND=" + shellquote.Join(parts...)}
}

// Interactive replaces the current process with an ssh session running
// command (or a login shell when command is empty) inside dir.
// Uses syscall.Exec and does not return on success.
func (s *SSH) Interactive(dir, command string) error {
	sshPath, err := exec.LookPath(s.binary)
	if err != nil {
		return fmt.Errorf("%s not found: %w", s.binary, err)
	}

	remoteCmd := fmt.Sprintf("cd %s && exec $SHELL -l", shellquote.Join(dir))
	if command != "" {
		remoteCmd = fmt.Sprintf("cd %s && %s", shellquote.Join(dir), command)
	}

	argv := append([]string{"ssh"}, s.baseArgs()...)
	// Interactive sessions need a TTY and must not be in batch mode.
	argv = append(argv, "-o", "BatchMode=no", "-t", s.Destination(), remoteCmd)
	return syscall.Exec(sshPath, argv, os.Environ())
}
