package remote

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// compile-time interface check.
var _ Runner = (*Local)(nil)

// Local executes "guest" commands as local processes rooted at Dir. It backs
// the test suites and lets every workspace/git flow run against a plain
// directory instead of a live VM.
type Local struct {
	Dir string
}

// NewLocal creates a Local runner rooted at dir.
func NewLocal(dir string) *Local { return &Local{Dir: dir} }

func (l *Local) Run(ctx context.Context, argv ...string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	cmd.Dir = l.Dir
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return string(out), fmt.Errorf("command %q: %s: %w",
				argv[0], strings.TrimSpace(string(ee.Stderr)), err)
		}
		return "", fmt.Errorf("command %q: %w", argv[0], err)
	}
	return string(out), nil
}

// GitURL resolves a guest-relative path to a plain filesystem remote.
func (l *Local) GitURL(path string) string {
	return filepath.Join(l.Dir, path)
}

func (l *Local) GitEnv() []string { return nil }
