// Package workspace manages the named, branch-scoped git clones inside the
// sandbox VM. Each workspace is a full independent clone, so operations on
// one can never corrupt another's history.
package workspace

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// ErrCorrupt marks a workspace directory that exists without git metadata.
// Surfaced to the caller, never silently repaired.
var ErrCorrupt = errors.New("workspace is corrupt (directory exists without .git)")

// ErrNotFound is returned when a named workspace does not exist in the VM.
var ErrNotFound = errors.New("workspace not found")

// Workspace identifies one clone inside the VM.
type Workspace struct {
	Name string
	// Path is the guest directory, relative to the remote home.
	Path string
}

// validName matches safe name components: alphanumeric, hyphens,
// underscores, dots. Workspace names appear in branch refs, guest paths and
// shell commands, so this is checked at the package boundary.
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Name computes the stable directory name for a (repository, branch) pair.
// The mapping is injective: literal underscores and dashes are escaped
// before branch separators are flattened to dashes, so "feature/x" and
// "feature-x" of the same repo stay distinct names.
func Name(repo, branch string) (string, error) {
	r := sanitize(repo)
	b := sanitize(branch)
	name := fmt.Sprintf("%s--%s", r, b)
	if err := validate(name); err != nil {
		return "", err
	}
	return name, nil
}

// sanitize encodes one name component. Every "_" in the output starts an
// escape pair ("__" for "_", "_-" for "-"), so a bare "-" can only come from
// a "/" and the "--" pair separator cannot be forged from within a component.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, "-", "_-")
	return strings.ReplaceAll(s, "/", "-")
}

func validate(name string) error {
	if name == "--" {
		return fmt.Errorf("workspace name must not be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("workspace name %q too long (max 128 characters)", name)
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("workspace name %q contains invalid characters (allowed: alphanumeric, hyphens, underscores, dots)", name)
	}
	return nil
}

// guestPath joins name under the guest workspace root, refusing traversal.
func guestPath(root, name string) (string, error) {
	p, err := securejoin.SecureJoin(root, name)
	if err != nil {
		return "", fmt.Errorf("workspace path for %q: %w", name, err)
	}
	return p, nil
}
