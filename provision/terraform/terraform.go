// Package terraform drives a terraform-compatible CLI as the provisioning
// backend. The backend's own state store is the source of truth for VM
// existence; warren only writes the declared var-file and shells out.
package terraform

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/provision"
	"github.com/projecteru2/warren/types"
	"github.com/projecteru2/warren/utils"
)

const typ = "terraform"

// varFileName is picked up automatically by terraform (*.auto.tfvars.json),
// so destroy needs no explicit -var-file.
const varFileName = "warren.auto.tfvars.json"

// compile-time interface check.
var _ provision.Provisioner = (*Terraform)(nil)

// Terraform runs the backend binary in a fixed working directory containing
// the VM module and its state.
type Terraform struct {
	conf *config.Config
}

// New creates a Terraform backend rooted at conf.BackendDir().
func New(conf *config.Config) (*Terraform, error) {
	if err := conf.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure dirs: %w", err)
	}
	return &Terraform{conf: conf}, nil
}

func (t *Terraform) Type() string { return typ }

// Apply writes the declared var-file and converges the backend. The module
// files themselves are provisioning-backend territory: warren only checks
// they are present and reports a recovery action when they are not.
// Credentials travel as a base64 TF_VAR through the process environment,
// never through the var-file.
func (t *Terraform) Apply(ctx context.Context, rec *types.VMRecord, credentials []byte) error {
	dir := t.conf.BackendDir()
	if !t.hasModule(dir) {
		return fmt.Errorf("%w: no *.tf module in %s (install the warren VM module there, then retry)",
			provision.ErrProvisioningFailed, dir)
	}

	if err := utils.AtomicWriteJSON(filepath.Join(dir, varFileName), varsFromRecord(t.conf, rec)); err != nil {
		return fmt.Errorf("write declared spec: %w", err)
	}

	if err := t.ensureInit(ctx); err != nil {
		return err
	}

	var extraEnv []string
	if credentials != nil {
		extraEnv = []string{"TF_VAR_credentials=" + base64.StdEncoding.EncodeToString(credentials)}
	}
	return t.run(ctx, extraEnv, "apply", "-auto-approve", "-input=false")
}

// Destroy tears down the VM. The var-file and state are left in place on
// failure so the operator can inspect them.
func (t *Terraform) Destroy(ctx context.Context) error {
	if err := t.run(ctx, nil, "destroy", "-auto-approve", "-input=false"); err != nil {
		return err
	}
	// Declared var-file is only dropped after the backend confirms teardown.
	if err := os.Remove(filepath.Join(t.conf.BackendDir(), varFileName)); err != nil && !os.IsNotExist(err) {
		log.WithFunc("terraform.Destroy").Warnf(ctx, "remove var-file: %v", err)
	}
	return nil
}

// Output reads one backend output with -raw.
func (t *Terraform) Output(ctx context.Context, key string) (string, error) {
	out, err := t.capture(ctx, "output", "-raw", key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Endpoint assembles the machine endpoint from the conventional outputs
// host, port, user and key_path.
func (t *Terraform) Endpoint(ctx context.Context) (*types.Endpoint, error) {
	host, err := t.Output(ctx, "host")
	if err != nil {
		return nil, err
	}
	portStr, err := t.Output(ctx, "port")
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("backend output port %q: %w", portStr, err)
	}
	user, err := t.Output(ctx, "user")
	if err != nil {
		return nil, err
	}
	keyPath, err := t.Output(ctx, "key_path")
	if err != nil {
		return nil, err
	}
	return &types.Endpoint{Host: host, Port: port, User: user, KeyPath: keyPath}, nil
}

// ensureInit runs init once per backend dir (detected via .terraform).
func (t *Terraform) ensureInit(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(t.conf.BackendDir(), ".terraform")); err == nil {
		return nil
	}
	return t.run(ctx, nil, "init", "-input=false")
}

func (t *Terraform) hasModule(dir string) bool {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.tf"))
	return len(matches) > 0
}

// run executes the backend binary and surfaces failures verbatim, wrapped in
// ErrProvisioningFailed. No retries: apply/destroy are never safe to repeat
// blindly on error.
func (t *Terraform) run(ctx context.Context, extraEnv []string, args ...string) error {
	cmd := exec.CommandContext(ctx, t.conf.Backend.Binary, args...) //nolint:gosec
	cmd.Dir = t.conf.BackendDir()
	cmd.Env = append(os.Environ(), extraEnv...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s %s: %s: %v",
			provision.ErrProvisioningFailed, t.conf.Backend.Binary,
			strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}

// capture executes the backend binary and returns stdout.
func (t *Terraform) capture(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.conf.Backend.Binary, args...) //nolint:gosec
	cmd.Dir = t.conf.BackendDir()
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(ee.Stderr))
		}
		return "", fmt.Errorf("%w: %s %s: %s: %v",
			provision.ErrProvisioningFailed, t.conf.Backend.Binary,
			strings.Join(args, " "), stderr, err)
	}
	return string(out), nil
}

// varsFromRecord flattens the declared record into backend input variables.
func varsFromRecord(conf *config.Config, rec *types.VMRecord) map[string]any {
	return map[string]any{
		"instance_name": conf.VM.Name,
		"instance_id":   rec.InstanceID,
		"memory_mb":     rec.Resources.Memory >> 20,
		"cpus":          rec.Resources.CPUs,
		"disk_gb":       rec.Resources.Disk >> 30,
	}
}
