package provision

import (
	"context"
	"errors"

	"github.com/projecteru2/warren/types"
)

// ErrProvisioningFailed marks a backend apply/destroy failure. Fatal: state
// is preserved for manual inspection and the call is never auto-retried.
var ErrProvisioningFailed = errors.New("provisioning backend failed")

// Provisioner is the declarative backend that owns the VM's real state.
// Apply is idempotent: re-running it against unchanged declared state is a
// no-op. Warren re-derives VM existence from this interface on every
// invocation instead of caching it.
type Provisioner interface {
	Type() string

	// Apply converges real state to the declared record. credentials is the
	// opaque creation-time payload; it travels through the backend process
	// environment and never touches the declared state on disk. Nil means
	// provision without credentials.
	Apply(ctx context.Context, rec *types.VMRecord, credentials []byte) error
	// Destroy tears the VM down. Failures are surfaced verbatim; the caller
	// must not consider the VM absent until Destroy returns nil.
	Destroy(ctx context.Context) error
	// Output reads a single backend output value.
	Output(ctx context.Context, key string) (string, error)
	// Endpoint assembles the machine endpoint from backend outputs.
	Endpoint(ctx context.Context) (*types.Endpoint, error)
}
