// Package vm ensures the singleton sandbox VM exists and is running, and
// performs verified destroy. VM existence is re-derived from the declared
// record and the provisioning backend on every call — there is no in-memory
// "is running" flag to go stale between invocations.
package vm

import (
	"context"
	"errors"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/creds"
	"github.com/projecteru2/warren/mount"
	"github.com/projecteru2/warren/provision"
	"github.com/projecteru2/warren/remote"
	"github.com/projecteru2/warren/storage"
	storejson "github.com/projecteru2/warren/storage/json"
	"github.com/projecteru2/warren/types"
	"github.com/projecteru2/warren/utils"
)

// ErrUnreachable marks a VM that was applied but never accepted a
// connection within the bounded boot wait. Fatal after the retry budget.
var ErrUnreachable = errors.New("VM unreachable")

// ErrDestroyFailed marks a backend destroy that did not report success. The
// VM must not be considered absent; state is preserved for inspection.
var ErrDestroyFailed = errors.New("destroy failed")

// reachPollInterval is how often the boot wait probes the endpoint.
const reachPollInterval = 2 * time.Second

// Controller owns the VM lifecycle: idempotent ensure-running, verified
// destroy, and cheap status reads.
type Controller struct {
	conf    *config.Config
	backend provision.Provisioner
	store   storage.Store[types.VMRecord]

	// reachable probes the endpoint; swapped out by tests.
	reachable func(ctx context.Context, ep *types.Endpoint) bool
}

// NewController creates a Controller over the given provisioning backend.
func NewController(conf *config.Config, backend provision.Provisioner) (*Controller, error) {
	if err := conf.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure dirs: %w", err)
	}
	c := &Controller{
		conf:    conf,
		backend: backend,
		store:   storejson.New[types.VMRecord](conf.VMRecordLock(), conf.VMRecordFile()),
	}
	c.reachable = func(ctx context.Context, ep *types.Endpoint) bool {
		return remote.NewSSH(conf, ep).CheckConnection(ctx)
	}
	return c, nil
}

// EnsureRunning brings the VM up and returns its endpoint.
//
// Absent: resolve credentials, write the declared record (resource spec is
// write-once from this moment), apply, wait for reachability.
// Present and reachable: return the endpoint with zero provisioning calls.
// Present but unreachable: re-apply (idempotent) and wait again. Resource
// overrides against an existing VM are ignored with a warning — honoring
// them would require a destroy the user did not ask for.
func (c *Controller) EnsureRunning(ctx context.Context, overrides *types.ResourceSpec, explicitCreds string) (*types.Endpoint, error) {
	logger := log.WithFunc("vm.EnsureRunning")

	var material *creds.Material
	if !c.store.Exists() {
		m, err := creds.Resolve(ctx, c.conf, explicitCreds)
		if err != nil {
			return nil, err
		}
		material = m
	}

	var rec types.VMRecord
	created := false
	if err := c.store.Update(ctx, func(r *types.VMRecord) error {
		if r.InstanceID != "" {
			if overrides != nil && *overrides != r.Resources {
				logger.Warnf(ctx, "resource overrides ignored: VM already exists with memory=%s cpus=%d disk=%s — destroy and reconnect to change them",
					units.BytesSize(float64(r.Resources.Memory)), r.Resources.CPUs, units.BytesSize(float64(r.Resources.Disk)))
			}
			rec = *r
			return nil
		}

		res, err := c.defaultResources()
		if err != nil {
			return err
		}
		if overrides != nil {
			res = *overrides
		}
		*r = types.VMRecord{
			InstanceID: uuid.NewString(),
			Resources:  res,
			CreatedAt:  time.Now(),
		}
		if material != nil {
			r.CredentialSource = material.Source
		}
		created = true
		rec = *r
		return nil
	}); err != nil {
		return nil, fmt.Errorf("declared VM record: %w", err)
	}

	// Fast path: record exists and the VM answers. No provisioning calls.
	if !created {
		if ep, err := c.backend.Endpoint(ctx); err == nil && c.reachable(ctx, ep) {
			return ep, nil
		}
		logger.Infof(ctx, "VM declared but not reachable — converging")
	}

	// Credentials are delivered at creation only; a re-apply of an existing
	// VM never re-injects them.
	var payload []byte
	if created && material != nil {
		payload = material.Payload
		logger.Infof(ctx, "injecting credentials from %s", material.Source)
	}

	// Apply failures surface verbatim: retrying a failed apply blindly is
	// the backend operator's call, not ours.
	if err := c.backend.Apply(ctx, &rec, payload); err != nil {
		if created {
			// Creation did not converge; drop the reservation so the next
			// attempt starts clean. Backend state stays for inspection.
			if rerr := c.store.Remove(ctx); rerr != nil {
				logger.Warnf(ctx, "rollback declared record: %v", rerr)
			}
		}
		return nil, err
	}

	ep, err := c.backend.Endpoint(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.waitReachable(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// waitReachable blocks until the endpoint accepts a connection. Only this
// phase is retried — transient boot delay is expected; apply failures are
// not retried anywhere.
func (c *Controller) waitReachable(ctx context.Context, ep *types.Endpoint) error {
	logger := log.WithFunc("vm.waitReachable")
	timeout := time.Duration(c.conf.VM.BootTimeoutSeconds) * time.Second
	retries := max(c.conf.VM.BootRetries, 1)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		err := utils.WaitFor(ctx, timeout, reachPollInterval, func() (bool, error) {
			return c.reachable(ctx, ep), nil
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf(ctx, "boot wait %d/%d: %v", attempt, retries, err)
	}
	return fmt.Errorf("%w: %s:%d did not accept connections (%v) — inspect the backend state in %s, or run: warren destroy, then retry",
		ErrUnreachable, ep.Host, ep.Port, lastErr, c.conf.BackendDir())
}

// Destroy tears down the mount binding first (host editors must not be left
// holding paths into a dead VM), then the VM itself. The declared record is
// only removed after the backend confirms teardown: the controller never
// claims success it cannot verify.
func (c *Controller) Destroy(ctx context.Context, mounter *mount.Manager) error {
	logger := log.WithFunc("vm.Destroy")
	if !c.store.Exists() {
		logger.Infof(ctx, "no VM to destroy")
		return nil
	}

	if err := mounter.Unmount(ctx); err != nil {
		return fmt.Errorf("unmount before destroy: %w — unmount %s manually, then retry", err, c.conf.MountDir())
	}

	if err := c.backend.Destroy(ctx); err != nil {
		return fmt.Errorf("%w: %v — VM state is preserved in %s for inspection; fix the cause and run destroy again",
			ErrDestroyFailed, err, c.conf.BackendDir())
	}

	if err := c.store.Remove(ctx); err != nil {
		return fmt.Errorf("clear declared record: %w", err)
	}
	logger.Infof(ctx, "VM destroyed")
	return nil
}

// Status is a cheap read: never mutates state, degrades gracefully when the
// backend cannot produce an endpoint.
func (c *Controller) Status(ctx context.Context) (*types.VMStatus, error) {
	st := &types.VMStatus{State: types.VMStateAbsent}
	if !c.store.Exists() {
		return st, nil
	}

	var rec types.VMRecord
	if err := c.store.With(ctx, func(r *types.VMRecord) error {
		rec = *r
		return nil
	}); err != nil {
		return nil, err
	}
	st.Resources = &rec.Resources
	st.CreatedAt = &rec.CreatedAt
	st.State = types.VMStateStopped

	ep, err := c.backend.Endpoint(ctx)
	if err != nil {
		// Record present but the backend has no outputs: stopped/unknown.
		return st, nil
	}
	st.Endpoint = ep
	if c.reachable(ctx, ep) {
		st.State = types.VMStateRunning
	}
	return st, nil
}

// defaultResources parses the configured creation-time defaults.
func (c *Controller) defaultResources() (types.ResourceSpec, error) {
	mem, err := units.RAMInBytes(c.conf.VM.Memory)
	if err != nil {
		return types.ResourceSpec{}, fmt.Errorf("default memory %q: %w", c.conf.VM.Memory, err)
	}
	disk, err := units.RAMInBytes(c.conf.VM.Disk)
	if err != nil {
		return types.ResourceSpec{}, fmt.Errorf("default disk %q: %w", c.conf.VM.Disk, err)
	}
	return types.ResourceSpec{Memory: mem, CPUs: c.conf.VM.CPUs, Disk: disk}, nil
}
