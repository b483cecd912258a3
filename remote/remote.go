// Package remote is the point-to-point execution channel into the sandbox
// VM. Workspace and git-sync code is written against Runner so tests can
// substitute a local process runner for the SSH transport.
package remote

import "context"

// Runner executes one-shot commands inside the guest.
type Runner interface {
	// Run executes argv in the guest and returns stdout. Shell constructs
	// belong in an explicit "sh -c" argv. Every call carries a bounded
	// timeout; a timed-out command is surfaced, never retried.
	Run(ctx context.Context, argv ...string) (string, error)
	// GitURL returns the distributed-git remote address for a guest path.
	GitURL(path string) string
	// GitEnv returns environment entries the host git needs to reach
	// GitURL addresses (key, port and host-key options for ssh transports).
	GitEnv() []string
}
