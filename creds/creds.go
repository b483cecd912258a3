// Package creds resolves ephemeral credential material injected into the
// sandbox VM at provisioning time. Material is read once, handed to the
// provisioning backend as an opaque payload, and has no host-side
// representation after the creation call returns.
package creds

import (
	"context"
	"fmt"
	"os"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/warren/config"
)

// Material is resolved credential content plus its origin, for logging and
// the declared record's bookkeeping. Payload is never persisted.
type Material struct {
	Source  string
	Payload []byte
}

// Resolve walks the precedence chain: explicit override, then the
// environment-provided path, then the conventional default path. The first
// existing readable file wins. Returns (nil, nil) when nothing is found —
// lack of credentials is a valid configuration.
func Resolve(ctx context.Context, conf *config.Config, explicit string) (*Material, error) {
	logger := log.WithFunc("creds.Resolve")

	if explicit != "" {
		m, err := read(explicit)
		if err != nil {
			// An explicit path that cannot be read is a user error, not a
			// fall-through case.
			return nil, fmt.Errorf("credentials file %s: %w", explicit, err)
		}
		return m, nil
	}

	var candidates []string
	if conf.Creds.EnvVar != "" {
		if p := os.Getenv(conf.Creds.EnvVar); p != "" {
			candidates = append(candidates, p)
		}
	}
	if conf.Creds.DefaultPath != "" {
		candidates = append(candidates, conf.Creds.DefaultPath)
	}

	for _, p := range candidates {
		m, err := read(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("credentials file %s: %w", p, err)
		}
		return m, nil
	}

	logger.Infof(ctx, "no credentials found, provisioning without")
	return nil, nil
}

func read(path string) (*Material, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's own chain
	if err != nil {
		return nil, err
	}
	return &Material{Source: path, Payload: data}, nil
}
