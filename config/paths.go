package config

import (
	"path/filepath"

	"github.com/projecteru2/warren/utils"
)

// EnsureDirs creates the static directories warren needs. Called once per
// invocation before any component touches disk.
func (c *Config) EnsureDirs() error {
	return utils.EnsureDirs(
		c.vmDir(),
		c.BackendDir(),
		c.MountDir(),
	)
}

func (c *Config) vmDir() string { return filepath.Join(c.RootDir, "vm") }

// VMRecordFile and VMRecordLock are the declared-VM record store paths.
func (c *Config) VMRecordFile() string { return filepath.Join(c.vmDir(), "record.json") }
func (c *Config) VMRecordLock() string { return filepath.Join(c.vmDir(), "record.lock") }

// BackendDir is the provisioning backend's working directory (module + state).
func (c *Config) BackendDir() string {
	if c.Backend.Dir != "" {
		return c.Backend.Dir
	}
	return filepath.Join(c.RootDir, "backend")
}

// MountDir is the single host mount point for the guest workspace root.
func (c *Config) MountDir() string {
	if c.Mount.Dir != "" {
		return c.Mount.Dir
	}
	return filepath.Join(c.RootDir, "mnt")
}
