package config

import (
	"os"
	"path/filepath"
	"runtime"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global warren configuration.
type Config struct {
	// RootDir is the base directory for persistent data (declared VM record,
	// backend working dir, mount point).
	RootDir string `mapstructure:"root_dir"`
	// PoolSize bounds concurrent workspace operations (clean-all fan-out).
	// Defaults to runtime.NumCPU() if zero.
	PoolSize int `mapstructure:"pool_size"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `mapstructure:"log"`

	VM      VMConfig      `mapstructure:"vm"`
	Backend BackendConfig `mapstructure:"backend"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	Mount   MountConfig   `mapstructure:"mount"`
	Creds   CredsConfig   `mapstructure:"creds"`
}

// VMConfig holds defaults for the singleton sandbox VM.
type VMConfig struct {
	// Name is the fixed instance name; there is at most one VM per RootDir.
	Name string `mapstructure:"name"`
	// Memory/CPUs/Disk are creation-time defaults, overridable once by flags
	// on the invocation that first provisions the VM.
	Memory string `mapstructure:"memory"`
	CPUs   int    `mapstructure:"cpus"`
	Disk   string `mapstructure:"disk"`
	// GuestRoot is the workspace root inside the VM, relative to the remote
	// user's home directory.
	GuestRoot string `mapstructure:"guest_root"`
	// BootTimeoutSeconds bounds one reachability wait after apply;
	// BootRetries is how many waits are attempted before giving up.
	BootTimeoutSeconds int `mapstructure:"boot_timeout_seconds"`
	BootRetries        int `mapstructure:"boot_retries"`
}

// BackendConfig locates the declarative provisioning backend.
type BackendConfig struct {
	// Binary is the backend CLI (terraform-compatible: apply/destroy/output).
	Binary string `mapstructure:"binary"`
	// Dir is the working directory holding the backend's module and state.
	Dir string `mapstructure:"dir"`
}

// SSHConfig tunes the remote execution channel.
type SSHConfig struct {
	Binary                string `mapstructure:"binary"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	// ExecTimeoutSeconds bounds a single remote workspace command. Distinct
	// from the boot wait: a timed-out command is surfaced, never retried.
	ExecTimeoutSeconds int `mapstructure:"exec_timeout_seconds"`
}

// MountConfig tunes the host-side remote-filesystem bridge.
type MountConfig struct {
	// Binary is the bridge tool. When absent from PATH the binding degrades
	// to a warning; ssh-based workflows stay usable.
	Binary string `mapstructure:"binary"`
	// Dir is the single host mount point exposing the guest workspace root.
	Dir string `mapstructure:"dir"`
}

// CredsConfig controls credential resolution at VM creation.
type CredsConfig struct {
	// EnvVar names the environment variable holding a credentials file path.
	EnvVar string `mapstructure:"env_var"`
	// DefaultPath is the conventional fallback location.
	DefaultPath string `mapstructure:"default_path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	root := "/var/lib/warren"
	home, err := os.UserHomeDir()
	if err == nil {
		root = filepath.Join(home, ".local", "share", "warren")
	}
	conf := &Config{
		RootDir:  root,
		PoolSize: runtime.NumCPU(),
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
		VM: VMConfig{
			Name:               "warren",
			Memory:             "8G",
			CPUs:               4,
			Disk:               "40G",
			GuestRoot:          "workspaces",
			BootTimeoutSeconds: 120,
			BootRetries:        3,
		},
		Backend: BackendConfig{
			Binary: "terraform",
		},
		SSH: SSHConfig{
			Binary:                "ssh",
			ConnectTimeoutSeconds: 5,
			ExecTimeoutSeconds:    60,
		},
		Mount: MountConfig{
			Binary: "sshfs",
		},
		Creds: CredsConfig{
			EnvVar: "WARREN_CREDENTIALS_FILE",
		},
	}
	if home != "" {
		conf.Creds.DefaultPath = filepath.Join(home, ".config", "warren", "credentials")
	}
	return conf
}
