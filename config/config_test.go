package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	conf := DefaultConfig()

	assert.NotEmpty(t, conf.RootDir)
	assert.Positive(t, conf.PoolSize)
	assert.Equal(t, "warren", conf.VM.Name)
	assert.Equal(t, "8G", conf.VM.Memory)
	assert.Equal(t, 4, conf.VM.CPUs)
	assert.Equal(t, "workspaces", conf.VM.GuestRoot)
	assert.Equal(t, "terraform", conf.Backend.Binary)
	assert.Equal(t, "sshfs", conf.Mount.Binary)
	assert.Equal(t, "WARREN_CREDENTIALS_FILE", conf.Creds.EnvVar)
}

func TestDerivedPaths(t *testing.T) {
	conf := DefaultConfig()
	conf.RootDir = "/data/warren"

	assert.Equal(t, "/data/warren/vm/record.json", conf.VMRecordFile())
	assert.Equal(t, "/data/warren/vm/record.lock", conf.VMRecordLock())
	assert.Equal(t, "/data/warren/backend", conf.BackendDir())
	assert.Equal(t, "/data/warren/mnt", conf.MountDir())
}

func TestExplicitDirsWin(t *testing.T) {
	conf := DefaultConfig()
	conf.RootDir = "/data/warren"
	conf.Backend.Dir = "/srv/tf"
	conf.Mount.Dir = "/mnt/sandbox"

	assert.Equal(t, "/srv/tf", conf.BackendDir())
	assert.Equal(t, "/mnt/sandbox", conf.MountDir())
}

func TestEnsureDirs(t *testing.T) {
	conf := DefaultConfig()
	conf.RootDir = t.TempDir()
	require.NoError(t, conf.EnsureDirs())

	for _, dir := range []string{
		filepath.Join(conf.RootDir, "vm"),
		conf.BackendDir(),
		conf.MountDir(),
	} {
		assert.DirExists(t, dir)
	}
}
