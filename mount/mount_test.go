package mount

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	conf := config.DefaultConfig()
	conf.RootDir = t.TempDir()
	return conf
}

func testEndpoint() *types.Endpoint {
	return &types.Endpoint{Host: "192.0.2.10", Port: 22, User: "dev"}
}

func TestEnsureMountedNoEndpoint(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	err := m.EnsureMounted(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestEnsureMountedBinaryMissing(t *testing.T) {
	conf := testConfig(t)
	conf.Mount.Binary = "definitely-not-installed-bridge"

	m := NewManager(conf, testEndpoint())
	err := m.EnsureMounted(context.Background())
	// Degraded mode: the caller is expected to warn and continue.
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMountedFalseForPlainDir(t *testing.T) {
	conf := testConfig(t)
	require.NoError(t, os.MkdirAll(conf.MountDir(), 0o750))

	m := NewManager(conf, testEndpoint())
	assert.False(t, m.Mounted())
}

func TestUnmountIdempotent(t *testing.T) {
	m := NewManager(testConfig(t), nil)
	// Not mounted: a no-op, not an error.
	require.NoError(t, m.Unmount(context.Background()))
}

func TestCleanupStale(t *testing.T) {
	conf := testConfig(t)
	stale := filepath.Join(conf.MountDir(), "myrepo--main")
	require.NoError(t, os.MkdirAll(stale, 0o755))

	m := NewManager(conf, nil)
	require.NoError(t, m.CleanupStale("myrepo--main"))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupStaleStaysUnderMountDir(t *testing.T) {
	conf := testConfig(t)
	outside := filepath.Join(conf.RootDir, "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))

	m := NewManager(conf, nil)
	require.NoError(t, m.CleanupStale("../outside"))

	// The traversal was contained; the sibling dir survived.
	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestUnescapeMountPath(t *testing.T) {
	assert.Equal(t, "/mnt/with space", unescapeMountPath(`/mnt/with\040space`))
	assert.Equal(t, "/mnt/tab\there", unescapeMountPath(`/mnt/tab\011here`))
	assert.Equal(t, `/mnt/back\slash`, unescapeMountPath(`/mnt/back\134slash`))
	assert.Equal(t, "/mnt/plain", unescapeMountPath("/mnt/plain"))
}

func TestIsMountPoint(t *testing.T) {
	// The root filesystem is always mounted; a fresh temp dir never is.
	assert.True(t, isMountPoint("/"))
	assert.False(t, isMountPoint(t.TempDir()))
}
