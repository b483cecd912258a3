package remote

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRun(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "probe"), []byte("x"), 0o644))

	l := NewLocal(dir)
	out, err := l.Run(context.Background(), "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "probe")
}

func TestLocalRunFailure(t *testing.T) {
	l := NewLocal(t.TempDir())
	_, err := l.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestLocalRunEmpty(t *testing.T) {
	l := NewLocal(t.TempDir())
	_, err := l.Run(context.Background())
	require.Error(t, err)
}

func TestLocalGitURL(t *testing.T) {
	l := NewLocal("/data/guest")
	url := l.GitURL("workspaces/myrepo--main")
	assert.Equal(t, filepath.Join("/data/guest", "workspaces/myrepo--main"), url)
	assert.True(t, strings.HasPrefix(url, "/data/guest"))
	assert.Nil(t, l.GitEnv())
}
