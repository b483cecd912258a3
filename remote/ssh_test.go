package remote

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/projecteru2/warren/config"
	"github.com/projecteru2/warren/types"
)

func testSSH() *SSH {
	conf := config.DefaultConfig()
	return NewSSH(conf, &types.Endpoint{
		Host:    "192.0.2.10",
		Port:    2222,
		User:    "dev",
		KeyPath: "/tmp/warren-key",
	})
}

func TestBaseArgs(t *testing.T) {
	args := strings.Join(testSSH().baseArgs(), " ")

	assert.Contains(t, args, "-p 2222")
	assert.Contains(t, args, "BatchMode=yes")
	assert.Contains(t, args, "StrictHostKeyChecking=accept-new")
	assert.Contains(t, args, "ConnectTimeout=5")
	assert.Contains(t, args, "-i /tmp/warren-key")
}

func TestBaseArgsNoKey(t *testing.T) {
	conf := config.DefaultConfig()
	s := NewSSH(conf, &types.Endpoint{Host: "h", Port: 22, User: "u"})
	assert.NotContains(t, strings.Join(s.baseArgs(), " "), "-i")
}

func TestDestination(t *testing.T) {
	assert.Equal(t, "dev@192.0.2.10", testSSH().Destination())
}

func TestGitURL(t *testing.T) {
	// The /~/ form makes the path relative to the remote home.
	assert.Equal(t,
		"ssh://dev@192.0.2.10:2222/~/workspaces/myrepo--main",
		testSSH().GitURL("workspaces/myrepo--main"))
}

func TestGitEnv(t *testing.T) {
	env := testSSH().GitEnv()
	if assert.Len(t, env, 1) {
		assert.True(t, strings.HasPrefix(env[0], "GIT_SSH_COMMAND="))
		assert.Contains(t, env[0], "BatchMode=yes")
		assert.Contains(t, env[0], "2222")
	}
}
