package workspace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	tests := []struct {
		repo   string
		branch string
		want   string
	}{
		{"myrepo", "main", "myrepo--main"},
		{"myrepo", "feature/login", "myrepo--feature-login"},
		{"my.repo", "fix_1.2", "my.repo--fix__1.2"},
		{"my-repo", "main", "my_-repo--main"},
		{"a/b", "c/d/e", "a-b--c-d-e"},
	}
	for _, tt := range tests {
		got, err := Name(tt.repo, tt.branch)
		require.NoError(t, err, "Name(%q, %q)", tt.repo, tt.branch)
		assert.Equal(t, tt.want, got)
	}
}

func TestNameDistinctPairs(t *testing.T) {
	// Different repos with the same branch must map to different names.
	a, err := Name("alpha", "main")
	require.NoError(t, err)
	b, err := Name("beta", "main")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNameInjective(t *testing.T) {
	// Distinct (repo, branch) pairs must never share a directory: a clone
	// reused across branches would let clean of one destroy the other.
	pairs := [][2]string{
		{"myrepo", "a/b"},
		{"myrepo", "a-b"},
		{"myrepo", "a_b"},
		{"myrepo", "a_-b"},
		{"my-repo", "b"},
		{"my", "repo--b"},
		{"myrepo", "feature/x"},
		{"myrepo", "feature-x"},
	}
	seen := map[string][2]string{}
	for _, p := range pairs {
		name, err := Name(p[0], p[1])
		require.NoError(t, err, "Name(%q, %q)", p[0], p[1])
		prev, dup := seen[name]
		assert.False(t, dup, "Name(%q, %q) and Name(%q, %q) both map to %q", prev[0], prev[1], p[0], p[1], name)
		seen[name] = p
	}
}

func TestNameInvalid(t *testing.T) {
	_, err := Name("", "")
	assert.Error(t, err)

	_, err = Name("repo", "branch with spaces")
	assert.Error(t, err)

	_, err = Name("repo", "bad;rm")
	assert.Error(t, err)

	_, err = Name(strings.Repeat("a", 100), strings.Repeat("b", 100))
	assert.Error(t, err)
}

func TestGuestPathRefusesTraversal(t *testing.T) {
	p, err := guestPath("workspaces", "../escape")
	require.NoError(t, err)
	// SecureJoin keeps the result under the root.
	assert.True(t, strings.HasPrefix(p, "workspaces"), "got %q", p)
}
