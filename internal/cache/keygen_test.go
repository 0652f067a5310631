package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("/repos/octo/widgets/runs", map[string]string{"per_page": "50", "branch": "main"})
	b := Key("repos/octo/widgets/runs", map[string]string{"branch": "main", "per_page": "50"})
	assert.Equal(t, a, b, "param order and leading slash must not change the key")
	assert.Equal(t, "repos/octo/widgets/runs?branch=main&per_page=50", a)
}

func TestKeyWithoutParams(t *testing.T) {
	assert.Equal(t, "repos/octo/widgets/branches", Key("/repos/octo/widgets/branches/", nil))
}

func TestKeyDistinguishesParams(t *testing.T) {
	a := Key("repos/o/r/runs", map[string]string{"per_page": "50"})
	b := Key("repos/o/r/runs", map[string]string{"per_page": "100"})
	assert.NotEqual(t, a, b)
}

func TestUserScopedKeySeparatesUsers(t *testing.T) {
	a := UserScopedKey("alice", "orgs", nil)
	b := UserScopedKey("bob", "orgs", nil)
	assert.NotEqual(t, a, b, "per-user resources must not share cache entries")
}

func TestRepoPrefixCoversParamVariants(t *testing.T) {
	prefix := RepoPrefix("octo", "widgets", "runs")
	key := Key("repos/octo/widgets/runs", map[string]string{"per_page": "50"})
	assert.Contains(t, key, prefix)
}
