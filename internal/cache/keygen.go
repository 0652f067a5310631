package cache

import (
	"sort"
	"strings"
)

// Key builds a deterministic fingerprint from a resource route and its
// relevant query parameters. Parameters are sorted so map iteration order
// never changes the key. The credential is never part of a key.
func Key(route string, params map[string]string) string {
	route = strings.Trim(route, "/")
	if len(params) == 0 {
		return route
	}

	parts := make([]string, 0, len(params))
	for k, v := range params {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)

	return route + "?" + strings.Join(parts, "&")
}

// UserScopedKey prefixes a fingerprint with the acting identity, for
// resources whose route does not already name an owner (the viewer's org
// list, the personal repository list). Without the login two users' personal
// data would collide in the shared cache.
func UserScopedKey(login, route string, params map[string]string) string {
	return "user/" + login + "/" + Key(route, params)
}

// RepoPrefix is the invalidation prefix covering every cached resource of
// one repository subtree, e.g. all paginated run lists after a re-run.
func RepoPrefix(owner, repo, resource string) string {
	return "repos/" + owner + "/" + repo + "/" + resource
}
