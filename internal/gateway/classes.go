package gateway

import (
	"time"

	"github.com/hubview/hubview/internal/cache"
)

// Class groups resources sharing one cache policy.
type Class string

const (
	ClassOrgs     Class = "orgs"
	ClassRepos    Class = "repos"
	ClassRuns     Class = "runs"
	ClassBranches Class = "branches"
)

// classConfigs is fixed at init and read-only afterwards. Workflow runs are
// the polled resource, so they get a short max-age with a
// stale-while-revalidate window; the rest change slowly.
var classConfigs = map[Class]cache.Config{
	ClassOrgs:     {MaxAge: 10 * time.Minute, Revalidate: true, Timeout: 8 * time.Second},
	ClassRepos:    {MaxAge: 5 * time.Minute, Revalidate: true, Timeout: 8 * time.Second},
	ClassRuns:     {MaxAge: 30 * time.Second, Revalidate: true, StaleWhileRevalidate: 5 * time.Minute, Timeout: 8 * time.Second},
	ClassBranches: {MaxAge: 5 * time.Minute, Revalidate: true, Timeout: 8 * time.Second},
}

// Config returns the cache policy for the class. Unknown classes get a
// conservative no-store-ish minute of freshness rather than a panic.
func (c Class) Config() cache.Config {
	if cfg, ok := classConfigs[c]; ok {
		return cfg
	}
	return cache.Config{MaxAge: time.Minute, Revalidate: true, Timeout: 8 * time.Second}
}
