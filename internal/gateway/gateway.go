// Package gateway orchestrates the per-request flow: session → credential
// gate → cache/conditional check → upstream fetch → response. It is the one
// place upstream errors are translated; nothing past this boundary sees a
// raw upstream error.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hubview/hubview/internal/cache"
	"github.com/hubview/hubview/internal/github"
	"github.com/hubview/hubview/internal/metrics"
	"github.com/hubview/hubview/pkg/safego"
)

// Upstream is the slice of the GitHub client the gateway consumes. Narrow on
// purpose so tests can inject a fake.
type Upstream interface {
	Get(ctx context.Context, token, path string, params map[string]string, cond github.Conditional) (*github.Response, error)
	Viewer(ctx context.Context, token string) (*github.User, error)
	RerunWorkflowRun(ctx context.Context, token, owner, repo string, runID int64) error
}

// Resource names one cacheable upstream resource: its class policy, its
// cache fingerprint, and the upstream path + params that materialize it.
type Resource struct {
	Class  Class
	Key    string
	Path   string
	Params map[string]string
}

// Result is the gateway's answer for a cached-resource request, ready to be
// written by the HTTP layer. Status is 200, 304, 401, 404, 500, or an
// upstream-reported 4xx passed through unchanged.
type Result struct {
	Status       int
	Body         json.RawMessage
	ETag         string
	LastModified time.Time
	CacheControl string

	// Stale marks a 200 served from a stale entry while a background
	// refresh runs.
	Stale bool
	// CredentialRejected tells the HTTP layer to destroy the session.
	CredentialRejected bool
	// ErrorMessage is the safe, client-facing message for non-2xx/304.
	ErrorMessage string
}

// Gateway wires the stores together. One instance serves the whole process.
type Gateway struct {
	store    *cache.Store
	upstream Upstream
	log      zerolog.Logger
	now      func() time.Time
}

func New(store *cache.Store, upstream Upstream, log zerolog.Logger) *Gateway {
	return &Gateway{store: store, upstream: upstream, log: log, now: time.Now}
}

// Serve handles one authenticated request for a cacheable resource. The
// caller has already established that a credential is present; Serve never
// touches the cache without one.
func (g *Gateway) Serve(ctx context.Context, token string, res Resource, v cache.RequestValidators) Result {
	if token == "" {
		return Result{Status: http.StatusUnauthorized, ErrorMessage: "authentication required"}
	}

	cfg := res.Class.Config()
	entry := g.store.Get(res.Key)
	decision := cache.Decide(g.now(), v, entry, cfg.MaxAge)

	switch decision.Action {
	case cache.ActionNotModified:
		metrics.CacheOutcomes.WithLabelValues(string(res.Class), "not_modified").Inc()
		return Result{
			Status:       http.StatusNotModified,
			ETag:         entry.ETag,
			LastModified: entry.LastModified,
			CacheControl: cfg.CacheControl(),
		}

	case cache.ActionServeCached:
		metrics.CacheOutcomes.WithLabelValues(string(res.Class), "hit").Inc()
		return g.okResult(entry, cfg, false)

	default: // ActionFetch
		metrics.CacheOutcomes.WithLabelValues(string(res.Class), outcomeLabel(decision.Reason)).Inc()

		if decision.Reason == cache.ReasonStale && entry != nil && cfg.StaleWhileRevalidate > 0 &&
			entry.Fresh(g.now(), cfg.MaxAge+cfg.StaleWhileRevalidate) {
			g.refreshInBackground(token, res, cfg, entry)
			metrics.CacheOutcomes.WithLabelValues(string(res.Class), "stale_served").Inc()
			return g.okResult(entry, cfg, true)
		}

		return g.fetch(ctx, token, res, cfg, entry)
	}
}

// fetch performs (or joins) the upstream fetch for res and translates the
// outcome into a Result.
func (g *Gateway) fetch(ctx context.Context, token string, res Resource, cfg cache.Config, prev *cache.Entry) Result {
	fr, err := g.store.Fetch(ctx, res.Key, g.fetchFn(token, res, cfg, prev))
	if fr.Shared {
		metrics.SharedFlights.Inc()
	}
	if err != nil {
		return g.errorResult(res, err)
	}
	return g.okResult(fr.Entry, cfg, false)
}

// fetchFn builds the single-flight fetch closure. It runs on a context
// detached from any one caller, bounded by the class timeout, and only a
// successful exchange writes a cache entry.
func (g *Gateway) fetchFn(token string, res Resource, cfg cache.Config, prev *cache.Entry) func(context.Context) (*cache.Entry, error) {
	return func(ctx context.Context) (*cache.Entry, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()

		var cond github.Conditional
		if prev != nil && cfg.Revalidate {
			cond = github.Conditional{ETag: prev.ETag, LastModified: prev.LastModified}
		}

		start := g.now()
		resp, err := g.upstream.Get(ctx, token, res.Path, res.Params, cond)
		metrics.UpstreamDuration.WithLabelValues(string(res.Class)).Observe(g.now().Sub(start).Seconds())
		if err != nil {
			metrics.UpstreamRequests.WithLabelValues(string(res.Class), "error").Inc()
			return nil, err
		}

		now := g.now()
		if resp.NotModified() {
			metrics.UpstreamRequests.WithLabelValues(string(res.Class), "not_modified").Inc()
			refreshed := prev.Refreshed(now)
			refreshed.TTL = cfg.Lifetime()
			g.store.Put(res.Key, refreshed)
			return refreshed, nil
		}

		metrics.UpstreamRequests.WithLabelValues(string(res.Class), "ok").Inc()
		entry := &cache.Entry{
			Key:          res.Key,
			Body:         resp.Body,
			ETag:         resp.ETag,
			LastModified: resp.LastModified,
			StoredAt:     now,
			TTL:          cfg.Lifetime(),
		}
		g.store.Put(res.Key, entry)
		return entry, nil
	}
}

// refreshInBackground serves stale content while refreshing. The refresh
// shares the single-flight mechanism with synchronous fetchers, so a
// concurrent synchronous miss and this task never double-fetch.
func (g *Gateway) refreshInBackground(token string, res Resource, cfg cache.Config, prev *cache.Entry) {
	refreshID := uuid.NewString()
	log := g.log.With().Str("refresh_id", refreshID).Str("key", res.Key).Logger()

	safego.Go(log, "cache-refresh", func() {
		_, err := g.store.Fetch(context.Background(), res.Key, g.fetchFn(token, res, cfg, prev))
		if err != nil {
			log.Warn().Err(err).Msg("background refresh failed")
			return
		}
		log.Debug().Msg("background refresh completed")
	})
}

// Invalidate drops every cached entry under prefix, after a mutating action
// against that resource subtree.
func (g *Gateway) Invalidate(prefix string) {
	n := g.store.InvalidateByPrefix(prefix)
	g.log.Debug().Str("prefix", prefix).Int("dropped", n).Msg("cache invalidated")
}

// Rerun triggers a workflow re-run upstream. On success the cached run lists
// for the repository are invalidated so the next poll observes the write;
// on failure the cache is left untouched.
func (g *Gateway) Rerun(ctx context.Context, token, owner, repo string, runID int64) error {
	if err := g.upstream.RerunWorkflowRun(ctx, token, owner, repo, runID); err != nil {
		return err
	}
	g.Invalidate(cache.RepoPrefix(owner, repo, "runs"))
	return nil
}

func (g *Gateway) okResult(entry *cache.Entry, cfg cache.Config, stale bool) Result {
	return Result{
		Status:       http.StatusOK,
		Body:         entry.Body,
		ETag:         entry.ETag,
		LastModified: entry.LastModified,
		CacheControl: cfg.CacheControl(),
		Stale:        stale,
	}
}

// errorResult maps a fetch failure onto the response contract: 401 for a
// rejected credential (with the session torn down by the caller), 404 for an
// absent resource, the upstream's own status for other 4xx, 500 for
// everything else. Errors are never cached.
func (g *Gateway) errorResult(res Resource, err error) Result {
	log := g.log.With().Str("key", res.Key).Logger()

	apiErr, ok := github.AsAPIError(err)
	if !ok {
		// Waiter timeout or client disconnect while awaiting a shared
		// flight.
		log.Warn().Err(err).Msg("fetch aborted")
		return Result{Status: http.StatusInternalServerError, ErrorMessage: "upstream unavailable"}
	}

	switch apiErr.Kind {
	case github.KindInvalidCredential:
		log.Info().Msg("upstream rejected credential")
		return Result{
			Status:             http.StatusUnauthorized,
			CredentialRejected: true,
			ErrorMessage:       "credential rejected",
		}
	case github.KindNotFound:
		// A 404 may evict a stale positive entry but is never cached.
		g.store.Invalidate(res.Key)
		return Result{Status: http.StatusNotFound, ErrorMessage: "resource not found"}
	case github.KindUpstream:
		log.Warn().Int("status", apiErr.Status).Msg("upstream error")
		status := apiErr.Status
		if status < 400 || status >= 500 {
			status = http.StatusInternalServerError
		}
		return Result{Status: status, ErrorMessage: "upstream request failed"}
	default:
		log.Warn().Err(err).Msg("upstream unavailable")
		return Result{Status: http.StatusInternalServerError, ErrorMessage: "upstream unavailable"}
	}
}

func outcomeLabel(r cache.Reason) string {
	switch r {
	case cache.ReasonMiss:
		return "miss"
	case cache.ReasonStale:
		return "stale"
	default:
		return "validator_mismatch"
	}
}
