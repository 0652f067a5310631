package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubview/hubview/internal/cache"
	"github.com/hubview/hubview/internal/github"
)

type fakeUpstream struct {
	mu       sync.Mutex
	getCalls int
	resp     *github.Response
	err      error
	lastCond github.Conditional
}

func (f *fakeUpstream) Get(ctx context.Context, token, path string, params map[string]string, cond github.Conditional) (*github.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	f.lastCond = cond
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeUpstream) Viewer(ctx context.Context, token string) (*github.User, error) {
	return &github.User{Login: "octocat"}, nil
}

func (f *fakeUpstream) RerunWorkflowRun(ctx context.Context, token, owner, repo string, runID int64) error {
	return nil
}

func (f *fakeUpstream) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func testResource() Resource {
	return Resource{
		Class:  ClassRuns,
		Key:    cache.Key("repos/octo/widgets/runs", map[string]string{"per_page": "50"}),
		Path:   "/repos/octo/widgets/actions/runs",
		Params: map[string]string{"per_page": "50"},
	}
}

func okBody() json.RawMessage {
	return json.RawMessage(`{"workflow_runs":[{"id":1}]}`)
}

func newTestGateway(up *fakeUpstream) (*Gateway, *cache.Store) {
	store := cache.NewStore()
	g := New(store, up, zerolog.Nop())
	return g, store
}

func TestServeNoCredential(t *testing.T) {
	up := &fakeUpstream{}
	g, store := newTestGateway(up)

	res := g.Serve(context.Background(), "", testResource(), cache.RequestValidators{})

	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, 0, up.calls(), "unauthenticated request must not reach upstream")
	assert.Equal(t, 0, store.Len(), "unauthenticated request must not touch the cache")
}

func TestServeMissFetchesAndCaches(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, store := newTestGateway(up)

	res := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, `"e1"`, res.ETag)
	assert.JSONEq(t, string(okBody()), string(res.Body))
	assert.Contains(t, res.CacheControl, "max-age=30")
	assert.Contains(t, res.CacheControl, "stale-while-revalidate")
	assert.Equal(t, 1, store.Len())
}

func TestServeFreshHitSkipsUpstream(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, _ := newTestGateway(up)

	g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})
	res := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 1, up.calls(), "fresh hit must not refetch")
}

func TestServeConditionalNotModified(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, _ := newTestGateway(up)

	first := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})
	require.Equal(t, http.StatusOK, first.Status)

	res := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{IfNoneMatch: first.ETag})

	assert.Equal(t, http.StatusNotModified, res.Status)
	assert.Nil(t, res.Body, "304 carries no body")
	assert.Equal(t, `"e1"`, res.ETag)
	assert.Equal(t, 1, up.calls())
}

func TestServeMismatchedValidatorRefetches(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, _ := newTestGateway(up)

	g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})
	res := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{IfNoneMatch: `"other"`})

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 2, up.calls(), "a validator naming a different version forces a refetch")
}

func TestServeStaleRevalidatesWithStoredValidators(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`, LastModified: time.Now().UTC().Truncate(time.Second)}}
	g, _ := newTestGateway(up)
	res := Resource{Class: ClassBranches, Key: "repos/octo/widgets/branches", Path: "/repos/octo/widgets/branches"}

	now := time.Now()
	g.now = func() time.Time { return now }
	g.Serve(context.Background(), "tok", res, cache.RequestValidators{})

	// Jump past max-age but within nothing else: branches has no
	// stale-while-revalidate, so this is a synchronous revalidation.
	now = now.Add(6 * time.Minute)
	up.mu.Lock()
	up.resp = &github.Response{Status: http.StatusNotModified, ETag: `"e1"`}
	up.mu.Unlock()

	out := g.Serve(context.Background(), "tok", res, cache.RequestValidators{})

	assert.Equal(t, http.StatusOK, out.Status)
	assert.JSONEq(t, string(okBody()), string(out.Body), "304 from upstream serves the retained payload")
	assert.Equal(t, `"e1"`, up.lastCond.ETag, "revalidation must carry the stored validator")

	// The refreshed entry is fresh again: no further upstream call.
	calls := up.calls()
	g.Serve(context.Background(), "tok", res, cache.RequestValidators{})
	assert.Equal(t, calls, up.calls())
}

func TestServeStaleWhileRevalidate(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, _ := newTestGateway(up)

	now := time.Now()
	g.now = func() time.Time { return now }
	g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})

	// Past the 30s max-age, inside the 5m stale window.
	now = now.Add(time.Minute)

	out := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})

	assert.Equal(t, http.StatusOK, out.Status)
	assert.True(t, out.Stale, "stale window must serve the cached payload immediately")
	assert.JSONEq(t, string(okBody()), string(out.Body))

	// The background refresh eventually lands.
	assert.Eventually(t, func() bool { return up.calls() >= 2 }, time.Second, 10*time.Millisecond)
}

func TestServeUpstreamErrorsAreNotCached(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unavailable", &github.APIError{Kind: github.KindUnavailable, Status: 502}, http.StatusInternalServerError},
		{"not found", &github.APIError{Kind: github.KindNotFound, Status: 404}, http.StatusNotFound},
		{"other 4xx", &github.APIError{Kind: github.KindUpstream, Status: 422}, http.StatusUnprocessableEntity},
		{"invalid credential", &github.APIError{Kind: github.KindInvalidCredential, Status: 401}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := &fakeUpstream{err: tc.err}
			g, store := newTestGateway(up)

			res := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})

			assert.Equal(t, tc.wantStatus, res.Status)
			assert.NotEmpty(t, res.ErrorMessage)
			assert.Equal(t, 0, store.Len(), "errors must never be cached")
		})
	}
}

func TestServeCredentialRejectedFlag(t *testing.T) {
	up := &fakeUpstream{err: &github.APIError{Kind: github.KindInvalidCredential, Status: 401}}
	g, _ := newTestGateway(up)

	res := g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})
	assert.True(t, res.CredentialRejected)
}

func TestServeNotFoundEvictsStaleEntry(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, store := newTestGateway(up)
	res := Resource{Class: ClassBranches, Key: "repos/octo/widgets/branches", Path: "/repos/octo/widgets/branches"}

	now := time.Now()
	g.now = func() time.Time { return now }
	g.Serve(context.Background(), "tok", res, cache.RequestValidators{})
	require.Equal(t, 1, store.Len())

	now = now.Add(6 * time.Minute) // stale, forces refetch
	up.mu.Lock()
	up.err = &github.APIError{Kind: github.KindNotFound, Status: 404}
	up.mu.Unlock()

	out := g.Serve(context.Background(), "tok", res, cache.RequestValidators{})
	assert.Equal(t, http.StatusNotFound, out.Status)
	assert.Equal(t, 0, store.Len(), "a 404 evicts the stale positive entry")
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	up := &fakeUpstream{resp: &github.Response{Status: 200, Body: okBody(), ETag: `"e1"`}}
	g, _ := newTestGateway(up)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.Serve(context.Background(), "tok", testResource(), cache.RequestValidators{})
		}(i)
	}
	wg.Wait()

	// singleflight may let a second fetch start after the first completes,
	// but nowhere near one per caller.
	assert.LessOrEqual(t, up.calls(), 2)
	for _, r := range results {
		assert.Equal(t, http.StatusOK, r.Status)
		assert.JSONEq(t, string(okBody()), string(r.Body))
	}
}
