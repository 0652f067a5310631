package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubview/hubview/internal/github"
	"github.com/hubview/hubview/internal/session"
)

type fakeViewer struct {
	mu    sync.Mutex
	calls int
	user  *github.User
	err   error
}

func (f *fakeViewer) Viewer(ctx context.Context, token string) (*github.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func (f *fakeViewer) Get(ctx context.Context, token, path string, params map[string]string, cond github.Conditional) (*github.Response, error) {
	return nil, nil
}

func (f *fakeViewer) RerunWorkflowRun(ctx context.Context, token, owner, repo string, runID int64) error {
	return nil
}

func newTestGate(up Upstream) (*Gate, *session.Store) {
	sessions := session.NewStore([]byte(strings.Repeat("k", 32)), "hubview_session", false)
	return NewGate(sessions, up, zerolog.Nop()), sessions
}

func TestRequireSession(t *testing.T) {
	g, sessions := newTestGate(&fakeViewer{})

	// No cookie.
	_, ok := g.RequireSession(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)

	// With cookie.
	rec := httptest.NewRecorder()
	require.NoError(t, sessions.Write(rec, session.Session{Token: "tok"}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	token, ok := g.RequireSession(req)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestAuthenticateRejectedDestroysSession(t *testing.T) {
	up := &fakeViewer{err: &github.APIError{Kind: github.KindInvalidCredential, Status: 401}}
	g, _ := newTestGate(up)

	rec := httptest.NewRecorder()
	_, err := g.Authenticate(context.Background(), rec, "revoked")
	require.Error(t, err)
	assert.True(t, github.IsInvalidCredential(err))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1, "rejection must overwrite the session cookie")
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAuthenticateTransientErrorKeepsSession(t *testing.T) {
	up := &fakeViewer{err: &github.APIError{Kind: github.KindUnavailable, Status: 503}}
	g, _ := newTestGate(up)

	rec := httptest.NewRecorder()
	_, err := g.Authenticate(context.Background(), rec, "tok")
	require.Error(t, err)
	assert.True(t, github.IsUnavailable(err))
	assert.Empty(t, rec.Result().Cookies(), "a flaky upstream must not log the user out")
}

func TestIdentityCachesAndExpires(t *testing.T) {
	up := &fakeViewer{user: &github.User{Login: "octocat"}}
	g, _ := newTestGate(up)

	now := time.Now()
	g.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		u, err := g.Identity(context.Background(), httptest.NewRecorder(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "octocat", u.Login)
	}
	assert.Equal(t, 1, up.calls, "repeat lookups within the TTL reuse the cached identity")

	now = now.Add(identityTTL + time.Second)
	_, err := g.Identity(context.Background(), httptest.NewRecorder(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls, "expired identity forces a live check")
}

func TestForgetDropsCachedIdentity(t *testing.T) {
	up := &fakeViewer{user: &github.User{Login: "octocat"}}
	g, _ := newTestGate(up)

	_, err := g.Identity(context.Background(), httptest.NewRecorder(), "tok")
	require.NoError(t, err)
	g.Forget("tok")

	_, err = g.Identity(context.Background(), httptest.NewRecorder(), "tok")
	require.NoError(t, err)
	assert.Equal(t, 2, up.calls)
}

func TestLooksLikeToken(t *testing.T) {
	assert.True(t, LooksLikeToken("ghp_test_token"))
	assert.False(t, LooksLikeToken(""))
	assert.False(t, LooksLikeToken("   "))
	assert.False(t, LooksLikeToken("has space"))
	assert.False(t, LooksLikeToken("has\nnewline"))
}
