package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hubview/hubview/internal/github"
	"github.com/hubview/hubview/internal/session"
)

// identityTTL bounds how long a verified token→identity mapping is reused
// before the next live check.
const identityTTL = 2 * time.Minute

type identityEntry struct {
	user    *github.User
	expires time.Time
}

// Gate decides whether a request may proceed on its credential. Apart from a
// short-lived token→identity cache it is stateless: everything it needs
// arrives with the request.
type Gate struct {
	sessions *session.Store
	upstream Upstream
	log      zerolog.Logger

	mu         sync.Mutex
	identities map[string]identityEntry
	now        func() time.Time
}

func NewGate(sessions *session.Store, upstream Upstream, log zerolog.Logger) *Gate {
	return &Gate{
		sessions:   sessions,
		upstream:   upstream,
		log:        log,
		identities: make(map[string]identityEntry),
		now:        time.Now,
	}
}

// RequireSession reads the session and returns the credential claim. A
// missing credential means unauthenticated; no upstream call is spent on a
// request that is trivially unauthenticated.
func (g *Gate) RequireSession(r *http.Request) (string, bool) {
	s := g.sessions.Read(r)
	return s.Token, s.Authenticated()
}

// Authenticate exchanges the candidate credential for an identity via the
// upstream who-am-I call, the single source of truth for validity. On
// upstream rejection of a credential the session is destroyed so the next
// request observes unauthenticated instead of failing again.
//
// Transient upstream trouble is not an invalid credential: the error
// propagates and the session stays intact.
func (g *Gate) Authenticate(ctx context.Context, w http.ResponseWriter, token string) (*github.User, error) {
	user, err := g.upstream.Viewer(ctx, token)
	if err != nil {
		if github.IsInvalidCredential(err) {
			g.log.Info().Msg("destroying session: credential rejected upstream")
			g.Forget(token)
			g.sessions.Destroy(w)
		}
		return nil, err
	}
	g.remember(token, user)
	return user, nil
}

// Identity resolves the credential to its verified identity, reusing a
// recent Authenticate result when one is cached. Handlers that only need the
// viewer login (identity-scoped cache keys, the personal pseudo-org) go
// through here so they do not spend rate-limit budget per request.
func (g *Gate) Identity(ctx context.Context, w http.ResponseWriter, token string) (*github.User, error) {
	key := tokenDigest(token)

	g.mu.Lock()
	e, ok := g.identities[key]
	if ok && g.now().Before(e.expires) {
		g.mu.Unlock()
		return e.user, nil
	}
	delete(g.identities, key)
	g.mu.Unlock()

	return g.Authenticate(ctx, w, token)
}

// Forget drops the cached identity for token, after the upstream rejected it.
func (g *Gate) Forget(token string) {
	g.mu.Lock()
	delete(g.identities, tokenDigest(token))
	g.mu.Unlock()
}

func (g *Gate) remember(token string, user *github.User) {
	g.mu.Lock()
	g.identities[tokenDigest(token)] = identityEntry{user: user, expires: g.now().Add(identityTTL)}
	g.mu.Unlock()
}

// tokenDigest keys the identity cache without holding the credential itself.
func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// LooksLikeToken is an advisory pre-filter for obviously malformed input.
// Passing it proves nothing; only Authenticate decides validity.
func LooksLikeToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	return !strings.ContainsAny(token, " \t\r\n")
}
