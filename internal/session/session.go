// Package session implements the browser session as an encrypted, signed
// client-side cookie. The server keeps no session table: the cookie is the
// session, and it carries at most one secret, the GitHub bearer token.
package session

import (
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// Lifetime bounds how long an issued session cookie stays decodable.
const Lifetime = 12 * time.Hour

// Session is the decoded cookie payload. A zero Session means
// unauthenticated; a non-empty Token is a claim to be verified upstream,
// never proof of validity.
type Session struct {
	Token string `json:"credential,omitempty"`
}

// Authenticated reports whether the session carries a credential claim.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Store encodes and decodes the session cookie. It is stateless: all state
// lives in the cookie itself, so a Store is safe for concurrent use.
type Store struct {
	codec      *securecookie.SecureCookie
	cookieName string
	secure     bool
}

// NewStore builds a Store keyed by key, which must be at least 32 bytes
// (enforced by config at startup). Independent HMAC and AES keys are derived
// from it so the two primitives never share key material.
func NewStore(key []byte, cookieName string, secure bool) *Store {
	hashKey := deriveKey(key, "hmac")
	blockKey := deriveKey(key, "aes")

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(Lifetime.Seconds()))

	return &Store{codec: codec, cookieName: cookieName, secure: secure}
}

func deriveKey(key []byte, label string) []byte {
	sum := sha256.Sum256(append(append([]byte{}, key...), []byte("hubview/"+label)...))
	return sum[:]
}

// Read decodes the session cookie from the request. It fails closed: a
// missing, expired, tampered, or otherwise undecodable cookie yields an
// empty Session, indistinguishable from "no session".
func (st *Store) Read(r *http.Request) Session {
	c, err := r.Cookie(st.cookieName)
	if err != nil {
		return Session{}
	}

	var s Session
	if err := st.codec.Decode(st.cookieName, c.Value, &s); err != nil {
		return Session{}
	}
	return s
}

// Write encrypts and signs the session and sets it as the response cookie.
func (st *Store) Write(w http.ResponseWriter, s Session) error {
	encoded, err := st.codec.Encode(st.cookieName, s)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     st.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(Lifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   st.secure,
	})
	return nil
}

// Destroy overwrites the cookie with an expired empty value. Destroying an
// absent session is a no-op success.
func (st *Store) Destroy(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     st.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   st.secure,
	})
}
