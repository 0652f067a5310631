// Package cache holds the in-process response cache: immutable entries keyed
// by resource fingerprint, a striped store with TTL expiry and single-flight
// fetch deduplication, and the pure conditional-request evaluator.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry is one cached upstream response. Entries are replaced wholesale on
// every successful fetch or revalidation, never mutated in place; treat a
// retrieved *Entry as read-only.
type Entry struct {
	Key          string          `json:"key"`
	Body         json.RawMessage `json:"body"`
	ETag         string          `json:"etag,omitempty"`
	LastModified time.Time       `json:"last_modified"`
	StoredAt     time.Time       `json:"stored_at"`

	// TTL is the hard lifetime; past it the store treats the entry as
	// absent. It exceeds the freshness max-age only when the resource
	// class allows stale-while-revalidate.
	TTL time.Duration `json:"ttl"`
}

// Fresh reports whether the entry is within maxAge at now.
func (e *Entry) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.StoredAt) <= maxAge
}

// Expired reports whether the entry is past its hard lifetime.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Refreshed returns a copy carrying the same payload with a new StoredAt,
// used when the upstream confirms the cached copy via 304.
func (e *Entry) Refreshed(now time.Time) *Entry {
	clone := *e
	clone.StoredAt = now
	return &clone
}

// Config is the per-resource-class cache policy. Immutable after
// construction.
type Config struct {
	// MaxAge is the freshness window advertised to clients.
	MaxAge time.Duration
	// Revalidate enables conditional upstream requests with stored
	// validators once an entry is no longer fresh.
	Revalidate bool
	// StaleWhileRevalidate, when positive, is the extra window during
	// which a stale entry may be served while a background refresh runs.
	StaleWhileRevalidate time.Duration
	// Timeout bounds the upstream fetch for this class.
	Timeout time.Duration
}

// revalidateWindow keeps no-longer-fresh entries around so their validators
// can still drive conditional upstream requests instead of full refetches.
const revalidateWindow = time.Hour

// Lifetime is the hard entry TTL implied by the policy.
func (c Config) Lifetime() time.Duration {
	l := c.MaxAge + c.StaleWhileRevalidate
	if c.Revalidate {
		l += revalidateWindow
	}
	return l
}

// CacheControl renders the policy as a Cache-Control header value.
func (c Config) CacheControl() string {
	var b strings.Builder
	fmt.Fprintf(&b, "private, max-age=%d", int(c.MaxAge.Seconds()))
	if c.StaleWhileRevalidate > 0 {
		fmt.Fprintf(&b, ", stale-while-revalidate=%d", int(c.StaleWhileRevalidate.Seconds()))
	}
	return b.String()
}
