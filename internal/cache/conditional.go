package cache

import (
	"strings"
	"time"
)

// Action is what the gateway should do for a request, as classified by
// Decide. The evaluator only classifies; it performs no I/O and mutates
// nothing.
type Action int

const (
	// ActionNotModified: reply 304 with the stored validators, no body.
	ActionNotModified Action = iota
	// ActionServeCached: reply 200 with the stored payload, no upstream
	// call.
	ActionServeCached
	// ActionFetch: the upstream must be consulted. Reason says why.
	ActionFetch
)

// Reason explains an ActionFetch classification.
type Reason string

const (
	ReasonMiss              Reason = "miss"
	ReasonStale             Reason = "stale"
	ReasonValidatorMismatch Reason = "validator mismatch"
)

// Decision is the full classification result.
type Decision struct {
	Action Action
	Reason Reason
}

// RequestValidators are the inbound conditional headers; either may be
// absent (zero).
type RequestValidators struct {
	IfNoneMatch     string
	IfModifiedSince time.Time
}

func (v RequestValidators) empty() bool {
	return v.IfNoneMatch == "" && v.IfModifiedSince.IsZero()
}

// Decide classifies a request against the stored entry under the class
// policy. now is injected to keep the function pure.
//
// Absent entry: fetch (miss). Entry past max-age: fetch (stale); whether the
// stale payload may still be served while refreshing is the caller's call,
// per the class config. Fresh entry: a matching validator yields 304, no
// validators yield the cached payload, and a validator that names a
// different version forces a refetch.
func Decide(now time.Time, v RequestValidators, entry *Entry, maxAge time.Duration) Decision {
	if entry == nil {
		return Decision{Action: ActionFetch, Reason: ReasonMiss}
	}
	if !entry.Fresh(now, maxAge) {
		return Decision{Action: ActionFetch, Reason: ReasonStale}
	}

	if v.IfNoneMatch != "" && etagMatch(entry.ETag, v.IfNoneMatch) {
		return Decision{Action: ActionNotModified}
	}
	if entry.ETag == "" && !entry.LastModified.IsZero() && !v.IfModifiedSince.IsZero() &&
		!entry.LastModified.After(v.IfModifiedSince) {
		return Decision{Action: ActionNotModified}
	}
	if v.empty() {
		return Decision{Action: ActionServeCached}
	}
	return Decision{Action: ActionFetch, Reason: ReasonValidatorMismatch}
}

// etagMatch compares the stored validator with an inbound If-None-Match
// value: exact byte match, except that a stored weak validator (W/ prefix)
// compares by its opaque part.
func etagMatch(stored, inbound string) bool {
	if stored == "" || inbound == "" {
		return false
	}
	if stored == inbound {
		return true
	}
	if strings.HasPrefix(stored, "W/") {
		return strings.TrimPrefix(stored, "W/") == strings.TrimPrefix(inbound, "W/")
	}
	return false
}
