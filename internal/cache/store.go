package cache

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// shardCount stripes the key space so concurrent polling on different keys
// does not contend on one lock.
const shardCount = 16

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Store is the process-wide response cache. It owns every Entry it holds:
// callers get and put whole entries and never mutate them afterward.
//
// Expired entries are evicted lazily on read; there is no background sweep.
// The zero value is not usable, construct with NewStore.
type Store struct {
	shards [shardCount]*shard
	flight singleflight.Group
	now    func() time.Time
}

func NewStore() *Store {
	s := &Store{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck
	return s.shards[h.Sum32()%shardCount]
}

// Get returns the entry for key, or nil when never populated or past its
// hard TTL. An expired entry is removed on the spot.
func (s *Store) Get(key string) *Entry {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		return nil
	}

	if e.Expired(s.now()) {
		sh.mu.Lock()
		// Re-check under the write lock; a fresh entry may have landed.
		if cur, ok := sh.entries[key]; ok && cur.Expired(s.now()) {
			delete(sh.entries, key)
		}
		sh.mu.Unlock()
		return nil
	}
	return e
}

// Put stores entry under key, replacing any previous entry wholesale.
// Last writer wins.
func (s *Store) Put(key string, entry *Entry) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.entries[key] = entry
	sh.mu.Unlock()
}

// Invalidate removes the entry for key if present.
func (s *Store) Invalidate(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// InvalidateByPrefix removes every entry whose key starts with prefix and
// returns how many were dropped. Used after a mutating action so the next
// read observes the upstream write.
func (s *Store) InvalidateByPrefix(prefix string) int {
	var n int
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k := range sh.entries {
			if strings.HasPrefix(k, prefix) {
				delete(sh.entries, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Len returns the live entry count. Expired-but-unswept entries are counted;
// the figure is for metrics, not correctness.
func (s *Store) Len() int {
	var n int
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// FetchResult is what Fetch hands back to every waiter of a shared flight.
type FetchResult struct {
	Entry *Entry
	// Shared is true when this caller reused another caller's in-flight
	// fetch instead of issuing its own.
	Shared bool
}

// Fetch runs fn at most once per key across concurrent callers: the first
// caller to miss installs the flight, later callers for the same key wait on
// it, and the outcome (entry or error) is broadcast to all of them.
//
// fn receives a context detached from the caller's cancellation, so a client
// that disconnects mid-flight does not cancel a fetch other waiters share;
// fn is expected to apply its own deadline. Each waiter still honors its own
// ctx and returns ctx.Err() if it expires first.
func (s *Store) Fetch(ctx context.Context, key string, fn func(context.Context) (*Entry, error)) (FetchResult, error) {
	detached := context.WithoutCancel(ctx)

	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return FetchResult{Shared: res.Shared}, res.Err
		}
		return FetchResult{Entry: res.Val.(*Entry), Shared: res.Shared}, nil
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	}
}
