// Package store holds the exact-match cache table: entries keyed by
// fingerprint plus the query index needed to rebuild similarity signatures.
//
// The store is not safe for concurrent use; the owning cache serializes all
// access under one lock and is responsible for keeping the similarity index
// in lockstep with the victims returned by Put and PurgeExpired.
package store

import (
	"sort"
	"time"
)

// evictDivisor selects the share of entries removed per eviction pass: the
// coldest fifth, ranked ascending by (hit count, timestamp). Evicting in
// batches keeps eviction from running on every insert near capacity.
const evictDivisor = 5

// Entry is a cached response with its metadata. Payload is the response as
// stored (the cache compresses it before insertion).
type Entry struct {
	Payload   []byte
	Timestamp time.Time
	Domain    string
	HitCount  int
}

// Victim identifies an entry removed by eviction or expiry. Query is the
// original query text, needed to recompute the signature for similarity
// index removal.
type Victim struct {
	Fingerprint string
	Query       string
}

// Store is the entry table and query index.
type Store struct {
	capacity int
	ttl      time.Duration

	entries map[string]*Entry
	queries map[string]string
}

// New creates an empty store. Capacity and TTL are validated by the cache.
func New(capacity int, ttl time.Duration) *Store {
	return &Store{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*Entry),
		queries:  make(map[string]string),
	}
}

// Lookup returns the entry for fp and whether it is fresh at now. Expired
// entries are left in place so the caller can remove them together with
// their similarity index membership.
func (s *Store) Lookup(fp string, now time.Time) (*Entry, bool) {
	e, ok := s.entries[fp]
	if !ok {
		return nil, false
	}
	return e, s.fresh(e, now)
}

// Query returns the original query text recorded for fp.
func (s *Store) Query(fp string) (string, bool) {
	q, ok := s.queries[fp]
	return q, ok
}

// Contains reports whether fp has an entry, fresh or not.
func (s *Store) Contains(fp string) bool {
	_, ok := s.entries[fp]
	return ok
}

// Put inserts or replaces the entry for fp. When inserting a new fingerprint
// at capacity it first evicts the coldest fifth of the table (at least one
// entry) and returns the victims; the store never holds more than capacity
// entries once Put returns.
func (s *Store) Put(fp, query string, e *Entry) []Victim {
	var victims []Victim
	if _, exists := s.entries[fp]; !exists && len(s.entries) >= s.capacity {
		victims = s.evictCold()
	}

	s.entries[fp] = e
	s.queries[fp] = query
	return victims
}

// Remove deletes fp from the entry table and query index.
func (s *Store) Remove(fp string) {
	delete(s.entries, fp)
	delete(s.queries, fp)
}

// PurgeExpired removes up to limit expired entries (all of them when limit
// <= 0) and returns them as victims. Expiry is lazy: this runs on the lookup
// path instead of a background sweep.
func (s *Store) PurgeExpired(now time.Time, limit int) []Victim {
	var victims []Victim
	scanned := 0
	for fp, e := range s.entries {
		if limit > 0 && scanned >= limit {
			break
		}
		scanned++
		if s.fresh(e, now) {
			continue
		}
		victims = append(victims, Victim{Fingerprint: fp, Query: s.queries[fp]})
	}

	for _, v := range victims {
		s.Remove(v.Fingerprint)
	}
	return victims
}

// Range calls fn for every stored (fingerprint, query) pair. Used for the
// O(N) similarity index rebuild.
func (s *Store) Range(fn func(fp, query string)) {
	for fp, q := range s.queries {
		fn(fp, q)
	}
}

// Clear empties the store.
func (s *Store) Clear() {
	s.entries = make(map[string]*Entry)
	s.queries = make(map[string]string)
}

// Len returns the number of stored entries, including expired ones not yet
// purged.
func (s *Store) Len() int {
	return len(s.entries)
}

// ValidLen returns the number of entries fresh at now.
func (s *Store) ValidLen(now time.Time) int {
	n := 0
	for _, e := range s.entries {
		if s.fresh(e, now) {
			n++
		}
	}
	return n
}

// MemoryBytes estimates the resident size of payloads, queries and keys.
func (s *Store) MemoryBytes() int64 {
	var n int64
	for fp, e := range s.entries {
		n += int64(len(fp) + len(e.Payload) + len(e.Domain))
	}
	for fp, q := range s.queries {
		n += int64(len(fp) + len(q))
	}
	return n
}

func (s *Store) fresh(e *Entry, now time.Time) bool {
	return now.Sub(e.Timestamp) < s.ttl
}

// evictCold removes the lowest-ranked fifth of the table, ranked ascending
// by (hit count, timestamp): cold, old entries go first.
func (s *Store) evictCold() []Victim {
	type ranked struct {
		fp string
		e  *Entry
	}
	all := make([]ranked, 0, len(s.entries))
	for fp, e := range s.entries {
		all = append(all, ranked{fp, e})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.e.HitCount != b.e.HitCount {
			return a.e.HitCount < b.e.HitCount
		}
		if !a.e.Timestamp.Equal(b.e.Timestamp) {
			return a.e.Timestamp.Before(b.e.Timestamp)
		}
		return a.fp < b.fp
	})

	count := len(all) / evictDivisor
	if count < 1 {
		count = 1
	}

	victims := make([]Victim, 0, count)
	for _, r := range all[:count] {
		victims = append(victims, Victim{Fingerprint: r.fp, Query: s.queries[r.fp]})
		s.Remove(r.fp)
	}
	return victims
}
