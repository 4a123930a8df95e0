package store

import (
	"fmt"
	"testing"
	"time"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func entryAt(ts time.Time, hits int) *Entry {
	return &Entry{
		Payload:   []byte("response"),
		Timestamp: ts,
		Domain:    "generic",
		HitCount:  hits,
	}
}

func TestStore_PutLookup(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("fp-1", "how do i restart", entryAt(epoch, 0))

	e, fresh := s.Lookup("fp-1", epoch.Add(time.Second))
	if e == nil || !fresh {
		t.Fatalf("Lookup() = (%v, %v), want fresh entry", e, fresh)
	}
	if string(e.Payload) != "response" {
		t.Errorf("Payload = %q, want %q", e.Payload, "response")
	}

	q, ok := s.Query("fp-1")
	if !ok || q != "how do i restart" {
		t.Errorf("Query() = (%q, %v), want stored query", q, ok)
	}
}

func TestStore_LookupExpired(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("fp-1", "q", entryAt(epoch, 0))

	e, fresh := s.Lookup("fp-1", epoch.Add(time.Minute+time.Second))
	if e == nil {
		t.Fatal("Lookup() = nil, expired entry should be returned for coupled removal")
	}
	if fresh {
		t.Error("Lookup() reported an expired entry as fresh")
	}
}

func TestStore_PurgeExpired(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("old", "old query", entryAt(epoch.Add(-2*time.Minute), 5))
	s.Put("new", "new query", entryAt(epoch, 0))

	victims := s.PurgeExpired(epoch, 0)
	if len(victims) != 1 {
		t.Fatalf("PurgeExpired() = %v, want 1 victim", victims)
	}
	if victims[0].Fingerprint != "old" || victims[0].Query != "old query" {
		t.Errorf("victim = %+v, want the expired entry with its query", victims[0])
	}
	if s.Contains("old") {
		t.Error("expired entry still present after purge")
	}
	if !s.Contains("new") {
		t.Error("fresh entry removed by purge")
	}
}

func TestStore_PurgeExpiredBounded(t *testing.T) {
	s := New(100, time.Minute)
	for i := 0; i < 20; i++ {
		s.Put(fmt.Sprintf("fp-%d", i), "q", entryAt(epoch.Add(-time.Hour), 0))
	}

	victims := s.PurgeExpired(epoch, 5)
	if len(victims) > 5 {
		t.Errorf("PurgeExpired(limit=5) removed %d entries", len(victims))
	}
	if s.Len() != 20-len(victims) {
		t.Errorf("Len() = %d after purging %d of 20", s.Len(), len(victims))
	}
}

func TestStore_EvictsColdestFifth(t *testing.T) {
	s := New(10, time.Hour)
	for i := 0; i < 10; i++ {
		// Ascending hit counts: fp-0 is the coldest.
		s.Put(fmt.Sprintf("fp-%d", i), "q", entryAt(epoch.Add(time.Duration(i)*time.Second), i))
	}

	victims := s.Put("fp-new", "q", entryAt(epoch.Add(time.Minute), 0))
	if len(victims) != 2 {
		t.Fatalf("Put() at capacity evicted %d entries, want 2 (20%% of 10)", len(victims))
	}
	for i, want := range []string{"fp-0", "fp-1"} {
		if victims[i].Fingerprint != want {
			t.Errorf("victim[%d] = %q, want %q (coldest first)", i, victims[i].Fingerprint, want)
		}
	}
	if s.Len() > 10 {
		t.Errorf("Len() = %d, want <= capacity", s.Len())
	}
}

func TestStore_EvictionPrefersOldAtEqualHits(t *testing.T) {
	s := New(5, time.Hour)
	for i := 0; i < 5; i++ {
		s.Put(fmt.Sprintf("fp-%d", i), "q", entryAt(epoch.Add(time.Duration(i)*time.Second), 0))
	}

	victims := s.Put("fp-new", "q", entryAt(epoch.Add(time.Minute), 0))
	if len(victims) != 1 {
		t.Fatalf("Put() evicted %d entries, want 1", len(victims))
	}
	if victims[0].Fingerprint != "fp-0" {
		t.Errorf("victim = %q, want oldest entry fp-0", victims[0].Fingerprint)
	}
}

func TestStore_NeverExceedsCapacity(t *testing.T) {
	const capacity = 20
	s := New(capacity, time.Hour)
	for i := 0; i < capacity+50; i++ {
		s.Put(fmt.Sprintf("fp-%d", i), "q", entryAt(epoch.Add(time.Duration(i)*time.Second), 0))
		if s.Len() > capacity {
			t.Fatalf("Len() = %d after insert %d, want <= %d", s.Len(), i, capacity)
		}
	}
}

func TestStore_ReplaceDoesNotEvict(t *testing.T) {
	s := New(2, time.Hour)
	s.Put("fp-1", "q1", entryAt(epoch, 0))
	s.Put("fp-2", "q2", entryAt(epoch, 0))

	victims := s.Put("fp-1", "q1", entryAt(epoch.Add(time.Second), 3))
	if len(victims) != 0 {
		t.Errorf("replacing an existing fingerprint evicted %v", victims)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	e, _ := s.Lookup("fp-1", epoch.Add(2*time.Second))
	if e.HitCount != 3 {
		t.Errorf("HitCount = %d, want replacement entry", e.HitCount)
	}
}

func TestStore_Clear(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("fp-1", "q", entryAt(epoch, 0))
	s.Clear()

	if s.Len() != 0 {
		t.Errorf("Len() = %d after Clear(), want 0", s.Len())
	}
	if _, ok := s.Query("fp-1"); ok {
		t.Error("Query() found an entry after Clear()")
	}
}

func TestStore_ValidLen(t *testing.T) {
	s := New(10, time.Minute)
	s.Put("fresh", "q", entryAt(epoch, 0))
	s.Put("stale", "q", entryAt(epoch.Add(-2*time.Minute), 0))

	if got := s.ValidLen(epoch); got != 1 {
		t.Errorf("ValidLen() = %d, want 1", got)
	}
	if got := s.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestStore_MemoryBytes(t *testing.T) {
	s := New(10, time.Minute)
	if got := s.MemoryBytes(); got != 0 {
		t.Errorf("MemoryBytes() empty = %d, want 0", got)
	}
	s.Put("fp-1", "a query", entryAt(epoch, 0))
	if got := s.MemoryBytes(); got <= 0 {
		t.Errorf("MemoryBytes() = %d, want > 0", got)
	}
}
