// Package semcache provides a semantic response cache with request
// coalescing for expensive query backends.
//
// The cache recognizes that a new question is semantically equivalent to a
// previously answered one even when worded differently: queries are reduced
// to word shingles, summarized as MinHash signatures, and indexed in banded
// LSH buckets so lookups shortlist candidates without comparing against
// every entry. Concurrent identical misses are coalesced so the expensive
// upstream computation runs exactly once.
//
// Example usage:
//
//	cache, err := semcache.New(
//	    semcache.WithTTL(30*time.Minute),
//	    semcache.WithMaxEntries(1000),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cache.Close()
//
//	match, err := cache.GetOrCompute(ctx, "how do I restart my server", "minecraft",
//	    func(ctx context.Context, query string) (string, error) {
//	        return searchBackend.Query(ctx, query)
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(match.Response)
package semcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hostpilot/semcache/internal/coalesce"
	"github.com/hostpilot/semcache/internal/codec"
	"github.com/hostpilot/semcache/internal/codec/noopcodec"
	"github.com/hostpilot/semcache/internal/codec/zstdcodec"
	"github.com/hostpilot/semcache/internal/lsh"
	"github.com/hostpilot/semcache/internal/minhash"
	"github.com/hostpilot/semcache/internal/shingle"
	"github.com/hostpilot/semcache/internal/stats"
	"github.com/hostpilot/semcache/internal/store"
)

// Sentinel errors for well-defined error conditions.
var (
	// ErrNoMatch indicates no cached response matched the query.
	ErrNoMatch = errors.New("semcache: no match")

	// ErrClosed indicates the cache has been closed.
	ErrClosed = errors.New("semcache: cache closed")

	// ErrUnknownTier indicates an unrecognized similarity tier name.
	ErrUnknownTier = errors.New("semcache: unknown similarity tier")

	// ErrInvalidTTL indicates a non-positive TTL was configured.
	ErrInvalidTTL = errors.New("semcache: ttl must be positive")

	// ErrInvalidMaxEntries indicates a non-positive capacity was configured.
	ErrInvalidMaxEntries = errors.New("semcache: max entries must be positive")
)

// DomainGeneric is the wildcard domain tag: generic entries satisfy any
// requested domain, and a generic (or empty) requested domain accepts
// entries from any domain.
const DomainGeneric = "generic"

// purgeLimit bounds the opportunistic expired-entry scan performed on each
// lookup, keeping the lookup path O(1)-ish while still reclaiming stale
// entries without a background sweep.
const purgeLimit = 32

// ComputeFunc is the expensive upstream computation run on a cache miss.
type ComputeFunc func(ctx context.Context, query string) (string, error)

// Match is a cache lookup result.
type Match struct {
	// Response is the cached or computed response text. Similar (non-exact)
	// cache hits carry a trailing match-percentage annotation.
	Response string

	// Similarity is the signature agreement fraction with the matched entry:
	// 1.0 for exact hits, 0 for freshly computed responses.
	Similarity float64

	// Exact reports whether the hit was an exact fingerprint match.
	Exact bool

	// Cached reports whether the response came from the cache rather than
	// the compute delegate.
	Cached bool

	// Domain is the domain tag of the matched entry.
	Domain string
}

// Adjustment describes the outcome of an AutoTune pass.
type Adjustment struct {
	Applied bool
	From    Tier
	To      Tier
	HitRate float64
}

// Stats is a snapshot of cache statistics.
type Stats struct {
	Entries        int
	ValidEntries   int
	ExpiredEntries int
	MaxEntries     int
	TTL            time.Duration
	Tier           Tier
	TierValue      float64

	Hits         uint64
	Misses       uint64
	Evictions    uint64
	TotalQueries uint64
	HitRate      float64 // percent

	MemoryBytes int64
	Buckets     int

	PendingComputations int
	CoalescedWaiters    int
}

// Cache is a semantic response cache. It is safe for concurrent use by
// multiple goroutines: all index and table state is guarded by one mutex,
// while coalesced upstream computations run outside it.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	logger     *zap.Logger
	collector  stats.Collector
	codec      codec.Codec
	coalescer  *coalesce.Coalescer
	now        func() time.Time
	closed     atomic.Bool

	mu      sync.Mutex
	tier    Tier
	store   *store.Store
	index   *lsh.Index
	hits    uint64
	misses  uint64
	evicted uint64
	queries uint64
}

// New creates a Cache with the given options. Invalid configuration is
// rejected synchronously with no state created.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultOptions()
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.maxEntries <= 0 {
		return nil, ErrInvalidMaxEntries
	}
	if !cfg.tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, cfg.tier)
	}

	var payloadCodec codec.Codec
	if cfg.compression {
		zc, err := zstdcodec.New()
		if err != nil {
			return nil, fmt.Errorf("creating payload codec: %w", err)
		}
		payloadCodec = zc
	} else {
		payloadCodec = noopcodec.New()
	}

	c := &Cache{
		ttl:        cfg.ttl,
		maxEntries: cfg.maxEntries,
		logger:     cfg.logger,
		collector:  cfg.stats,
		codec:      payloadCodec,
		coalescer:  coalesce.New(cfg.waitTimeout),
		now:        cfg.now,
		tier:       cfg.tier,
		store:      store.New(cfg.maxEntries, cfg.ttl),
		index:      lsh.New(),
	}

	c.logger.Debug("cache initialized",
		zap.Duration("ttl", c.ttl),
		zap.Int("maxEntries", c.maxEntries),
		zap.String("tier", c.tier.String()),
	)

	return c, nil
}

// Get returns the cached response for query, trying an exact fingerprint
// match first and falling back to the best similarity candidate at or above
// the active tier whose domain matches (or is generic). Similar hits are
// annotated with the match percentage. Returns ErrNoMatch when nothing
// qualifies.
func (c *Cache) Get(query, domain string) (*Match, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	start := time.Now()
	defer func() {
		c.collector.ObserveHistogram(stats.MetricGetSeconds, time.Since(start).Seconds())
	}()

	domain = normalizeDomain(domain)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.queries++
	c.collector.IncCounter(stats.MetricQueries, 1)
	c.purgeExpiredLocked(now)

	// Exact fingerprint fast path.
	fp := fingerprint(query, domain)
	if e, fresh := c.store.Lookup(fp, now); e != nil {
		if fresh {
			response, err := c.decode(e.Payload)
			if err != nil {
				return nil, err
			}
			e.HitCount++
			c.hits++
			c.collector.IncCounter(stats.MetricHits, 1)
			return &Match{
				Response:   response,
				Similarity: 1,
				Exact:      true,
				Cached:     true,
				Domain:     e.Domain,
			}, nil
		}
		c.removeLocked(fp)
		c.collector.IncCounter(stats.MetricExpirations, 1)
	}

	// Similarity path: shortlist via LSH, then filter candidates by exact
	// signature agreement against the active tier.
	sig := minhash.Compute(shingle.Set(query))
	var (
		bestFP  string
		bestSim float64
		best    *store.Entry
	)
	for _, candidate := range c.index.Candidates(sig) {
		e, fresh := c.store.Lookup(candidate, now)
		if e == nil {
			continue
		}
		if !fresh {
			c.removeLocked(candidate)
			c.collector.IncCounter(stats.MetricExpirations, 1)
			continue
		}
		if !domainCompatible(e.Domain, domain) {
			continue
		}

		candidateQuery, ok := c.store.Query(candidate)
		if !ok {
			continue
		}
		sim := minhash.Similarity(sig, minhash.Compute(shingle.Set(candidateQuery)))
		if sim >= c.tier.Value() && sim > bestSim {
			bestFP, bestSim, best = candidate, sim, e
		}
	}

	if best != nil {
		response, err := c.decode(best.Payload)
		if err != nil {
			return nil, err
		}
		best.HitCount++
		c.hits++
		c.collector.IncCounter(stats.MetricHits, 1)
		c.collector.IncCounter(stats.MetricSimilarHits, 1)
		c.logger.Debug("similarity hit",
			zap.String("fingerprint", bestFP),
			zap.Float64("similarity", bestSim),
		)
		return &Match{
			Response:   response + similarityNote(bestSim),
			Similarity: bestSim,
			Cached:     true,
			Domain:     best.Domain,
		}, nil
	}

	c.misses++
	c.collector.IncCounter(stats.MetricMisses, 1)
	return nil, ErrNoMatch
}

// Set caches a response for (query, domain). At capacity the coldest fifth
// of the table is evicted first; the entry table, query index and
// similarity index are updated together so no fingerprint is reachable in
// one structure but not the others.
func (c *Cache) Set(query, response, domain string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	domain = normalizeDomain(domain)
	payload, err := c.codec.Encode([]byte(response))
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fp := fingerprint(query, domain)
	victims := c.store.Put(fp, query, &store.Entry{
		Payload:   payload,
		Timestamp: c.now(),
		Domain:    domain,
	})
	for _, v := range victims {
		c.index.Remove(v.Fingerprint, minhash.Compute(shingle.Set(v.Query)))
	}
	if n := len(victims); n > 0 {
		c.evicted += uint64(n)
		c.collector.IncCounter(stats.MetricEvictions, int64(n))
	}

	// Idempotent: re-inserting the same (query, domain) maps to the same
	// signature and leaves one bucket per band.
	c.index.Add(fp, minhash.Compute(shingle.Set(query)))
	c.updateGaugesLocked()
	return nil
}

// GetOrCompute returns the cached response for (query, domain) or, on a
// miss, runs fn through the request coalescer so concurrent identical
// misses share a single upstream computation. The caller that ran fn stores
// the result; coalesced callers receive it without a redundant write.
func (c *Cache) GetOrCompute(ctx context.Context, query, domain string, fn ComputeFunc) (*Match, error) {
	match, err := c.Get(query, domain)
	if err == nil {
		return match, nil
	}
	if !errors.Is(err, ErrNoMatch) {
		return nil, err
	}

	key := coalesce.Key(query, domain)
	start := time.Now()
	response, primary, err := c.coalescer.Do(ctx, key, func(ctx context.Context) (string, error) {
		return fn(ctx, query)
	})
	if primary {
		c.collector.IncCounter(stats.MetricComputations, 1)
		c.collector.ObserveHistogram(stats.MetricComputeSeconds, time.Since(start).Seconds())
	} else {
		c.collector.IncCounter(stats.MetricCoalesced, 1)
	}
	if err != nil {
		return nil, err
	}

	if primary {
		if err := c.Set(query, response, domain); err != nil {
			// The response is still good; losing the cache write only
			// costs a future recompute.
			c.logger.Warn("storing computed response failed", zap.Error(err))
		}
	}

	return &Match{
		Response: response,
		Domain:   normalizeDomain(domain),
	}, nil
}

// SetThreshold switches the active similarity tier and rebuilds the
// similarity index from the query index. The rebuild is O(N) and blocks
// other cache operations for its duration.
func (c *Cache) SetThreshold(tier Tier) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tier = tier
	c.rebuildIndexLocked()
	c.collector.IncCounter(stats.MetricRebuilds, 1)
	c.logger.Debug("threshold changed",
		zap.String("tier", tier.String()),
		zap.Float64("value", tier.Value()),
	)
	return nil
}

// Tier returns the active similarity tier.
func (c *Cache) Tier() Tier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tier
}

// AutoTune adjusts the tier based on the observed hit rate: below 30% it
// loosens one step toward broad/loose, above 80% it tightens to strong. It
// reports the adjustment applied, if any.
func (c *Cache) AutoTune() (Adjustment, error) {
	if c.closed.Load() {
		return Adjustment{}, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	adj := Adjustment{From: c.tier, To: c.tier, HitRate: c.hitRateLocked()}

	switch {
	case adj.HitRate < 30:
		switch c.tier {
		case TierLoose:
			// Nothing looser to fall back to.
		case TierBroad:
			adj.To = TierLoose
		default:
			adj.To = TierBroad
		}
	case adj.HitRate > 80:
		if c.tier == TierBroad || c.tier == TierLoose {
			adj.To = TierStrong
		}
	}

	if adj.To != adj.From {
		adj.Applied = true
		c.tier = adj.To
		c.rebuildIndexLocked()
		c.collector.IncCounter(stats.MetricRebuilds, 1)
		c.logger.Info("auto-tuned similarity tier",
			zap.String("from", adj.From.String()),
			zap.String("to", adj.To.String()),
			zap.Float64("hitRate", adj.HitRate),
		)
	}
	return adj, nil
}

// Clear empties the cache and resets statistics.
func (c *Cache) Clear() error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Clear()
	c.index = lsh.New()
	c.hits, c.misses, c.evicted, c.queries = 0, 0, 0, 0
	c.updateGaugesLocked()
	return nil
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entries := c.store.Len()
	valid := c.store.ValidLen(now)

	return Stats{
		Entries:        entries,
		ValidEntries:   valid,
		ExpiredEntries: entries - valid,
		MaxEntries:     c.maxEntries,
		TTL:            c.ttl,
		Tier:           c.tier,
		TierValue:      c.tier.Value(),

		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evicted,
		TotalQueries: c.queries,
		HitRate:      c.hitRateLocked(),

		MemoryBytes: c.store.MemoryBytes(),
		Buckets:     c.index.Buckets(),

		PendingComputations: c.coalescer.Pending(),
		CoalescedWaiters:    c.coalescer.Waiters(),
	}
}

// Close marks the cache closed and drains coalesced waiters. After Close,
// all operations return ErrClosed.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.coalescer.Drain()
	return nil
}

// purgeExpiredLocked runs the bounded lazy-expiry pass, keeping the
// similarity index in lockstep with the entry table.
func (c *Cache) purgeExpiredLocked(now time.Time) {
	victims := c.store.PurgeExpired(now, purgeLimit)
	for _, v := range victims {
		c.index.Remove(v.Fingerprint, minhash.Compute(shingle.Set(v.Query)))
	}
	if n := len(victims); n > 0 {
		c.collector.IncCounter(stats.MetricExpirations, int64(n))
		c.updateGaugesLocked()
	}
}

// removeLocked deletes fp from the entry table, query index and similarity
// index together.
func (c *Cache) removeLocked(fp string) {
	if q, ok := c.store.Query(fp); ok {
		c.index.Remove(fp, minhash.Compute(shingle.Set(q)))
	}
	c.store.Remove(fp)
}

// rebuildIndexLocked recomputes every stored query's signature and
// reinserts it into a fresh index.
func (c *Cache) rebuildIndexLocked() {
	idx := lsh.New()
	c.store.Range(func(fp, query string) {
		idx.Add(fp, minhash.Compute(shingle.Set(query)))
	})
	c.index = idx
}

func (c *Cache) hitRateLocked() float64 {
	total := c.queries
	if total == 0 {
		total = 1
	}
	return float64(c.hits) / float64(total) * 100
}

func (c *Cache) updateGaugesLocked() {
	c.collector.SetGauge(stats.MetricEntries, int64(c.store.Len()))
	c.collector.SetGauge(stats.MetricBuckets, int64(c.index.Buckets()))
}

func (c *Cache) decode(payload []byte) (string, error) {
	data, err := c.codec.Decode(payload)
	if err != nil {
		return "", fmt.Errorf("decoding cached response: %w", err)
	}
	return string(data), nil
}

// fingerprint hashes the normalized query plus its domain tag into the
// exact-match cache key.
func fingerprint(query, domain string) string {
	sum := sha256.Sum256([]byte(shingle.Normalize(query) + "|" + domain))
	return hex.EncodeToString(sum[:])
}

func normalizeDomain(domain string) string {
	if domain == "" {
		return DomainGeneric
	}
	return domain
}

// domainCompatible reports whether an entry tagged entryDomain can satisfy
// a request for domain. Generic works as a wildcard on both sides; whether
// the entry-side fallback is intended product behavior is an open product
// question, preserved as-is.
func domainCompatible(entryDomain, domain string) bool {
	return domain == DomainGeneric || entryDomain == domain || entryDomain == DomainGeneric
}

// similarityNote annotates a similar hit with its match percentage.
func similarityNote(sim float64) string {
	return fmt.Sprintf("\n\n*[Similar query found in cache - %.1f%% match]*", sim*100)
}
