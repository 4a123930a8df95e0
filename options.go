package semcache

import (
	"time"

	"go.uber.org/zap"

	"github.com/hostpilot/semcache/internal/coalesce"
	"github.com/hostpilot/semcache/internal/stats"
)

// Defaults used when the corresponding option is not supplied.
const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 1000
	DefaultTier       = TierStrong
)

// Option configures a Cache.
type Option interface {
	apply(*options)
}

// options holds the cache configuration.
type options struct {
	ttl         time.Duration
	maxEntries  int
	tier        Tier
	waitTimeout time.Duration
	compression bool
	stats       stats.Collector
	logger      *zap.Logger
	now         func() time.Time
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		ttl:         DefaultTTL,
		maxEntries:  DefaultMaxEntries,
		tier:        DefaultTier,
		waitTimeout: coalesce.DefaultWaitTimeout,
		compression: true,
		stats:       stats.NewNoop(),
		logger:      zap.NewNop(),
		now:         time.Now,
	}
}

// optionFunc wraps a function to implement Option.
type optionFunc func(*options)

// Compile-time check that optionFunc implements Option.
var _ Option = optionFunc(nil)

func (f optionFunc) apply(o *options) { f(o) }

// WithTTL sets the entry time-to-live.
// Default is 30 minutes. Must be positive.
func WithTTL(ttl time.Duration) Option {
	return optionFunc(func(o *options) {
		o.ttl = ttl
	})
}

// WithMaxEntries sets the maximum number of cached entries.
// Default is 1000. Must be positive.
func WithMaxEntries(n int) Option {
	return optionFunc(func(o *options) {
		o.maxEntries = n
	})
}

// WithTier sets the initial similarity tier.
// Default is TierStrong.
func WithTier(t Tier) Option {
	return optionFunc(func(o *options) {
		o.tier = t
	})
}

// WithWaitTimeout bounds how long a coalesced caller waits for an in-flight
// computation. Default is 30 seconds.
func WithWaitTimeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.waitTimeout = d
	})
}

// WithCompression toggles zstd compression of cached responses.
// Enabled by default.
func WithCompression(enabled bool) Option {
	return optionFunc(func(o *options) {
		o.compression = enabled
	})
}

// WithStats sets the stats collector.
// If not set, a no-op collector is used.
func WithStats(c stats.Collector) Option {
	return optionFunc(func(o *options) {
		o.stats = c
	})
}

// WithLogger sets the logger.
// If not set, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithClock overrides the time source. Intended for tests that exercise TTL
// expiry deterministically.
func WithClock(now func() time.Time) Option {
	return optionFunc(func(o *options) {
		o.now = now
	})
}
