// Package semcachefx provides an fx module for a semantic response cache
// with logger-backed stats. Useful for wiring the cache into fx applications.
package semcachefx

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hostpilot/semcache"
	"github.com/hostpilot/semcache/internal/stats"
	"github.com/hostpilot/semcache/internal/stats/logger"
)

// Config controls the provided cache. The zero value uses the cache defaults.
type Config struct {
	TTL                time.Duration
	MaxEntries         int
	Tier               semcache.Tier
	WaitTimeout        time.Duration
	DisableCompression bool
}

// Module provides a *semcache.Cache with a logger-backed stats collector.
// Requires a *zap.Logger and a Config to be provided.
var Module = fx.Module("semcache",
	fx.Provide(
		newStatsCollector,
		newCache,
	),
)

func newStatsCollector(log *zap.Logger) stats.Collector {
	return logger.New(log.Named("semcache.stats"))
}

// Params holds dependencies for creating the cache.
type Params struct {
	fx.In

	Config    Config
	Logger    *zap.Logger
	Collector stats.Collector
	Lifecycle fx.Lifecycle
}

func newCache(p Params) (*semcache.Cache, error) {
	opts := []semcache.Option{
		semcache.WithStats(p.Collector),
		semcache.WithLogger(p.Logger.Named("semcache")),
		semcache.WithCompression(!p.Config.DisableCompression),
	}
	if p.Config.TTL > 0 {
		opts = append(opts, semcache.WithTTL(p.Config.TTL))
	}
	if p.Config.MaxEntries > 0 {
		opts = append(opts, semcache.WithMaxEntries(p.Config.MaxEntries))
	}
	if p.Config.Tier != "" {
		opts = append(opts, semcache.WithTier(p.Config.Tier))
	}
	if p.Config.WaitTimeout > 0 {
		opts = append(opts, semcache.WithWaitTimeout(p.Config.WaitTimeout))
	}

	cache, err := semcache.New(opts...)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return cache.Close()
		},
	})

	return cache, nil
}
