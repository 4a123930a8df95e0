package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hostpilot/semcache"
	"github.com/hostpilot/semcache/adminapi"
	statsprom "github.com/hostpilot/semcache/internal/stats/prometheus"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache admin API and metrics endpoint",
	Long: `Start an HTTP server exposing the cache administration API under
/api/cache and Prometheus metrics under /metrics.

Flags override values from the config file.

Examples:
  # Defaults on :8080
  semcache serve

  # Load settings from a file
  semcache serve --config semcache.yaml

  # Looser matching, bigger cache
  semcache serve --threshold broad --max-entries 5000`,
	RunE: runServe,
}

var (
	serveAddr  string
	configPath string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config file)")
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	tier, err := semcache.ParseTier(cfg.Threshold)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	cache, err := semcache.New(
		semcache.WithTTL(cfg.TTL),
		semcache.WithMaxEntries(cfg.MaxEntries),
		semcache.WithTier(tier),
		semcache.WithWaitTimeout(cfg.WaitTimeout),
		semcache.WithCompression(cfg.Compression),
		semcache.WithStats(statsprom.New(registry)),
		semcache.WithLogger(logger.Named("semcache")),
	)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	defer cache.Close()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	adminapi.New(cache, logger.Named("adminapi")).Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving cache admin api",
			zap.String("addr", cfg.Addr),
			zap.String("threshold", cfg.Threshold),
			zap.Int("max_entries", cfg.MaxEntries),
			zap.Duration("ttl", cfg.TTL),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// applyFlagOverrides lets explicitly set flags win over config file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *Config) {
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	if cmd.Flags().Changed("ttl") {
		cfg.TTL = ttl
	}
	if cmd.Flags().Changed("max-entries") {
		cfg.MaxEntries = maxEntries
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Threshold = threshold
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
