package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags.
	ttl        time.Duration
	maxEntries int
	threshold  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "semcache",
	Short: "Semantic response cache for game-server support queries",
	Long: `Semcache caches assistant responses keyed by query meaning rather than
exact text, so reworded questions reuse earlier answers.

Examples:
  # Run the admin API and metrics endpoint
  semcache serve --addr :8080

  # Replay a synthetic reworded-question workload and report hit rates
  semcache simulate --queries 2000

  # Loosen matching for a high-miss workload
  semcache serve --threshold broad`,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&ttl, "ttl", 30*time.Minute, "entry time-to-live")
	rootCmd.PersistentFlags().IntVar(&maxEntries, "max-entries", 1000, "maximum cached entries before eviction")
	rootCmd.PersistentFlags().StringVar(&threshold, "threshold", "strong", "similarity tier (exact, strong, broad, loose)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}
