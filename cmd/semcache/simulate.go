package main

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/hostpilot/semcache"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a synthetic reworded-question workload",
	Long: `Run a synthetic workload of game-server support questions against an
in-process cache with a stubbed upstream, then report hit rates and
latency percentiles.

Each query is drawn from a pool of canonical questions and their
rewordings, so repeated runs exercise both exact and similarity matching.

Examples:
  # Default workload
  semcache simulate

  # Larger run with a slower simulated upstream
  semcache simulate --queries 5000 --compute-delay 20ms`,
	RunE: runSimulate,
}

var (
	simQueries      int
	simSeed         int64
	simComputeDelay time.Duration
)

func init() {
	simulateCmd.Flags().IntVar(&simQueries, "queries", 1000, "number of queries to replay")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "random seed for the workload")
	simulateCmd.Flags().DurationVar(&simComputeDelay, "compute-delay", 5*time.Millisecond, "simulated upstream latency per miss")
	rootCmd.AddCommand(simulateCmd)
}

// workload holds one canonical question, its rewordings, and a canned answer.
type workload struct {
	domain   string
	phrasing []string
	answer   string
}

var workloads = []workload{
	{
		domain: "minecraft",
		phrasing: []string{
			"how do I allocate more RAM to my minecraft server",
			"how can I give my minecraft server more RAM",
			"what is the way to allocate extra RAM for a minecraft server",
		},
		answer: "Edit the start script and raise the -Xmx flag, e.g. -Xmx4G for 4 GB.",
	},
	{
		domain: "minecraft",
		phrasing: []string{
			"why does my minecraft server keep crashing on startup",
			"my minecraft server crashes when it starts, why",
			"minecraft server crashing during startup, what causes that",
		},
		answer: "Check latest.log for the stack trace; mismatched mod versions and low heap are the usual causes.",
	},
	{
		domain: "valheim",
		phrasing: []string{
			"how do I set a password on my valheim server",
			"how can I password protect a valheim server",
			"setting a server password for valheim",
		},
		answer: "Pass -password <secret> in the launch arguments; it must be at least five characters.",
	},
	{
		domain: "rust",
		phrasing: []string{
			"how often should I wipe my rust server",
			"what is a good wipe schedule for a rust server",
			"recommended wipe frequency for rust servers",
		},
		answer: "Most communities wipe map weekly or biweekly and blueprints monthly, aligned with forced wipes.",
	},
	{
		domain: "",
		phrasing: []string{
			"how do I open ports for my game server",
			"how can I forward ports to my game server",
			"what ports do I need to open for a game server",
		},
		answer: "Forward the game's listen port (TCP/UDP per the game's docs) on your router to the host's LAN address.",
	},
	{
		domain: "",
		phrasing: []string{
			"how do I schedule automatic backups for my server",
			"can I set up automatic server backups on a schedule",
			"automating periodic backups of a game server",
		},
		answer: "Use the panel's backup scheduler or a cron job that snapshots the world directory to offsite storage.",
	},
}

func runSimulate(cmd *cobra.Command, args []string) error {
	tier, err := semcache.ParseTier(threshold)
	if err != nil {
		return err
	}

	cache, err := semcache.New(
		semcache.WithTTL(ttl),
		semcache.WithMaxEntries(maxEntries),
		semcache.WithTier(tier),
	)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}
	defer cache.Close()

	rng := rand.New(rand.NewSource(simSeed))
	ctx := context.Background()

	latencies := make([]float64, 0, simQueries)
	var cached int

	start := time.Now()
	for i := 0; i < simQueries; i++ {
		w := workloads[rng.Intn(len(workloads))]
		query := w.phrasing[rng.Intn(len(w.phrasing))]
		answer := w.answer

		qStart := time.Now()
		match, err := cache.GetOrCompute(ctx, query, w.domain, func(ctx context.Context, q string) (string, error) {
			time.Sleep(simComputeDelay)
			return answer, nil
		})
		if err != nil {
			return fmt.Errorf("query %d failed: %w", i, err)
		}
		latencies = append(latencies, float64(time.Since(qStart).Microseconds())/1000)

		if match.Cached {
			cached++
		}
	}
	elapsed := time.Since(start)

	printReport(cache.Stats(), latencies, cached, elapsed)
	return nil
}

func printReport(s semcache.Stats, latencies []float64, cached int, elapsed time.Duration) {
	sort.Float64s(latencies)
	n := len(latencies)

	fmt.Printf("Queries:       %d in %s (%.0f/s)\n", n, elapsed.Round(time.Millisecond), float64(n)/elapsed.Seconds())
	fmt.Printf("Served cached: %d (%.1f%%)\n", cached, percent(cached, n))
	fmt.Printf("Hit rate:      %.1f%% (threshold: %s)\n", s.HitRate, s.Tier)
	fmt.Printf("Entries:       %d / %d (evictions: %d)\n", s.Entries, s.MaxEntries, s.Evictions)
	fmt.Println()
	fmt.Println("Latency (ms):")
	fmt.Printf("  mean: %.3f\n", stat.Mean(latencies, nil))
	fmt.Printf("  p50:  %.3f\n", stat.Quantile(0.50, stat.Empirical, latencies, nil))
	fmt.Printf("  p95:  %.3f\n", stat.Quantile(0.95, stat.Empirical, latencies, nil))
	fmt.Printf("  p99:  %.3f\n", stat.Quantile(0.99, stat.Empirical, latencies, nil))
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
