package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var defaultBenchQueries = []string{
	"GATTACA",
	"ACGT",
	"TTAGGG",
	"GAATTC",
	"CCCGGG",
	"AAGCTT",
	"TATAAA",
	"ATGAAA",
}

type benchConfig struct {
	baseURL     string
	genomeID    int64
	region      string
	concurrency int
	duration    time.Duration
	queries     []string
}

// benchStats is shared by all workers.
type benchStats struct {
	total    atomic.Int64
	success  atomic.Int64
	failures atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newBenchStats() *benchStats {
	return &benchStats{
		latencies: make([]time.Duration, 0, 10000),
		codes:     make(map[int]int64),
	}
}

func (s *benchStats) record(d time.Duration, status int, err error) {
	s.total.Add(1)
	if err != nil {
		s.failures.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func newBenchCommand() *cobra.Command {
	cfg := benchConfig{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive search load against a running genome API",
		Long: `Send genome searches from concurrent workers for a fixed duration and
report throughput, latency percentiles and status codes. Each worker
alternates between /genome_search/{id} and, when --region is set,
/genome_regions.`,
		Example: "  genomectl bench --genome 1 --region chr1 --concurrency 20 --duration 1m",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.concurrency <= 0 {
				return fmt.Errorf("concurrency must be positive, got %d", cfg.concurrency)
			}
			if len(cfg.queries) == 0 {
				return fmt.Errorf("at least one --seq is required")
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target %s, %d workers for %s, %d queries\n",
				cfg.baseURL, cfg.concurrency, cfg.duration, len(cfg.queries))

			stats, err := runBench(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printBenchReport(out, stats, cfg.duration)
			if stats.total.Load() == 0 {
				return fmt.Errorf("no requests completed, is the service running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the genome API")
	cmd.Flags().Int64Var(&cfg.genomeID, "genome", 1, "genome id for single-genome searches")
	cmd.Flags().StringVar(&cfg.region, "region", "", "region for cross-genome searches (skipped when empty)")
	cmd.Flags().IntVar(&cfg.concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&cfg.duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().StringSliceVar(&cfg.queries, "seq", defaultBenchQueries, "query sequences to cycle through")
	return cmd
}

func runBench(ctx context.Context, cfg benchConfig) (*benchStats, error) {
	stats := newBenchStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.concurrency * 2,
			MaxIdleConnsPerHost: cfg.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range cfg.concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				target := benchURL(cfg, i)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					return fmt.Errorf("building request %s: %w", target, err)
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats.record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// benchURL picks the i-th request of a worker.
func benchURL(cfg benchConfig, i int) string {
	query := url.QueryEscape(cfg.queries[i%len(cfg.queries)])
	if cfg.region != "" && i%2 == 1 {
		return fmt.Sprintf("%s/genome_regions?seq=%s&region=%s", cfg.baseURL, query, url.QueryEscape(cfg.region))
	}
	return fmt.Sprintf("%s/genome_search/%d?seq=%s", cfg.baseURL, cfg.genomeID, query)
}

func printBenchReport(w io.Writer, stats *benchStats, duration time.Duration) {
	total := stats.total.Load()
	failures := stats.failures.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", stats.success.Load())
	fmt.Fprintf(w, "Errors:          %d\n", failures)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(failures)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := slices.Clone(stats.latencies)
	codes := make([]int, 0, len(stats.codes))
	for code := range stats.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.codes))
	for code, n := range stats.codes {
		counts[code] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Fprintf(w, "P50:    %s\n", latencyPercentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", latencyPercentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", latencyPercentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	slices.Sort(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}
}

func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
