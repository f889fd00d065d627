package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches      int64            `json:"total_searches"`
	SearchesByScope    map[string]int64 `json:"searches_by_scope"`
	TotalUploads       int64            `json:"total_uploads"`
	TotalBasesUploaded int64            `json:"total_bases_uploaded"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	ZeroMatchCount     int64            `json:"zero_match_count"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	P50LatencyMs       int64            `json:"p50_latency_ms"`
	P95LatencyMs       int64            `json:"p95_latency_ms"`
	P99LatencyMs       int64            `json:"p99_latency_ms"`
	TopQueries         []QueryCount     `json:"top_queries"`
	TopRegions         []QueryCount     `json:"top_regions"`
	ZeroMatchQueries   []QueryCount     `json:"zero_match_queries"`
	QueriesPerMinute   float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of the events it is handed.
type Aggregator struct {
	mu               sync.RWMutex
	totalSearches    int64
	searchesByScope  map[string]int64
	totalUploads     int64
	basesUploaded    int64
	cacheHits        int64
	cacheMisses      int64
	zeroMatches      int64
	latencies        []int64
	latencyNext      int
	queryCounts      map[string]int64
	regionCounts     map[string]int64
	zeroMatchQueries map[string]int64
	startTime        time.Time
	logger           *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		searchesByScope:  make(map[string]int64),
		latencies:        make([]int64, 0, 1024),
		queryCounts:      make(map[string]int64),
		regionCounts:     make(map[string]int64),
		zeroMatchQueries: make(map[string]int64),
		startTime:        time.Now(),
		logger:           slog.Default().With("component", "analytics-aggregator"),
	}
}

// Handle is a kafka.MessageHandler. Undecodable messages are logged and
// skipped so they do not block the partition.
func (a *Aggregator) Handle(ctx context.Context, key, value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		a.logger.Error("failed to decode analytics event", "error", err)
		return nil
	}
	switch env.Type {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			a.logger.Error("failed to decode search event", "error", err)
			return nil
		}
		a.RecordSearch(event)
	case EventUpload:
		event, err := kafka.DecodeJSON[UploadEvent](value)
		if err != nil {
			a.logger.Error("failed to decode upload event", "error", err)
			return nil
		}
		a.RecordUpload(event)
	default:
		a.logger.Warn("unknown analytics event type", "type", env.Type)
	}
	return nil
}

// Track records an event directly, for processes that aggregate in memory
// without Kafka. It has the same signature as Collector.Track.
func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.RecordSearch(e)
	case UploadEvent:
		a.RecordUpload(e)
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	a.searchesByScope[event.Scope]++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	a.queryCounts[event.Query]++
	if event.Region != "" {
		a.regionCounts[event.Region]++
	}
	if event.Matches() == 0 {
		a.zeroMatches++
		a.zeroMatchQueries[event.Query]++
	}
}

func (a *Aggregator) RecordUpload(event UploadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalUploads++
	a.basesUploaded += int64(event.TotalBases)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:      a.totalSearches,
		SearchesByScope:    make(map[string]int64, len(a.searchesByScope)),
		TotalUploads:       a.totalUploads,
		TotalBasesUploaded: a.basesUploaded,
		CacheHits:          a.cacheHits,
		CacheMisses:        a.cacheMisses,
		ZeroMatchCount:     a.zeroMatches,
	}
	for scope, n := range a.searchesByScope {
		stats.SearchesByScope[scope] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopRegions = topN(a.regionCounts, 10)
	stats.ZeroMatchQueries = topN(a.zeroMatchQueries, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by key.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
