package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
)

func TestAggregatorHandleRoutesByType(t *testing.T) {
	agg := NewAggregator()
	ctx := context.Background()

	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Scope: ScopeAll, Query: "ACGT", Region: "chr1", ForwardMatches: 2, LatencyMs: 12})
	zero, _ := json.Marshal(SearchEvent{Type: EventSearch, Scope: ScopeGenome, Query: "TTTT", CacheHit: true, LatencyMs: 3})
	upload, _ := json.Marshal(UploadEvent{Type: EventUpload, GenomeID: 1, TotalBases: 500})

	for _, msg := range [][]byte{search, zero, upload, []byte("not json"), []byte(`{"type":"other"}`)} {
		if err := agg.Handle(ctx, nil, msg); err != nil {
			t.Fatalf("Handle returned %v", err)
		}
	}

	stats := agg.Stats()
	if stats.TotalSearches != 2 {
		t.Errorf("TotalSearches = %d, want 2", stats.TotalSearches)
	}
	if stats.TotalUploads != 1 || stats.TotalBasesUploaded != 500 {
		t.Errorf("uploads = %d / %d bases", stats.TotalUploads, stats.TotalBasesUploaded)
	}
	if stats.CacheHits != 1 || stats.CacheMisses != 1 {
		t.Errorf("cache hits/misses = %d/%d", stats.CacheHits, stats.CacheMisses)
	}
	if stats.ZeroMatchCount != 1 || len(stats.ZeroMatchQueries) != 1 || stats.ZeroMatchQueries[0].Query != "TTTT" {
		t.Errorf("zero matches = %d %v", stats.ZeroMatchCount, stats.ZeroMatchQueries)
	}
	if stats.SearchesByScope[ScopeAll] != 1 || stats.SearchesByScope[ScopeGenome] != 1 {
		t.Errorf("by scope = %v", stats.SearchesByScope)
	}
	if len(stats.TopRegions) != 1 || stats.TopRegions[0].Query != "chr1" {
		t.Errorf("top regions = %v", stats.TopRegions)
	}
	if stats.P99LatencyMs != 12 {
		t.Errorf("p99 = %d, want 12", stats.P99LatencyMs)
	}
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := range maxLatencySamples + 50 {
		agg.RecordSearch(SearchEvent{Query: "A", LatencyMs: int64(i)})
	}
	if len(agg.latencies) != maxLatencySamples {
		t.Errorf("latency samples = %d, want %d", len(agg.latencies), maxLatencySamples)
	}
}

func TestTopNOrdering(t *testing.T) {
	got := topN(map[string]int64{"b": 2, "a": 2, "c": 5, "d": 1}, 3)
	want := []QueryCount{{"c", 5}, {"a", 2}, {"b", 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topN[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (f *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "ACGT"})
	c.Track(UploadEvent{Type: EventUpload, GenomeID: 7})
	c.Close()

	if pub.count() != 2 {
		t.Fatalf("published %d events, want 2", pub.count())
	}
	if pub.events[0].Key != string(EventSearch) || pub.events[1].Key != string(EventUpload) {
		t.Errorf("keys = %q, %q", pub.events[0].Key, pub.events[1].Key)
	}
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.flushInterval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Track(SearchEvent{Type: EventSearch})
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Errorf("published %d events, want 1", pub.count())
	}
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, 1)
	c.Track(SearchEvent{})
	c.Track(SearchEvent{})
	if len(c.eventCh) != 1 {
		t.Errorf("buffered = %d, want 1", len(c.eventCh))
	}
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Track(SearchEvent{Scope: ScopeGenome, Query: "GATTACA", ForwardMatches: 1})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalSearches != 1 || stats.TopQueries[0].Query != "GATTACA" {
		t.Errorf("stats = %+v", stats)
	}
}
