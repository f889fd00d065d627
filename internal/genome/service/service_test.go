package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/cache"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/metrics"
)

type memStore struct {
	mu      sync.Mutex
	genomes []genome.Genome
	getErr  error
	gets    int
}

func (m *memStore) Put(ctx context.Context, name, body string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.genomes {
		if g.FileName == name {
			return 0, fmt.Errorf("%w: %s", apperrors.ErrGenomeExists, name)
		}
	}
	id := int64(len(m.genomes) + 1)
	m.genomes = append(m.genomes, genome.Genome{ID: id, FileName: name, Body: body, CreatedAt: time.Now()})
	return id, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (*genome.Genome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, g := range m.genomes {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", apperrors.ErrGenomeNotFound, id)
}

func (m *memStore) List(ctx context.Context) ([]genome.Genome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]genome.Genome(nil), m.genomes...), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (b *memBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	b.data = make(map[string][]byte)
	return n, nil
}

var testConfig = Config{
	Limits:               validator.Limits{MaxFileNameLength: 100, MaxBodyBytes: 1 << 20},
	MaxQueryLength:       50,
	MaxConcurrentGenomes: 2,
	SearchTimeout:        5 * time.Second,
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	st := &memStore{}
	return New(testConfig, Deps{Store: st}), st
}

func mustUpload(t *testing.T, svc *Service, name, body string) int64 {
	t.Helper()
	resp, err := svc.Upload(context.Background(), name, body)
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return resp.ID
}

func TestUploadAndSummary(t *testing.T) {
	svc, _ := newTestService(t)
	id := mustUpload(t, svc, "a.fa", ">chr1 main\nACGTACGT\nAC\n>chr2\nGG\n")

	summary, err := svc.Summary(context.Background(), id)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	data, _ := json.Marshal(summary)
	if string(data) != `{"chr1":"10 bp","chr2":"2 bp"}` {
		t.Errorf("summary = %s", data)
	}
}

func TestUploadErrors(t *testing.T) {
	svc, _ := newTestService(t)
	mustUpload(t, svc, "a.fa", ">chr1\nA\n")

	if _, err := svc.Upload(context.Background(), "a.fa", ">chr1\nC\n"); !errors.Is(err, apperrors.ErrGenomeExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if _, err := svc.Upload(context.Background(), "b.fa", "no header here"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("invalid body err = %v", err)
	}
}

func TestUploadPublishesEventAndTracks(t *testing.T) {
	pub := &recordingPublisher{}
	agg := analytics.NewAggregator()
	m := metrics.New(prometheus.NewRegistry())
	svc := New(testConfig, Deps{Store: &memStore{}, Events: pub, Tracker: agg, Metrics: m})

	id := mustUpload(t, svc, "a.fa", ">chr1\nACGT\n>chr2\nAA\n")

	if len(pub.events) != 1 {
		t.Fatalf("published %d events", len(pub.events))
	}
	ev, ok := pub.events[0].Value.(genome.UploadedEvent)
	if !ok || ev.GenomeID != id || ev.Regions != 2 || ev.TotalBases != 6 {
		t.Errorf("event = %+v", pub.events[0].Value)
	}
	if pub.events[0].Key != fmt.Sprint(id) {
		t.Errorf("key = %q", pub.events[0].Key)
	}
	if agg.Stats().TotalUploads != 1 {
		t.Error("upload not tracked")
	}
	if testutil.ToFloat64(m.GenomeUploadsTotal.WithLabelValues("ok")) != 1 {
		t.Error("upload counter not incremented")
	}
	if testutil.ToFloat64(m.GenomeBasesUploaded) != 6 {
		t.Error("bases counter wrong")
	}
}

func TestSubsequence(t *testing.T) {
	svc, _ := newTestService(t)
	id := mustUpload(t, svc, "a.fa", ">chr1\nACGTACGTAC\n")
	ctx := context.Background()

	got, err := svc.Subsequence(ctx, id, "chr1", 2, 5)
	if err != nil || got != "GTAC" {
		t.Errorf("Subsequence = %q, %v", got, err)
	}
	got, err = svc.Subsequence(ctx, id, "chr1", 8, 100)
	if err != nil || got != "AC" {
		t.Errorf("clamped Subsequence = %q, %v", got, err)
	}

	tests := []struct {
		region     string
		start, end int
		want       error
	}{
		{"chr1", 5, 2, apperrors.ErrInvalidInput},
		{"chr1", -1, 2, apperrors.ErrInvalidInput},
		{"", 0, 2, apperrors.ErrInvalidInput},
		{"chrX", 0, 2, apperrors.ErrRegionNotFound},
	}
	for _, tt := range tests {
		if _, err := svc.Subsequence(ctx, id, tt.region, tt.start, tt.end); !errors.Is(err, tt.want) {
			t.Errorf("Subsequence(%q,%d,%d) err = %v, want %v", tt.region, tt.start, tt.end, err, tt.want)
		}
	}
	if _, err := svc.Subsequence(ctx, 99, "chr1", 0, 1); !errors.Is(err, apperrors.ErrGenomeNotFound) {
		t.Errorf("missing genome err = %v", err)
	}
}

func TestSearchGenome(t *testing.T) {
	svc, _ := newTestService(t)
	id := mustUpload(t, svc, "a.fa", ">chr1\nACGTACGT\n>chr2\nTTTT\n")

	res, err := svc.SearchGenome(context.Background(), id, "acgt")
	if err != nil {
		t.Fatalf("SearchGenome: %v", err)
	}
	if got := res.Keys(); len(got) != 2 || got[0] != "chr1" || got[1] != "chr2" {
		t.Fatalf("keys = %v", got)
	}
	chr1, _ := res.Get("chr1")
	if len(chr1.ForwardMatches) != 2 || len(chr1.ReverseMatches) != 2 {
		t.Errorf("chr1 = %+v", chr1)
	}
	chr2, _ := res.Get("chr2")
	if len(chr2.ForwardMatches) != 0 || chr2.ReverseMatches == nil {
		t.Errorf("chr2 = %+v", chr2)
	}
}

func TestSearchQueryValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SearchGenome(ctx, 1, ""); !errors.Is(err, apperrors.ErrInvalidQuery) {
		t.Errorf("empty query err = %v", err)
	}
	long := make([]byte, testConfig.MaxQueryLength+1)
	for i := range long {
		long[i] = 'A'
	}
	if _, err := svc.SearchRegion(ctx, "chr1", string(long)); !errors.Is(err, apperrors.ErrInvalidQuery) {
		t.Errorf("long query err = %v", err)
	}
	if _, err := svc.SearchRegion(ctx, "", "ACGT"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("missing region err = %v", err)
	}
	if st.gets != 0 {
		t.Error("store touched for invalid query")
	}
}

func TestSearchRegion(t *testing.T) {
	svc, _ := newTestService(t)
	first := mustUpload(t, svc, "a.fa", ">chr1\nAAAA\n")
	mustUpload(t, svc, "b.fa", ">chr2\nAAAA\n")
	third := mustUpload(t, svc, "c.fa", ">chr1\nCTTT\n>chr2\nA\n")

	res, err := svc.SearchRegion(context.Background(), "chr1", "AA")
	if err != nil {
		t.Fatalf("SearchRegion: %v", err)
	}
	keys := res.Keys()
	want := []string{fmt.Sprintf("genome_id_%d", first), fmt.Sprintf("genome_id_%d", third)}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	a, _ := res.Get(want[0])
	if len(a.ForwardMatches) != 3 {
		t.Errorf("forward = %v", a.ForwardMatches)
	}
	c, _ := res.Get(want[1])
	if len(c.ReverseMatches) != 2 || len(c.ForwardMatches) != 0 {
		t.Errorf("genome %d = %+v", third, c)
	}

	if _, err := svc.SearchRegion(context.Background(), "chrY", "AA"); !errors.Is(err, apperrors.ErrRegionNotFound) {
		t.Errorf("unknown region err = %v", err)
	}
}

func TestSearchGenomeUsesCache(t *testing.T) {
	st := &memStore{}
	m := metrics.New(prometheus.NewRegistry())
	rc := cache.New(&memBackend{data: make(map[string][]byte)}, time.Minute, m)
	svc := New(testConfig, Deps{Store: st, Cache: rc, Metrics: m})
	id := mustUpload(t, svc, "a.fa", ">z\nACGT\n>a\nCG\n")

	first, err := svc.SearchGenome(context.Background(), id, "CG")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.SearchGenome(context.Background(), id, "cg")
	if err != nil {
		t.Fatal(err)
	}
	if st.gets != 1 {
		t.Errorf("store gets = %d, want 1", st.gets)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("cached result differs:\n%s\n%s", a, b)
	}
	if got := testutil.ToFloat64(m.SearchesTotal.WithLabelValues("genome", "hit")); got != 2 {
		t.Errorf("searches counter = %v, want 2", got)
	}
}

func TestBreakerOpensOnStoreFailures(t *testing.T) {
	st := &memStore{getErr: errors.New("connection reset")}
	svc := New(testConfig, Deps{Store: st})
	ctx := context.Background()

	for range 5 {
		svc.Summary(ctx, 1)
	}
	_, err := svc.Summary(ctx, 1)
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if st.gets != 5 {
		t.Errorf("store gets = %d, want 5", st.gets)
	}
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	for range 10 {
		if _, err := svc.Summary(context.Background(), 42); !errors.Is(err, apperrors.ErrGenomeNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
}

func TestUploadRefreshesCrossGenomeResults(t *testing.T) {
	st := &memStore{}
	rc := cache.New(&memBackend{data: make(map[string][]byte)}, time.Minute, nil)
	svc := New(testConfig, Deps{Store: st, Cache: rc})
	ctx := context.Background()

	mustUpload(t, svc, "a.fa", ">chr1\nAAAA\n")
	before, err := svc.SearchRegion(ctx, "chr1", "AA")
	if err != nil {
		t.Fatal(err)
	}
	mustUpload(t, svc, "b.fa", ">chr1\nCCAA\n")
	after, err := svc.SearchRegion(ctx, "chr1", "AA")
	if err != nil {
		t.Fatal(err)
	}
	if before.Len() != 1 || after.Len() != 2 {
		t.Errorf("genomes searched before=%d after=%d, want 1 and 2", before.Len(), after.Len())
	}
}
