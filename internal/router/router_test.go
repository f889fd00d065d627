package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/handler"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/service"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/validator"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/metrics"
)

type memStore struct {
	mu      sync.Mutex
	genomes []genome.Genome
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
	m.genomes = append(m.genomes, genome.Genome{ID: id, FileName: name, Body: body})
	return id, nil
}

func (m *memStore) Get(ctx context.Context, id int64) (*genome.Genome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{RequestTimeout: 5 * time.Second},
		RateLimit: config.RateLimitConfig{Enabled: false},
		CORS:      config.CORSConfig{AllowOrigins: []string{"*"}},
	}
	if mutate != nil {
		mutate(cfg)
	}

	m := metrics.New(prometheus.NewRegistry())
	agg := analytics.NewAggregator()
	svc := service.New(service.Config{
		Limits:               validator.Limits{MaxFileNameLength: 100, MaxBodyBytes: 1 << 20},
		MaxQueryLength:       1000,
		MaxConcurrentGenomes: 2,
		SearchTimeout:        time.Second,
	}, service.Deps{Store: &memStore{}, Tracker: agg, Metrics: m})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := New(cfg, Deps{
		Genomes:   handler.New(svc, nil, 1<<20),
		Analytics: analytics.NewHandler(agg),
		Health:    health.NewChecker(),
		Metrics:   m,
		Limiter:   ratelimit.New(ctx, cfg.RateLimit.Window),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv}
}

func (s *testServer) upload(t *testing.T, name, body string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("genomeFile", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(body))
	mw.Close()

	resp, err := http.Post(s.URL+"/genomes", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

const ecoli = ">chr1 test genome\nACGTACGT\nAAAA\n>plasmid\nTTTTGG\n"

func TestUploadAndQueryRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := srv.upload(t, "ecoli.fa", ecoli)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	up := decode[map[string]int64](t, resp)
	id := up["id"]
	if id != 1 {
		t.Fatalf("id = %d", id)
	}

	summary := decode[map[string]string](t, srv.get(t, fmt.Sprintf("/genomes?id=%d", id)))
	if summary["chr1"] != "12 bp" || summary["plasmid"] != "6 bp" {
		t.Errorf("summary = %v", summary)
	}

	seq := decode[map[string]string](t, srv.get(t, fmt.Sprintf("/retrieve_seq/%d?region=chr1&start=4&end=9", id)))
	if seq["sequence"] != "ACGTAA" {
		t.Errorf("sequence = %q", seq["sequence"])
	}

	resp = srv.get(t, fmt.Sprintf("/genome_search/%d?seq=aa", id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp.StatusCode)
	}
	type interval struct{ Start, End int }
	type match struct {
		Forward []interval `json:"forward_matches"`
		Reverse []interval `json:"reverse_matches"`
	}
	search := decode[map[string]match](t, resp)
	if got := search["chr1"].Forward; len(got) != 3 || got[0].Start != 9 || got[2].End != 12 {
		t.Errorf("chr1 forward = %v", got)
	}
	if got := search["plasmid"].Reverse; len(got) != 3 {
		t.Errorf("plasmid reverse = %v", got)
	}

	regions := decode[map[string]match](t, srv.get(t, "/genome_regions?seq=GG&region=plasmid"))
	if len(regions) != 1 || len(regions["genome_id_1"].Forward) != 1 {
		t.Errorf("regions = %v", regions)
	}

	stats := decode[analytics.AggregatedStats](t, srv.get(t, "/api/v1/analytics"))
	if stats.TotalSearches != 2 || stats.TotalUploads != 1 {
		t.Errorf("analytics = %+v", stats)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.upload(t, "a.fa", ecoli)

	tests := []struct {
		path string
		want int
	}{
		{"/genomes", http.StatusBadRequest},
		{"/genomes?id=abc", http.StatusBadRequest},
		{"/genomes?id=42", http.StatusNotFound},
		{"/retrieve_seq/1?region=chr1&start=5&end=1", http.StatusBadRequest},
		{"/retrieve_seq/1?region=chr1&start=x&end=1", http.StatusBadRequest},
		{"/retrieve_seq/1?region=chrX&start=0&end=1", http.StatusNotFound},
		{"/genome_search/1", http.StatusBadRequest},
		{"/genome_search/9?seq=A", http.StatusNotFound},
		{"/genome_regions?seq=A&region=chrZ", http.StatusNotFound},
		{"/genome_regions?region=chr1", http.StatusBadRequest},
		{"/no/such/route", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := srv.get(t, tt.path)
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
			continue
		}
		if tt.path == "/no/such/route" {
			continue
		}
		body := decode[map[string]any](t, resp)
		if body["error"] == nil {
			t.Errorf("GET %s: no error field in %v", tt.path, body)
		}
	}
}

func TestUploadErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	if resp := srv.upload(t, "a.fa", ecoli); resp.StatusCode != http.StatusOK {
		t.Fatalf("first upload = %d", resp.StatusCode)
	}
	if resp := srv.upload(t, "a.fa", ecoli); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate upload = %d, want 409", resp.StatusCode)
	}

	resp := srv.upload(t, "b.fa", "just some text")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid upload = %d, want 400", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if fields, ok := body["fields"].(map[string]any); !ok || fields["body"] == nil {
		t.Errorf("validation body = %v", body)
	}

	noFile, err := http.Post(srv.URL+"/genomes", "text/plain", bytes.NewBufferString("x"))
	if err != nil {
		t.Fatal(err)
	}
	noFile.Body.Close()
	if noFile.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file = %d, want 400", noFile.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/version", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /version = %d, want 405", resp.StatusCode)
	}
}

func TestVersionAndMiddleware(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.get(t, "/version")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	v := decode[map[string]string](t, resp)
	if v["api"] != handler.Version || v["go"] == "" {
		t.Errorf("version = %v", v)
	}
}

func TestRateLimitApplied(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerWindow: 2, Window: time.Minute}
	})
	var last int
	for range 3 {
		last = srv.get(t, "/version").StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", last)
	}
	if code := srv.get(t, "/health/live").StatusCode; code != http.StatusOK {
		t.Errorf("health probe = %d", code)
	}
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	srv := newTestServer(t, nil)
	stats := decode[map[string]string](t, srv.get(t, "/api/v1/cache/stats"))
	if stats["status"] != "disabled" {
		t.Errorf("stats = %v", stats)
	}
	resp, err := http.Post(srv.URL+"/api/v1/cache/invalidate", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("invalidate = %d, want 503", resp.StatusCode)
	}
}
