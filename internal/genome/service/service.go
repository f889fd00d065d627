// Package service implements the genome operations behind the HTTP API:
// upload, summary, subsequence retrieval and the two search scopes. It owns
// the store circuit breaker, the result cache, event publication and search
// metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/cache"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/validator"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/sequence"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/tracing"
)

// Store is satisfied by *store.Store.
type Store interface {
	Put(ctx context.Context, name, body string) (int64, error)
	Get(ctx context.Context, id int64) (*genome.Genome, error)
	List(ctx context.Context) ([]genome.Genome, error)
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Tracker is satisfied by *analytics.Collector and *analytics.Aggregator.
type Tracker interface {
	Track(event any)
}

type Config struct {
	Limits               validator.Limits
	MaxQueryLength       int
	MaxConcurrentGenomes int
	SearchTimeout        time.Duration
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store   Store
	Cache   *cache.ResultCache
	Events  EventPublisher
	Tracker Tracker
	Metrics *metrics.Metrics
}

// Matches maps a region (or "genome_id_<id>") to its match result.
type Matches = genome.OrderedMap[sequence.MatchResult]

type Service struct {
	cfg     Config
	deps    Deps
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func New(cfg Config, deps Deps) *Service {
	if cfg.MaxConcurrentGenomes <= 0 {
		cfg.MaxConcurrentGenomes = 1
	}
	s := &Service{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "genome-service"),
	}
	s.breaker = resilience.NewCircuitBreaker("genome-store", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		IsFailure:        isStoreFailure,
		OnStateChange: func(name string, state resilience.State) {
			if deps.Metrics != nil {
				deps.Metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
			}
		},
	})
	return s
}

// isStoreFailure counts only errors that say something about the database.
func isStoreFailure(err error) bool {
	if err == nil || apperrors.IsClientError(err) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Upload validates and stores a genome file, then announces it.
func (s *Service) Upload(ctx context.Context, fileName, body string) (*genome.UploadResponse, error) {
	ctx, span := tracing.StartChildSpan(ctx, "genome.upload")
	defer span.End()
	start := time.Now()
	log := logger.FromContext(ctx)

	doc, err := validator.ValidateUpload(fileName, body, s.cfg.Limits)
	if err != nil {
		s.countUpload("invalid")
		return nil, err
	}

	var id int64
	err = s.breaker.Execute(func() error {
		var putErr error
		id, putErr = s.deps.Store.Put(ctx, fileName, body)
		return putErr
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrGenomeExists) {
			s.countUpload("duplicate")
		} else {
			s.countUpload("error")
		}
		return nil, err
	}

	span.SetAttr("genome_id", id)
	s.countUpload("ok")
	if s.deps.Cache != nil {
		// other replicas drop theirs when the upload event arrives
		if _, err := s.deps.Cache.Invalidate(ctx, cache.ScopeAll); err != nil {
			log.Warn("failed to invalidate cross-genome cache", "error", err)
		}
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.GenomeBasesUploaded.Add(float64(doc.TotalBases()))
	}

	if s.deps.Events != nil {
		event := kafka.Event{
			Key: strconv.FormatInt(id, 10),
			Value: genome.UploadedEvent{
				GenomeID:   id,
				FileName:   fileName,
				Regions:    doc.Len(),
				TotalBases: doc.TotalBases(),
				UploadedAt: time.Now().UTC(),
			},
		}
		if err := s.deps.Events.Publish(ctx, event); err != nil {
			log.Error("failed to publish upload event, cross-genome cache may be stale",
				"genome_id", id,
				"error", err,
			)
		}
	}
	if s.deps.Tracker != nil {
		s.deps.Tracker.Track(analytics.UploadEvent{
			Type:       analytics.EventUpload,
			GenomeID:   id,
			FileName:   fileName,
			Regions:    doc.Len(),
			TotalBases: doc.TotalBases(),
			SizeBytes:  len(body),
			LatencyMs:  time.Since(start).Milliseconds(),
			Timestamp:  time.Now().UTC(),
			RequestID:  logger.RequestID(ctx),
		})
	}

	log.Info("genome uploaded",
		"genome_id", id,
		"file_name", fileName,
		"regions", doc.Len(),
		"total_bases", doc.TotalBases(),
	)
	return &genome.UploadResponse{ID: id}, nil
}

// Summary reports the length of every region of a genome as "<n> bp".
func (s *Service) Summary(ctx context.Context, id int64) (genome.OrderedMap[string], error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return genome.OrderedMap[string]{}, err
	}
	out := genome.NewOrderedMap[string]()
	for _, rec := range doc.Records() {
		out.Set(rec.Name, fmt.Sprintf("%d bp", len(rec.Sequence)))
	}
	return out, nil
}

// Subsequence returns region[start:end+1] of a genome; start and end are
// 0-based and inclusive.
func (s *Service) Subsequence(ctx context.Context, id int64, region string, start, end int) (string, error) {
	if region == "" {
		return "", fmt.Errorf("%w: region is required", apperrors.ErrInvalidInput)
	}
	if start < 0 || end < 0 || end < start {
		return "", fmt.Errorf("%w: need 0 <= start <= end, got start=%d end=%d", apperrors.ErrInvalidInput, start, end)
	}
	doc, err := s.document(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Slice(region, start, end)
}

// SearchGenome matches query against every region of one genome.
func (s *Service) SearchGenome(ctx context.Context, id int64, query string) (Matches, error) {
	if err := s.validateQuery(query); err != nil {
		return Matches{}, err
	}
	ctx, span := tracing.StartChildSpan(ctx, "genome.search")
	defer span.End()
	span.SetAttr("genome_id", id)
	start := time.Now()

	result, hit, err := s.cached(ctx, cache.GenomeScope(id), query, "", func() (Matches, error) {
		doc, err := s.document(ctx, id)
		if err != nil {
			return Matches{}, err
		}
		_, matchSpan := tracing.StartChildSpan(ctx, "match")
		defer matchSpan.End()
		out := genome.NewOrderedMap[sequence.MatchResult]()
		for _, rec := range doc.Records() {
			res, err := sequence.FindMatches(query, rec.Sequence)
			if err != nil {
				return Matches{}, err
			}
			out.Set(rec.Name, res)
		}
		return out, nil
	})
	s.recordSearch(ctx, analytics.SearchEvent{
		Scope:           analytics.ScopeGenome,
		Query:           query,
		GenomeID:        id,
		GenomesSearched: 1,
		RegionsSearched: result.Len(),
		CacheHit:        hit,
	}, result, start, err)
	return result, err
}

// SearchRegion matches query against the named region of every stored
// genome that has it. Keys are "genome_id_<id>" in id order.
func (s *Service) SearchRegion(ctx context.Context, region, query string) (Matches, error) {
	if err := s.validateQuery(query); err != nil {
		return Matches{}, err
	}
	if region == "" {
		return Matches{}, fmt.Errorf("%w: region is required", apperrors.ErrInvalidInput)
	}
	ctx, span := tracing.StartChildSpan(ctx, "genome.search_region")
	defer span.End()
	span.SetAttr("region", region)
	start := time.Now()

	result, hit, err := s.cached(ctx, cache.ScopeAll, query, region, func() (Matches, error) {
		var out Matches
		err := resilience.WithTimeout(ctx, s.cfg.SearchTimeout, "search-region", func(ctx context.Context) error {
			res, err := s.fanOut(ctx, region, query)
			if err != nil {
				return err
			}
			out = res
			return nil
		})
		if err != nil {
			return Matches{}, err
		}
		return out, nil
	})
	s.recordSearch(ctx, analytics.SearchEvent{
		Scope:           analytics.ScopeAll,
		Query:           query,
		Region:          region,
		GenomesSearched: result.Len(),
		RegionsSearched: result.Len(),
		CacheHit:        hit,
	}, result, start, err)
	return result, err
}

func (s *Service) fanOut(ctx context.Context, region, query string) (Matches, error) {
	genomes, err := s.listGenomes(ctx)
	if err != nil {
		return Matches{}, err
	}

	results := make([]*sequence.MatchResult, len(genomes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentGenomes)
	for i, gm := range genomes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := sequence.Parse(gm.Body)
			if err != nil {
				s.logger.Warn("skipping unparseable genome", "genome_id", gm.ID, "error", err)
				return nil
			}
			rec, ok := doc.Get(region)
			if !ok {
				return nil
			}
			res, err := sequence.FindMatches(query, rec.Sequence)
			if err != nil {
				return err
			}
			results[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Matches{}, err
	}

	out := genome.NewOrderedMap[sequence.MatchResult]()
	for i, res := range results {
		if res != nil {
			out.Set(fmt.Sprintf("genome_id_%d", genomes[i].ID), *res)
		}
	}
	if out.Len() == 0 {
		return Matches{}, fmt.Errorf("%w: no stored genome has region %q", apperrors.ErrRegionNotFound, region)
	}
	return out, nil
}

func (s *Service) validateQuery(query string) error {
	if query == "" {
		return fmt.Errorf("%w: seq is required", apperrors.ErrInvalidQuery)
	}
	if s.cfg.MaxQueryLength > 0 && len(query) > s.cfg.MaxQueryLength {
		return fmt.Errorf("%w: seq longer than %d", apperrors.ErrInvalidQuery, s.cfg.MaxQueryLength)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, scope, query, region string, compute func() (Matches, error)) (Matches, bool, error) {
	if s.deps.Cache == nil {
		res, err := compute()
		return res, false, err
	}
	return cache.GetOrCompute(ctx, s.deps.Cache, scope, query, region, compute)
}

func (s *Service) document(ctx context.Context, id int64) (*sequence.Document, error) {
	g, err := s.getGenome(ctx, id)
	if err != nil {
		return nil, err
	}
	_, span := tracing.StartChildSpan(ctx, "parse")
	defer span.End()
	doc, err := sequence.Parse(g.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: stored genome %d does not parse: %v", apperrors.ErrInternal, id, err)
	}
	return doc, nil
}

func (s *Service) getGenome(ctx context.Context, id int64) (*genome.Genome, error) {
	_, span := tracing.StartChildSpan(ctx, "fetch")
	defer span.End()
	var g *genome.Genome
	err := s.breaker.Execute(func() error {
		var err error
		g, err = s.deps.Store.Get(ctx, id)
		return err
	})
	return g, err
}

func (s *Service) listGenomes(ctx context.Context) ([]genome.Genome, error) {
	_, span := tracing.StartChildSpan(ctx, "fetch_all")
	defer span.End()
	var out []genome.Genome
	err := s.breaker.Execute(func() error {
		var err error
		out, err = s.deps.Store.List(ctx)
		return err
	})
	span.SetAttr("genomes", len(out))
	return out, err
}

func (s *Service) countUpload(status string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.GenomeUploadsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) recordSearch(ctx context.Context, event analytics.SearchEvent, result Matches, start time.Time, err error) {
	latency := time.Since(start)
	for _, key := range result.Keys() {
		res, _ := result.Get(key)
		event.ForwardMatches += len(res.ForwardMatches)
		event.ReverseMatches += len(res.ReverseMatches)
	}

	if s.deps.Metrics != nil {
		resultType := "hit"
		switch {
		case err != nil:
			resultType = "error"
		case event.Matches() == 0:
			resultType = "zero_result"
		}
		cacheStatus := "miss"
		if event.CacheHit {
			cacheStatus = "hit"
		}
		s.deps.Metrics.SearchesTotal.WithLabelValues(event.Scope, resultType).Inc()
		s.deps.Metrics.SearchLatency.WithLabelValues(event.Scope, cacheStatus).Observe(latency.Seconds())
		if err == nil {
			s.deps.Metrics.SearchMatchCount.WithLabelValues(event.Scope).Observe(float64(event.Matches()))
		}
	}
	if err != nil {
		return
	}

	logger.FromContext(ctx).Info("search completed",
		"scope", event.Scope,
		"query_length", len(event.Query),
		"region", event.Region,
		"genome_id", event.GenomeID,
		"forward_matches", event.ForwardMatches,
		"reverse_matches", event.ReverseMatches,
		"cache_hit", event.CacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if s.deps.Tracker != nil {
		event.Type = analytics.EventSearch
		event.LatencyMs = latency.Milliseconds()
		event.Timestamp = time.Now().UTC()
		event.RequestID = logger.RequestID(ctx)
		s.deps.Tracker.Track(event)
	}
}
