// Package router wires the genome API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/handler"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/middleware"
)

// Deps collects the handlers and middleware collaborators. Analytics,
// Metrics and Limiter may be nil.
type Deps struct {
	Genomes   *handler.Handler
	Analytics *analytics.Handler
	Health    *health.Checker
	Metrics   *metrics.Metrics
	Limiter   middleware.Limiter
}

// New builds the full HTTP handler.
//
// Route table:
//
//	GET    /version                  → api and Go versions
//	POST   /genomes                  → upload (multipart field genomeFile)
//	GET    /genomes?id=              → region lengths
//	GET    /retrieve_seq/{id}        → subsequence (?region=&start=&end=)
//	GET    /genome_search/{id}       → search one genome (?seq=)
//	GET    /genome_regions           → search a region of all genomes (?seq=&region=)
//	GET    /api/v1/analytics         → aggregated search stats
//	GET    /api/v1/cache/stats       → result cache hit rate
//	POST   /api/v1/cache/invalidate  → drop cached results (?scope=)
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Tracing → AccessLog → CORS → RateLimit → Metrics → Timeout → mux
func New(cfg *config.Config, d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /version", d.Genomes.Version)

	mux.HandleFunc("POST /genomes", d.Genomes.Upload)
	mux.HandleFunc("GET /genomes", d.Genomes.Summary)
	mux.HandleFunc("GET /retrieve_seq/{id}", d.Genomes.RetrieveSequence)
	mux.HandleFunc("GET /genome_search/{id}", d.Genomes.SearchGenome)
	mux.HandleFunc("GET /genome_regions", d.Genomes.SearchRegions)

	if d.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", d.Analytics.Stats)
	}
	mux.HandleFunc("GET /api/v1/cache/stats", d.Genomes.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", d.Genomes.CacheInvalidate)

	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	}

	// applied inside-out
	var chain http.Handler = mux
	if cfg.Server.RequestTimeout > 0 {
		chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	}
	if d.Metrics != nil {
		chain = middleware.Metrics(d.Metrics)(chain)
	}
	if d.Limiter != nil && cfg.RateLimit.Enabled {
		chain = middleware.RateLimit(d.Limiter, cfg.RateLimit.RequestsPerWindow, windowOrDefault(cfg.RateLimit.Window))(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORS.AllowOrigins, cfg.CORS.MaxAge))(chain)
	chain = middleware.AccessLog(chain)
	chain = middleware.Tracing(cfg.Tracing.Enabled)(chain)
	chain = middleware.RequestID(chain)

	return chain
}

func windowOrDefault(w time.Duration) time.Duration {
	if w <= 0 {
		return time.Minute
	}
	return w
}
