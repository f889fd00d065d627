package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/cache"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/service"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/logger"
)

// Version is reported by GET /version. Override with -ldflags "-X".
var Version = "1.0.0"

// uploadField is the multipart form field carrying the FASTA file.
const uploadField = "genomeFile"

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 1 << 20

type GenomeService interface {
	Upload(ctx context.Context, fileName, body string) (*genome.UploadResponse, error)
	Summary(ctx context.Context, id int64) (genome.OrderedMap[string], error)
	Subsequence(ctx context.Context, id int64, region string, start, end int) (string, error)
	SearchGenome(ctx context.Context, id int64, query string) (service.Matches, error)
	SearchRegion(ctx context.Context, region, query string) (service.Matches, error)
}

type Handler struct {
	svc            GenomeService
	cache          *cache.ResultCache
	maxUploadBytes int64
	logger         *slog.Logger
}

// New creates a Handler. resultCache may be nil when caching is disabled.
func New(svc GenomeService, resultCache *cache.ResultCache, maxUploadBytes int64) *Handler {
	return &Handler{
		svc:            svc,
		cache:          resultCache,
		maxUploadBytes: maxUploadBytes,
		logger:         slog.Default().With("component", "genome-handler"),
	}
}

func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"api": Version,
		"go":  runtime.Version(),
	})
}

// Upload stores the FASTA file sent in the genomeFile multipart field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	}
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "genome file too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("multipart field %q is required", uploadField))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read genome file")
		return
	}

	resp, err := h.svc.Upload(r.Context(), header.Filename, string(body))
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeServiceError(w, r, "upload failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Summary serves GET /genomes?id=.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r.URL.Query().Get("id"))
	if !ok {
		return
	}
	summary, err := h.svc.Summary(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "summary failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// RetrieveSequence serves GET /retrieve_seq/{id}?region=&start=&end=.
func (h *Handler) RetrieveSequence(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r.PathValue("id"))
	if !ok {
		return
	}
	q := r.URL.Query()
	region := q.Get("region")
	if region == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'region' is required")
		return
	}
	start, err := strconv.Atoi(q.Get("start"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "start must be an integer")
		return
	}
	end, err := strconv.Atoi(q.Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "end must be an integer")
		return
	}

	seq, err := h.svc.Subsequence(r.Context(), id, region, start, end)
	if err != nil {
		h.writeServiceError(w, r, "sequence retrieval failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"sequence": seq})
}

// SearchGenome serves GET /genome_search/{id}?seq=.
func (h *Handler) SearchGenome(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r.PathValue("id"))
	if !ok {
		return
	}
	result, err := h.svc.SearchGenome(r.Context(), id, r.URL.Query().Get("seq"))
	if err != nil {
		h.writeServiceError(w, r, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// SearchRegions serves GET /genome_regions?seq=&region=.
func (h *Handler) SearchRegions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.SearchRegion(r.Context(), q.Get("region"), q.Get("seq"))
	if err != nil {
		h.writeServiceError(w, r, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate clears ?scope= (for example "all" or "genome:3"), or the
// whole cache when no scope is given.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	scope := r.URL.Query().Get("scope")
	deleted, err := h.cache.Invalidate(r.Context(), scope)
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "scope", scope, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "invalidated",
		"scope":        scope,
		"keys_deleted": deleted,
	})
}

func (h *Handler) parseID(w http.ResponseWriter, raw string) (int64, bool) {
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "genome id is required")
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "genome id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeServiceError maps err to a status. Client errors carry their message;
// server errors are logged and reported generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status < http.StatusInternalServerError {
		log.Info(op, "error", err, "status_code", status)
		h.writeError(w, status, err.Error())
		return
	}
	log.Error(op, "error", err, "status_code", status)
	h.writeError(w, status, http.StatusText(status))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
