// Package analytics collects search and upload events, ships them to Kafka
// and aggregates them into the stats served at GET /api/v1/analytics.
package analytics

import "time"

type EventType string

const (
	EventSearch EventType = "search"
	EventUpload EventType = "upload"
)

// Search scopes.
const (
	ScopeGenome = "genome"
	ScopeAll    = "all"
)

type SearchEvent struct {
	Type            EventType `json:"type"`
	Scope           string    `json:"scope"`
	Query           string    `json:"query"`
	Region          string    `json:"region,omitempty"`
	GenomeID        int64     `json:"genome_id,omitempty"`
	GenomesSearched int       `json:"genomes_searched"`
	RegionsSearched int       `json:"regions_searched"`
	ForwardMatches  int       `json:"forward_matches"`
	ReverseMatches  int       `json:"reverse_matches"`
	LatencyMs       int64     `json:"latency_ms"`
	CacheHit        bool      `json:"cache_hit"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id"`
}

// Matches returns forward plus reverse hits.
func (e SearchEvent) Matches() int {
	return e.ForwardMatches + e.ReverseMatches
}

type UploadEvent struct {
	Type       EventType `json:"type"`
	GenomeID   int64     `json:"genome_id"`
	FileName   string    `json:"file_name"`
	Regions    int       `json:"regions"`
	TotalBases int       `json:"total_bases"`
	SizeBytes  int       `json:"size_bytes"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
}

// envelope is decoded first to route a message to its concrete type.
type envelope struct {
	Type EventType `json:"type"`
}
