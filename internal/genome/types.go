// Package genome defines the persisted genome row, the upload response and
// the Kafka event emitted after an upload.
package genome

import "time"

// Genome is one stored FASTA file. Body holds the raw, unparsed text.
type Genome struct {
	ID        int64     `json:"id"`
	FileName  string    `json:"file_name"`
	Body      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResponse is returned to the caller after a genome is stored.
type UploadResponse struct {
	ID int64 `json:"id"`
}

// UploadedEvent is published once a genome has been committed.
type UploadedEvent struct {
	GenomeID   int64     `json:"genome_id"`
	FileName   string    `json:"file_name"`
	Regions    int       `json:"regions"`
	TotalBases int       `json:"total_bases"`
	UploadedAt time.Time `json:"uploaded_at"`
}
