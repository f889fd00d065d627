// Package store persists genome files in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/postgres"
)

// Schema creates the genomes table. It is safe to run repeatedly.
const Schema = `CREATE TABLE IF NOT EXISTS genomes (
	id         BIGSERIAL PRIMARY KEY,
	file_name  VARCHAR(100) NOT NULL UNIQUE,
	file_body  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "genome-store"),
	}
}

// EnsureSchema creates the genomes table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating genomes table: %w", err)
	}
	return nil
}

// Put inserts a genome and returns its id. A name that is already stored
// fails with ErrGenomeExists.
func (s *Store) Put(ctx context.Context, name, body string) (int64, error) {
	var id int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO genomes (file_name, file_body) VALUES ($1, $2) RETURNING id`,
			name, body).Scan(&id)
	})
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", apperrors.ErrGenomeExists, name)
		}
		return 0, fmt.Errorf("inserting genome %s: %w", name, err)
	}
	s.logger.Debug("genome stored", "genome_id", id, "file_name", name, "size_bytes", len(body))
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*genome.Genome, error) {
	var g genome.Genome
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, file_name, file_body, created_at FROM genomes WHERE id = $1`, id).
		Scan(&g.ID, &g.FileName, &g.Body, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", apperrors.ErrGenomeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying genome %d: %w", id, err)
	}
	return &g, nil
}

// List returns every stored genome ordered by id.
func (s *Store) List(ctx context.Context) ([]genome.Genome, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, file_name, file_body, created_at FROM genomes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing genomes: %w", err)
	}
	defer rows.Close()

	var out []genome.Genome
	for rows.Next() {
		var g genome.Genome
		if err := rows.Scan(&g.ID, &g.FileName, &g.Body, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning genome row: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating genome rows: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT count(*) FROM genomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting genomes: %w", err)
	}
	return n, nil
}
