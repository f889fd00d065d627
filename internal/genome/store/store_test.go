package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/genome-search/pkg/postgres"
)

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, testPostgresConfig())
	if err != nil {
		t.Skipf("skipping store test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPostgresConfig() config.PostgresConfig {
	port, err := strconv.Atoi(envOrDefault("TEST_POSTGRES_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            port,
		Database:        envOrDefault("TEST_POSTGRES_DB", "genomes_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "genomes"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectAttempts: 1,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestStorePutGetList(t *testing.T) {
	db := skipIfNoPostgres(t)
	ctx := context.Background()
	s := New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	name := fmt.Sprintf("test-%d.fa", time.Now().UnixNano())
	t.Cleanup(func() {
		db.DB.Exec(`DELETE FROM genomes WHERE file_name = $1`, name)
	})

	id, err := s.Put(ctx, name, ">chr1\nACGT\n")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d", id)
	}

	g, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.FileName != name || g.Body != ">chr1\nACGT\n" {
		t.Errorf("got %+v", g)
	}

	if _, err := s.Put(ctx, name, ">chr2\nA\n"); !errors.Is(err, apperrors.ErrGenomeExists) {
		t.Errorf("duplicate Put err = %v, want ErrGenomeExists", err)
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	found := false
	for i, row := range all {
		if i > 0 && all[i-1].ID >= row.ID {
			t.Errorf("List not ordered by id")
		}
		if row.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("stored genome missing from List")
	}

	n, err := s.Count(ctx)
	if err != nil || n < 1 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestStoreGetMissing(t *testing.T) {
	db := skipIfNoPostgres(t)
	s := New(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := s.Get(context.Background(), -1); !errors.Is(err, apperrors.ErrGenomeNotFound) {
		t.Errorf("err = %v, want ErrGenomeNotFound", err)
	}
}
