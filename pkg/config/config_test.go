package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Genome.MaxFileNameLength != 100 {
		t.Errorf("max file name length = %d, want 100", cfg.Genome.MaxFileNameLength)
	}
	if cfg.Kafka.Topics.GenomeUploaded != "genome-uploaded" {
		t.Errorf("genome uploaded topic = %q", cfg.Kafka.Topics.GenomeUploaded)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9999
search:
  maxConcurrentGenomes: 16
  timeout: 3s
redis:
  enabled: false
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Search.MaxConcurrentGenomes != 16 {
		t.Errorf("max concurrent genomes = %d, want 16", cfg.Search.MaxConcurrentGenomes)
	}
	if cfg.Search.Timeout != 3*time.Second {
		t.Errorf("search timeout = %v, want 3s", cfg.Search.Timeout)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis to be disabled")
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 {
		t.Errorf("postgres port = %d, want 5432", cfg.Postgres.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GS_SERVER_PORT", "7070")
	t.Setenv("GS_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("GS_REDIS_ENABLED", "false")
	t.Setenv("GS_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want 7070", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Redis.Enabled {
		t.Error("expected redis to be disabled by env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	cfg.Search.MaxConcurrentGenomes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "g", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=g sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
