package config

import (
	"testing"
	"time"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("INGEST_COMMIT_MODE", "")
	t.Setenv("PREDICTION_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("expected port 5000, got %q", cfg.Port)
	}
	if cfg.PredictionTimeout != 0 || cfg.PredictionMaxRetries != 0 {
		t.Errorf("expected no timeout and no retries by default, got %v / %d", cfg.PredictionTimeout, cfg.PredictionMaxRetries)
	}
	if cfg.PredictionHealthTimeout != 10*time.Second {
		t.Errorf("expected 10s health timeout, got %v", cfg.PredictionHealthTimeout)
	}
	if cfg.PredictionWindow != 24 {
		t.Errorf("expected window 24, got %d", cfg.PredictionWindow)
	}
	if cfg.CommitMode != dam.CommitAlways {
		t.Errorf("expected commit mode, got %q", cfg.CommitMode)
	}
	if cfg.StoreMaxReadings != 0 {
		t.Errorf("expected unbounded history, got %d", cfg.StoreMaxReadings)
	}
	if cfg.KafkaBrokers != nil {
		t.Errorf("expected no kafka brokers, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INGEST_COMMIT_MODE", "Transaction")
	t.Setenv("STRICT_READINGS", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PREDICTION_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CommitMode != dam.CommitTransaction {
		t.Errorf("expected transaction mode, got %q", cfg.CommitMode)
	}
	if !cfg.StrictReadings {
		t.Error("expected strict readings")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.PredictionTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.PredictionTimeout)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"commit mode":     {"INGEST_COMMIT_MODE", "sometimes"},
		"store backend":   {"STORE_BACKEND", "mongo"},
		"postgres no url": {"STORE_BACKEND", "postgres"},
		"probe interval":  {"HEALTH_PROBE_INTERVAL", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
