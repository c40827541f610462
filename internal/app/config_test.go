package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Breaker.FailureThreshold != 5 {
		t.Fatalf("want=%d got=%d", 5, cfg.Breaker.FailureThreshold)
	}
	if cfg.RetryQueue.BaseDelay != 60*time.Second || cfg.RetryQueue.MaxRetries != 3 {
		t.Fatalf("retry queue defaults wrong: %+v", cfg.RetryQueue)
	}
	if cfg.Orchestrator.ConfidenceThreshold != 0.6 {
		t.Fatalf("want=%v got=%v", 0.6, cfg.Orchestrator.ConfidenceThreshold)
	}
	if len(cfg.MetadataWhitelist) == 0 {
		t.Fatalf("metadata whitelist must have defaults")
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "7")
	t.Setenv("DLQ_BASE_DELAY", "90s")
	t.Setenv("INTENT_CONFIDENCE_THRESHOLD", "0.8")

	cfg := LoadConfig()
	if cfg.Breaker.FailureThreshold != 7 {
		t.Fatalf("want=%d got=%d", 7, cfg.Breaker.FailureThreshold)
	}
	if cfg.RetryQueue.BaseDelay != 90*time.Second {
		t.Fatalf("want=%v got=%v", 90*time.Second, cfg.RetryQueue.BaseDelay)
	}
	if cfg.Orchestrator.ConfidenceThreshold != 0.8 {
		t.Fatalf("want=%v got=%v", 0.8, cfg.Orchestrator.ConfidenceThreshold)
	}
}
