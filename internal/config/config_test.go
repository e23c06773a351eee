package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORAGE_DRIVER", "PHASE_DURATION", "RATE_LIMIT", "RATE_BURST", "CARDS_PATH"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Port != "8009" {
		t.Errorf("expected port 8009, got %s", cfg.Port)
	}
	if cfg.StorageDriver != DriverPostgres {
		t.Errorf("expected postgres driver, got %s", cfg.StorageDriver)
	}
	if cfg.PhaseDuration != 2*time.Minute {
		t.Errorf("expected 2m phase duration, got %s", cfg.PhaseDuration)
	}
	if cfg.RateLimit != 5 || cfg.RateBurst != 10 {
		t.Errorf("expected 5/10 rate limit, got %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.CardsPath != "" {
		t.Errorf("expected embedded cards, got %q", cfg.CardsPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverSQLite)
	t.Setenv("PHASE_DURATION", "45s")
	t.Setenv("RATE_LIMIT", "0.5")
	t.Setenv("RATE_BURST", "3")

	cfg := Load()
	if cfg.StorageDriver != DriverSQLite {
		t.Errorf("expected sqlite, got %s", cfg.StorageDriver)
	}
	if cfg.PhaseDuration != 45*time.Second {
		t.Errorf("expected 45s, got %s", cfg.PhaseDuration)
	}
	if cfg.RateLimit != 0.5 || cfg.RateBurst != 3 {
		t.Errorf("expected 0.5/3, got %v/%d", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("PHASE_DURATION", "soon")
	t.Setenv("RATE_BURST", "many")
	cfg := Load()
	if cfg.PhaseDuration != 2*time.Minute || cfg.RateBurst != 10 {
		t.Errorf("expected defaults, got %s/%d", cfg.PhaseDuration, cfg.RateBurst)
	}
}
