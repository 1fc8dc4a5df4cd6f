package config

import (
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OfferTimeout != 20*time.Second {
		t.Fatalf("expected 20s offer timeout, got %s", cfg.OfferTimeout)
	}
	if cfg.DispatchRadiusKm != 50 {
		t.Fatalf("expected 50 km radius, got %f", cfg.DispatchRadiusKm)
	}
	if cfg.MaxDispatchAttempts != 0 {
		t.Fatalf("expected uncapped attempts by default, got %d", cfg.MaxDispatchAttempts)
	}
}

func TestLoadServerConfigOverridesAndErrors(t *testing.T) {
	t.Setenv("OFFER_TIMEOUT", "5s")
	t.Setenv("DISPATCH_RADIUS_KM", "10")
	t.Setenv("MAX_DISPATCH_ATTEMPTS", "3")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.OfferTimeout != 5*time.Second || cfg.DispatchRadiusKm != 10 || cfg.MaxDispatchAttempts != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	t.Setenv("OFFER_TIMEOUT", "not-a-duration")
	t.Setenv("MAX_DISPATCH_ATTEMPTS", "-1")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected joined validation errors")
	}
}
