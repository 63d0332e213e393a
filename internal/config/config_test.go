package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATA_DIR", "HUB_KEYWORDS", "QUADRANT_MINIMUM",
		"RECOMPUTE_INTERVAL", "HUB_FALLBACK_LAT", "HUB_FALLBACK_LON",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.DataDir != "data" {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.QuadrantMinimum != 4 || cfg.RecomputeInterval != 5*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadParsesEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DATA_DIR", "/tmp/net")
	t.Setenv("HUB_KEYWORDS", "Hakata, Tenjin ,")
	t.Setenv("HUB_FALLBACK_LAT", "33.59")
	t.Setenv("HUB_FALLBACK_LON", "130.42")
	t.Setenv("QUADRANT_MINIMUM", "3")
	t.Setenv("RECOMPUTE_INTERVAL", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9999" || cfg.DataDir != "/tmp/net" {
		t.Fatalf("parsed: %+v", cfg)
	}
	if len(cfg.HubKeywords) != 2 || cfg.HubKeywords[1] != "Tenjin" {
		t.Fatalf("hub keywords: %v", cfg.HubKeywords)
	}
	if cfg.QuadrantMinimum != 3 || cfg.RecomputeInterval != 90*time.Second {
		t.Fatalf("parsed: %+v", cfg)
	}
	if cfg.HubFallbackLat != 33.59 {
		t.Fatalf("fallback lat: %v", cfg.HubFallbackLat)
	}
}

func TestLoadRejectsBadQuadrantMinimum(t *testing.T) {
	t.Setenv("QUADRANT_MINIMUM", "2")
	if _, err := Load(); err == nil {
		t.Fatal("quadrant minimum below 3 must fail validation")
	}
	t.Setenv("QUADRANT_MINIMUM", "five")
	if _, err := Load(); err == nil {
		t.Fatal("non-numeric quadrant minimum must fail")
	}
}

func TestLoadChallengeOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "challenges.yml")
	content := `challenges:
  - id: city-loop
    title: Grand Circle
    tagline: Ride the edge of the city
    theme_tags: [loop, scenic]
    badge: circle
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := &Config{ChallengeFile: path}
	overrides, err := cfg.LoadChallengeOverrides()
	if err != nil {
		t.Fatalf("load overrides: %v", err)
	}
	ov, ok := overrides["city-loop"]
	if !ok || ov.Title != "Grand Circle" || len(ov.ThemeTags) != 2 {
		t.Fatalf("override: %+v", overrides)
	}

	empty := &Config{}
	if got, err := empty.LoadChallengeOverrides(); err != nil || got != nil {
		t.Fatalf("empty path: %v %v", got, err)
	}
}

func TestLoadChallengeOverridesRequireID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "challenges.yml")
	if err := os.WriteFile(path, []byte("challenges:\n  - title: Nameless\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := &Config{ChallengeFile: path}
	if _, err := cfg.LoadChallengeOverrides(); err == nil {
		t.Fatal("override without id must fail validation")
	}
}
