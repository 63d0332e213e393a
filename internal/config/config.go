// Package config assembles runtime settings from the environment (with a
// .env bootstrap for development) and an optional YAML challenge file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Port    string `validate:"required"`
	DataDir string `validate:"required"`

	DatabaseURL string
	RedisURL    string
	AdminToken  string

	HubKeywords      []string
	HubFallbackLat   float64
	HubFallbackLon   float64
	QuadrantMinimum  int `validate:"min=3,max=4"`
	RealtimeFeedURL  string
	RealtimeCacheTTL time.Duration

	RecomputeInterval time.Duration
	ChallengeFile     string
}

// ChallengeOverride replaces the presentation fields of a built-in challenge.
type ChallengeOverride struct {
	ID        string   `yaml:"id" validate:"required"`
	Title     string   `yaml:"title"`
	Tagline   string   `yaml:"tagline"`
	ThemeTags []string `yaml:"theme_tags"`
	Badge     string   `yaml:"badge"`
}

type challengeFile struct {
	Challenges []ChallengeOverride `yaml:"challenges" validate:"dive"`
}

// Load reads the environment into a validated Config. A .env file, when
// present, seeds unset variables first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		DataDir:           getenv("DATA_DIR", "data"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		QuadrantMinimum:   4,
		RecomputeInterval: 5 * time.Minute,
		RealtimeFeedURL:   os.Getenv("REALTIME_FEED_URL"),
		ChallengeFile:     os.Getenv("CHALLENGE_FILE"),
	}
	if v := os.Getenv("HUB_KEYWORDS"); v != "" {
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				cfg.HubKeywords = append(cfg.HubKeywords, kw)
			}
		}
	}
	var err error
	if cfg.HubFallbackLat, err = floatEnv("HUB_FALLBACK_LAT", 0); err != nil {
		return nil, err
	}
	if cfg.HubFallbackLon, err = floatEnv("HUB_FALLBACK_LON", 0); err != nil {
		return nil, err
	}
	if v := os.Getenv("QUADRANT_MINIMUM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: QUADRANT_MINIMUM: %w", err)
		}
		cfg.QuadrantMinimum = n
	}
	if cfg.RecomputeInterval, err = durationEnv("RECOMPUTE_INTERVAL", cfg.RecomputeInterval); err != nil {
		return nil, err
	}
	if cfg.RealtimeCacheTTL, err = durationEnv("REALTIME_CACHE_TTL", 0); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadChallengeOverrides reads and validates the optional challenge YAML.
// An empty path returns no overrides.
func (c *Config) LoadChallengeOverrides() (map[string]ChallengeOverride, error) {
	if c.ChallengeFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.ChallengeFile)
	if err != nil {
		return nil, fmt.Errorf("config: read challenge file: %w", err)
	}
	var file challengeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: challenge file is not valid YAML: %w", err)
	}
	if err := validator.New().Struct(&file); err != nil {
		return nil, fmt.Errorf("config: challenge file: %w", err)
	}
	out := make(map[string]ChallengeOverride, len(file.Challenges))
	for _, ch := range file.Challenges {
		out[ch.ID] = ch
	}
	return out, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
