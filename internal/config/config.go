// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/flavortown"
	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/hackatime"
	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/rest"
	"github.com/flavortown-bot/flavorvault/internal/crypto"
	"github.com/flavortown-bot/flavorvault/internal/session"
)

// Config holds the application configuration loaded from environment
// variables. The vault's tunables (TTLs, retry schedule, KDF cost) are fixed
// constants in practice but exposed here as configuration points.
type Config struct {
	DBPath        string
	ListenAddr    string
	SessionTTL    time.Duration
	ChallengeTTL  time.Duration
	MaxRetries    int
	Backoffs      []time.Duration
	HTTPTimeout   time.Duration
	KDFIterations int
	FlavortownURL string
	HackatimeURL  string
}

// Load reads configuration from environment variables and returns a
// validated Config. Everything is optional; defaults match production
// behavior: FLAVORVAULT_DB_PATH (flavorvault.db), FLAVORVAULT_LISTEN_ADDR
// (127.0.0.1:8080), FLAVORVAULT_SESSION_TTL (2h), FLAVORVAULT_CHALLENGE_TTL
// (5m), FLAVORVAULT_MAX_RETRIES (2), FLAVORVAULT_BACKOFF (500ms,1s),
// FLAVORVAULT_HTTP_TIMEOUT (10s), FLAVORVAULT_KDF_ITERATIONS (480000),
// FLAVORVAULT_FLAVORTOWN_URL, FLAVORVAULT_HACKATIME_URL.
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:        "flavorvault.db",
		ListenAddr:    "127.0.0.1:8080",
		SessionTTL:    session.DefaultTTL,
		ChallengeTTL:  5 * time.Minute,
		MaxRetries:    rest.DefaultMaxRetries,
		Backoffs:      rest.DefaultBackoffs,
		HTTPTimeout:   rest.DefaultTimeout,
		KDFIterations: crypto.DefaultIterations,
		FlavortownURL: flavortown.DefaultBaseURL,
		HackatimeURL:  hackatime.DefaultBaseURL,
	}

	if v, ok := os.LookupEnv("FLAVORVAULT_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("FLAVORVAULT_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("FLAVORVAULT_FLAVORTOWN_URL"); ok {
		cfg.FlavortownURL = v
	}
	if v, ok := os.LookupEnv("FLAVORVAULT_HACKATIME_URL"); ok {
		cfg.HackatimeURL = v
	}

	var err error
	if cfg.SessionTTL, err = durationEnv("FLAVORVAULT_SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.ChallengeTTL, err = durationEnv("FLAVORVAULT_CHALLENGE_TTL", cfg.ChallengeTTL); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = durationEnv("FLAVORVAULT_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("FLAVORVAULT_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("FLAVORVAULT_MAX_RETRIES has invalid value %q", v)
		}
		cfg.MaxRetries = n
	}

	if v, ok := os.LookupEnv("FLAVORVAULT_KDF_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("FLAVORVAULT_KDF_ITERATIONS has invalid value %q", v)
		}
		cfg.KDFIterations = n
	}

	if v, ok := os.LookupEnv("FLAVORVAULT_BACKOFF"); ok {
		backoffs, err := parseBackoffs(v)
		if err != nil {
			return nil, err
		}
		cfg.Backoffs = backoffs
	}

	return cfg, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", name, v)
	}
	return d, nil
}

// parseBackoffs parses a comma-separated list of durations, e.g. "500ms,1s".
func parseBackoffs(raw string) ([]time.Duration, error) {
	var backoffs []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("FLAVORVAULT_BACKOFF has invalid duration %q: %w", part, err)
		}
		backoffs = append(backoffs, d)
	}
	if len(backoffs) == 0 {
		return nil, fmt.Errorf("FLAVORVAULT_BACKOFF is empty")
	}
	return backoffs, nil
}
