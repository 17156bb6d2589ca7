package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/blacktop/rpost/internal/rpost/reddit"
)

const (
	envAuthURL    = "RPOST_AUTH_URL"
	envAPIURL     = "RPOST_API_URL"
	envUserAgent  = "RPOST_USER_AGENT"
	envMaxRetries = "RPOST_MAX_RETRIES"
	envMaxWait    = "RPOST_MAX_WAIT"
	envRateLimit  = "RPOST_RATE_LIMIT"
)

// Settings are the non-secret knobs for a run.
type Settings struct {
	TokenURL          string
	SubmitURL         string
	UserAgent         string
	MaxRetries        uint
	MaxWait           time.Duration
	RequestsPerMinute float64
}

// Defaults returns settings pointing at the public Reddit API with unbounded
// rate-limit retries.
func Defaults() Settings {
	return Settings{
		TokenURL:          reddit.DefaultTokenURL,
		SubmitURL:         reddit.DefaultSubmitURL,
		UserAgent:         reddit.DefaultUserAgent,
		RequestsPerMinute: reddit.DefaultRequestsPerMinute,
	}
}

// Load reads a .env file from the working directory when present, then
// applies RPOST_* overrides on top of Defaults.
func Load() (Settings, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup applies overrides from lookup on top of Defaults.
func FromLookup(lookup func(string) (string, bool)) (Settings, error) {
	s := Defaults()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v := get(envAuthURL); v != "" {
		s.TokenURL = v
	}
	if v := get(envAPIURL); v != "" {
		s.SubmitURL = v
	}
	if v := get(envUserAgent); v != "" {
		s.UserAgent = v
	}
	if v := get(envMaxRetries); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", envMaxRetries, err)
		}
		s.MaxRetries = uint(n)
	}
	if v := get(envMaxWait); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", envMaxWait, err)
		}
		if d < 0 {
			return Settings{}, fmt.Errorf("%s: must not be negative", envMaxWait)
		}
		s.MaxWait = d
	}
	if v := get(envRateLimit); v != "" {
		rpm, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", envRateLimit, err)
		}
		s.RequestsPerMinute = rpm
	}
	return s, nil
}
