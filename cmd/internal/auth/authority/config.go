package authority

import (
	"net/url"
	"os"
	"strings"
	"time"
)

// Config configures the HTTP authority client.
type Config struct {
	// BaseURL is the authority origin, e.g. https://api.example.com.
	BaseURL string

	// Timeout bounds every request.
	Timeout time.Duration
}

// DefaultConfig returns a configuration suitable for local development.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 30 * time.Second,
	}
}

// LoadConfigFromEnv loads authority configuration from environment variables.
//
// Optional:
//   - ARC_AUTHORITY_URL (absolute http/https URL)
//   - ARC_AUTHORITY_TIMEOUT (Go duration, > 0)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("ARC_AUTHORITY_URL")); v != "" {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Config{}, ErrConfig
		}
		cfg.BaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv("ARC_AUTHORITY_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.Timeout = d
	}

	return cfg, nil
}
