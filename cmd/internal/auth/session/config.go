package session

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for session restoration and routing.
type Config struct {
	// LoginPath is the login entry point every terminal failure and logout routes to.
	LoginPath string

	// OnboardingPath is where users of an onboarding role go until they finish setup.
	OnboardingPath string

	// LandingPath is used when no last-visited path is recorded.
	LandingPath string

	// OnboardingRoles are normalized role names that require onboarding.
	OnboardingRoles []string

	// RouteDelay defers navigation after the session state is committed.
	// Zero navigates immediately after observers were notified.
	RouteDelay time.Duration

	// LogoutSettle keeps the logout in-flight flag set after a logout completes,
	// absorbing rapid repeated triggers.
	LogoutSettle time.Duration

	// LockStaleAfter enables breaking a cross-tab lock older than this.
	// Zero never breaks a stranded lock.
	LockStaleAfter time.Duration
}

// DefaultConfig returns the default routing and timing configuration.
func DefaultConfig() Config {
	return Config{
		LoginPath:       "/login",
		OnboardingPath:  "/onboarding",
		LandingPath:     "/dashboard",
		OnboardingRoles: []string{"student"},
		RouteDelay:      100 * time.Millisecond,
		LogoutSettle:    time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - ARC_LOGIN_PATH, ARC_ONBOARDING_PATH, ARC_LANDING_PATH (must start with "/")
//   - ARC_ONBOARDING_ROLES (comma separated)
//   - ARC_ROUTE_DELAY, ARC_LOGOUT_SETTLE, ARC_RESTORE_LOCK_STALE_AFTER (Go durations, >= 0)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	paths := []struct {
		env string
		dst *string
	}{
		{"ARC_LOGIN_PATH", &cfg.LoginPath},
		{"ARC_ONBOARDING_PATH", &cfg.OnboardingPath},
		{"ARC_LANDING_PATH", &cfg.LandingPath},
	}
	for _, p := range paths {
		if v := strings.TrimSpace(os.Getenv(p.env)); v != "" {
			if !strings.HasPrefix(v, "/") {
				return Config{}, ErrConfig
			}
			*p.dst = v
		}
	}

	if v, ok := os.LookupEnv("ARC_ONBOARDING_ROLES"); ok {
		cfg.OnboardingRoles = nil
		for _, r := range strings.Split(v, ",") {
			if n := NormalizeRole(r); n != "" {
				cfg.OnboardingRoles = append(cfg.OnboardingRoles, n)
			}
		}
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"ARC_ROUTE_DELAY", &cfg.RouteDelay},
		{"ARC_LOGOUT_SETTLE", &cfg.LogoutSettle},
		{"ARC_RESTORE_LOCK_STALE_AFTER", &cfg.LockStaleAfter},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.env)); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil || parsed < 0 {
				return Config{}, ErrConfig
			}
			*d.dst = parsed
		}
	}

	return cfg, nil
}
