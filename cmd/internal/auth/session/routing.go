package session

import (
	"slices"
	"strings"
	"unicode"
)

// NormalizeRole lower-cases r and strips all whitespace.
func NormalizeRole(r string) string {
	return strings.Map(func(c rune) rune {
		if unicode.IsSpace(c) {
			return -1
		}
		return unicode.ToLower(c)
	}, r)
}

// NeedsOnboarding reports whether u must finish onboarding before using the app.
func (c Config) NeedsOnboarding(u User) bool {
	if !slices.Contains(c.OnboardingRoles, NormalizeRole(u.Role.RoleName)) {
		return false
	}
	return u.IsFirstLogin || !u.IsTimezoneSet
}

// Destination picks where a restored user goes. Onboarding leaves the stored
// last path in place so it can be used once onboarding finishes.
func (c Config) Destination(u User, lastPath string) string {
	if c.NeedsOnboarding(u) {
		return c.OnboardingPath
	}
	if lastPath == "" || lastPath == c.LoginPath {
		return c.LandingPath
	}
	return lastPath
}
