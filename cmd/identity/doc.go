// Package identity owns the stable per-device identifier and the id primitives
// (ULID for tabs and envelopes, UUID for devices) used by the client agent.
//
// The device id is created once per browser profile and is never destroyed:
// logout and failed restorations leave it in place.
package identity
