// Package storage implements the per-device key-value area shared by every tab of
// one browser profile.
//
// The area is both a data store and the coordination medium between tabs: there is
// no shared memory between tabs, only single-key reads and writes plus change
// notifications. A handle never observes changes it wrote itself, which mirrors the
// browser storage event.
//
// Drivers:
//   - memory: in-process Area, several tab handles per process (dev and tests)
//   - redis: keys under a namespace prefix, pub/sub change channel
//   - postgres: arcclient.shared_kv table, LISTEN/NOTIFY change channel
package storage
