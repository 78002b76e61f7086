// Package session implements the client side of Arc session restoration.
//
// A Manager owns one tab's session state. On start it runs the restoration
// protocol: take the cross-tab lock, validate the stored credential, exchange it
// with the remote authority (renewing once on expiry), sync the device, and
// decide where to navigate. Logout clears the credential set and is propagated
// to every other tab through shared-storage change notifications.
//
// UI rendering and navigation mechanics are out of scope; the Manager emits
// intents through the Navigator and Notifier sinks.
package session
