// Package uibridge is the websocket side-effect sink between a tab's session
// Manager and its UI shell.
//
// The Bridge receives navigation intents, notifications and committed session
// snapshots from the Manager and fans them out to every connected shell. The
// Gateway accepts shell connections and routes their commands (logout, restore,
// path_visited) back to the Manager.
package uibridge
