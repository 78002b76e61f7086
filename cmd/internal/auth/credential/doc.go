// Package credential holds the two logical stores the restoration protocol keeps
// in shared storage: the Credential Store (token, user id, logged-in flag,
// last-visited path) and the Cross-Tab Lock.
//
// Both sit on the same storage.SharedKeyValueStore but own disjoint keys.
package credential
