package storage

import (
	"context"
	"strings"
)

// Change describes one observed write made by another tab.
type Change struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	Removed  bool   `json:"removed,omitempty"`

	// Origin is the tab that performed the write.
	Origin string `json:"origin"`
}

// Mutation is one entry of an Apply batch.
type Mutation struct {
	Key    string
	Value  string
	Remove bool
}

// SetOp builds a set mutation.
func SetOp(key, value string) Mutation { return Mutation{Key: key, Value: value} }

// RemoveOp builds a remove mutation.
func RemoveOp(key string) Mutation { return Mutation{Key: key, Remove: true} }

// SharedKeyValueStore is one tab's handle on the shared area.
//
// Writes are last-writer-wins with no merge semantics. Apply is the only
// multi-key primitive: the whole batch becomes visible together, and its change
// notifications are published after the batch is applied.
type SharedKeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Apply(ctx context.Context, muts []Mutation) error

	// Subscribe registers fn for changes written by other tabs. The returned
	// function unsubscribes and is safe to call more than once. fn must not call
	// the returned unsubscribe function itself.
	Subscribe(ctx context.Context, fn func(Change)) (func(), error)

	// Origin returns the id of the tab owning this handle.
	Origin() string

	Close() error
}

func validateMutations(muts []Mutation) error {
	for _, m := range muts {
		if strings.TrimSpace(m.Key) == "" {
			return ErrInvalidKey
		}
	}
	return nil
}

// diff returns the change produced by applying m over (old, had), or false when
// the stored value would not change.
func diff(m Mutation, old string, had bool, origin string) (Change, bool) {
	if m.Remove {
		if !had {
			return Change{}, false
		}
		return Change{Key: m.Key, OldValue: old, Removed: true, Origin: origin}, true
	}
	if had && old == m.Value {
		return Change{}, false
	}
	return Change{Key: m.Key, OldValue: old, NewValue: m.Value, Origin: origin}, true
}
