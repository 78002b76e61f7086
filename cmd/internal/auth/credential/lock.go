package credential

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"arcclient/cmd/internal/storage"
)

// Storage keys owned by the Cross-Tab Lock.
const (
	KeyRestoreLock   = "arc.restore_lock"
	KeyRestoreLockAt = "arc.restore_lock_at"
)

const lockHeld = "true"

// Lock is a best-effort cross-tab mutual-exclusion flag with an acquisition
// timestamp. It is not a distributed lock: two tabs reading an empty flag at the
// same moment can both acquire it.
type Lock struct {
	kv    storage.SharedKeyValueStore
	clock clockwork.Clock

	// StaleAfter, when > 0, lets TryAcquire break a lock whose timestamp is older
	// than this. Zero keeps a stranded lock in place forever.
	StaleAfter time.Duration

	// OnStaleBreak is called with the broken lock's timestamp.
	OnStaleBreak func(acquiredAt time.Time)
}

// NewLock constructs a Lock on kv. A nil clock uses the real clock.
func NewLock(kv storage.SharedKeyValueStore, clock clockwork.Clock) *Lock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Lock{kv: kv, clock: clock}
}

// Held reports whether any tab currently holds the lock.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	v, ok, err := l.kv.Get(ctx, KeyRestoreLock)
	if err != nil {
		return false, err
	}
	return ok && v == lockHeld, nil
}

// AcquiredAt returns the recorded acquisition time. ok is false when no valid
// timestamp is stored.
func (l *Lock) AcquiredAt(ctx context.Context) (time.Time, bool, error) {
	v, ok, err := l.kv.Get(ctx, KeyRestoreLockAt)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	at, perr := time.Parse(time.RFC3339Nano, v)
	if perr != nil {
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// TryAcquire sets the flag and timestamp only if the flag is not set.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	held, err := l.Held(ctx)
	if err != nil {
		return false, err
	}
	if held {
		if !l.stale(ctx) {
			return false, nil
		}
	}

	now := l.clock.Now().UTC()
	if err := l.kv.Apply(ctx, []storage.Mutation{
		storage.SetOp(KeyRestoreLock, lockHeld),
		storage.SetOp(KeyRestoreLockAt, now.Format(time.RFC3339Nano)),
	}); err != nil {
		return false, err
	}
	return true, nil
}

// stale reports whether the held lock may be broken. A held lock without a
// readable timestamp is treated as acquired at an unknown time and kept.
func (l *Lock) stale(ctx context.Context) bool {
	if l.StaleAfter <= 0 {
		return false
	}
	at, ok, err := l.AcquiredAt(ctx)
	if err != nil || !ok {
		return false
	}
	if l.clock.Since(at) < l.StaleAfter {
		return false
	}
	if l.OnStaleBreak != nil {
		l.OnStaleBreak(at)
	}
	return true
}

// Release clears flag and timestamp unconditionally.
func (l *Lock) Release(ctx context.Context) error {
	return l.kv.Apply(ctx, []storage.Mutation{
		storage.RemoveOp(KeyRestoreLock),
		storage.RemoveOp(KeyRestoreLockAt),
	})
}
