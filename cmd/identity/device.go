package identity

import (
	"context"
	"strings"
	"sync"

	"arcclient/cmd/identity/ids"
	"arcclient/cmd/internal/storage"
)

// KeyDeviceID is the shared-store key holding the device identifier.
const KeyDeviceID = "arc.device_id"

// DeviceStore reads and lazily creates the per-device identifier.
type DeviceStore struct {
	kv storage.SharedKeyValueStore

	mu     sync.Mutex
	cached string
}

// NewDeviceStore constructs a DeviceStore on the shared area.
func NewDeviceStore(kv storage.SharedKeyValueStore) *DeviceStore {
	return &DeviceStore{kv: kv}
}

// GetOrCreateDeviceID returns the persisted device id, generating and persisting
// one on first use. Repeated calls in one tab return the cached value.
//
// A value written by another tab wins over an older local read: after writing,
// the key is read back and the stored value is returned.
func (s *DeviceStore) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	const op = "identity.GetOrCreateDeviceID"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	v, ok, err := s.kv.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", OpError{Op: op, Kind: ErrStorageUnavailable, Err: err}
	}
	if ok && strings.TrimSpace(v) != "" {
		s.cached = v
		return v, nil
	}

	id, err := ids.NewDeviceID()
	if err != nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Err: err}
	}
	if err := s.kv.Set(ctx, KeyDeviceID, id); err != nil {
		return "", OpError{Op: op, Kind: ErrStorageUnavailable, Err: err}
	}

	stored, ok, err := s.kv.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", OpError{Op: op, Kind: ErrStorageUnavailable, Err: err}
	}
	if !ok || stored == "" {
		stored = id
	}
	s.cached = stored
	return stored, nil
}
