package uibridge

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"arcclient/cmd/internal/auth/session"
	v1 "arcclient/shared/contracts/ui/v1"
)

// DefaultNoticeDedupWindow suppresses a repeated notification with the same ID.
const DefaultNoticeDedupWindow = 2 * time.Second

// Bridge is the session side-effect sink. It implements session.Navigator and
// session.Notifier and mirrors committed snapshots to every connected shell.
type Bridge struct {
	hub   *Hub
	log   *slog.Logger
	clock clockwork.Clock

	// DedupWindow drops a notification whose ID was already sent within the
	// window. Zero disables suppression.
	DedupWindow time.Duration

	mu         sync.Mutex
	snapshot   *v1.Envelope
	lastNotice map[string]time.Time
}

var (
	_ session.Navigator = (*Bridge)(nil)
	_ session.Notifier  = (*Bridge)(nil)
)

// NewBridge constructs a Bridge broadcasting on hub. A nil clock uses the real clock.
func NewBridge(hub *Hub, log *slog.Logger, clock clockwork.Clock) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Bridge{
		hub:         hub,
		log:         log,
		clock:       clock,
		DedupWindow: DefaultNoticeDedupWindow,
		lastNotice:  make(map[string]time.Time),
	}
}

// Navigate broadcasts a navigation intent.
func (b *Bridge) Navigate(path string) {
	env, err := b.envelope(v1.TypeNavigate, v1.NavigatePayload{Path: path})
	if err != nil {
		b.log.Error("uibridge.navigate.encode.fail", "err", err)
		return
	}
	b.log.Info("uibridge.navigate", "path", path, "members", b.hub.Len())
	b.hub.Broadcast(env)
}

// Notify broadcasts n unless the same notification ID went out within DedupWindow.
func (b *Bridge) Notify(n session.Notification) {
	now := b.clock.Now()

	b.mu.Lock()
	if at, ok := b.lastNotice[n.ID]; ok && b.DedupWindow > 0 && now.Sub(at) < b.DedupWindow {
		b.mu.Unlock()
		b.log.Debug("uibridge.notify.dedup", "id", n.ID)
		return
	}
	b.lastNotice[n.ID] = now
	b.mu.Unlock()

	env, err := b.envelope(v1.TypeNotify, v1.NotifyPayload{ID: n.ID, Level: string(n.Level), Message: n.Message})
	if err != nil {
		b.log.Error("uibridge.notify.encode.fail", "err", err)
		return
	}
	b.hub.Broadcast(env)
}

// PublishSnapshot records s as the latest session context and broadcasts it.
// Register it with session.Manager.Observe.
func (b *Bridge) PublishSnapshot(s session.Snapshot) {
	env, err := b.envelope(v1.TypeSessionSnapshot, SnapshotPayload(s))
	if err != nil {
		b.log.Error("uibridge.snapshot.encode.fail", "err", err)
		return
	}
	b.mu.Lock()
	b.snapshot = &env
	b.mu.Unlock()
	b.hub.Broadcast(env)
}

// LastSnapshot returns the latest published snapshot envelope.
func (b *Bridge) LastSnapshot() (v1.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		return v1.Envelope{}, false
	}
	return *b.snapshot, true
}

func (b *Bridge) envelope(typ string, payload any) (v1.Envelope, error) {
	return newEnvelope(typ, payload, b.clock.Now().UTC())
}

// SnapshotPayload converts a session snapshot to its wire form.
func SnapshotPayload(s session.Snapshot) v1.SessionSnapshotPayload {
	p := v1.SessionSnapshotPayload{Loading: s.Loading, DeviceID: s.DeviceID}
	if u := s.User; u != nil {
		p.User = &v1.UserPayload{
			ID:            u.ID,
			Email:         u.Email,
			DisplayName:   u.DisplayName,
			RoleName:      u.Role.RoleName,
			IsFirstLogin:  u.IsFirstLogin,
			IsTimezoneSet: u.IsTimezoneSet,
		}
	}
	return p
}

func newEnvelope(typ string, payload any, ts time.Time) (v1.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	// A failed id only leaves the optional id empty.
	id, _ := NewEnvelopeID(ts)
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      id,
		TS:      ts,
		Payload: raw,
	}, nil
}
