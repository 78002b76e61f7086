package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"arcclient/cmd/identity"
	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/auth/credential"
	"arcclient/cmd/internal/storage"
)

// Deps are the collaborators of a Manager. Store and Authority are required.
type Deps struct {
	Store     storage.SharedKeyValueStore
	Authority authority.Client
	Navigator Navigator
	Notifier  Notifier
	Metrics   Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Manager owns one tab's session: its context snapshot, the restoration
// in-progress flag and the logout in-flight flag.
type Manager struct {
	cfg       Config
	kv        storage.SharedKeyValueStore
	creds     *credential.Store
	lock      *credential.Lock
	authority authority.Client
	navigator Navigator
	notifier  Notifier
	metrics   Metrics
	clock     clockwork.Clock
	log       *slog.Logger

	deviceID string

	mu         sync.Mutex
	user       *User
	loading    bool
	restoring  bool
	loggingOut bool
	observers  map[uint64]func(Snapshot)
	obsSeq     uint64
	navTimer   clockwork.Timer
	settle     clockwork.Timer
	stopProp   func()

	// logoutGen moves on every logout so an in-flight restore can tell it lost.
	logoutGen uint64
}

// NewManager constructs a Manager for the tab owning deps.Store. It resolves the
// device id up front; an error here means shared storage is unusable.
func NewManager(ctx context.Context, cfg Config, deps Deps) (*Manager, error) {
	if deps.Store == nil || deps.Authority == nil {
		return nil, ErrMissingDependency
	}
	if deps.Navigator == nil {
		deps.Navigator = nopNavigator{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	deviceID, err := identity.NewDeviceStore(deps.Store).GetOrCreateDeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: device id: %w", err)
	}

	log := deps.Logger.With("tab", deps.Store.Origin())

	lock := credential.NewLock(deps.Store, deps.Clock)
	lock.StaleAfter = cfg.LockStaleAfter
	lock.OnStaleBreak = func(at time.Time) {
		log.Warn("session.lock.stale_broken", "acquired_at", at, "stale_after", cfg.LockStaleAfter)
	}

	return &Manager{
		cfg:       cfg,
		kv:        deps.Store,
		creds:     credential.NewStore(deps.Store),
		lock:      lock,
		authority: deps.Authority,
		navigator: deps.Navigator,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		log:       log,
		deviceID:  deviceID,
		loading:   true,
		observers: make(map[uint64]func(Snapshot)),
	}, nil
}

// Close stops the propagator and any pending navigation. It does not close the store.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.stopProp
	m.stopProp = nil
	if m.navTimer != nil {
		m.navTimer.Stop()
		m.navTimer = nil
	}
	if m.settle != nil {
		m.settle.Stop()
		m.settle = nil
	}
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// navigate emits path once the committed state has been observed. A newer
// intent replaces a pending one.
func (m *Manager) navigate(path string) {
	if path == "" {
		return
	}
	if m.cfg.RouteDelay <= 0 {
		m.mu.Lock()
		if m.navTimer != nil {
			m.navTimer.Stop()
			m.navTimer = nil
		}
		m.mu.Unlock()
		m.navigator.Navigate(path)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.navTimer != nil {
		m.navTimer.Stop()
	}
	m.navTimer = m.clock.AfterFunc(m.cfg.RouteDelay, func() {
		m.navigator.Navigate(path)
	})
}
