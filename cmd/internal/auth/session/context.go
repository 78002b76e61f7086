package session

import (
	"context"
	"maps"
	"sort"

	"arcclient/cmd/internal/auth/authority"
)

// User is the server-supplied profile held in the session context.
type User = authority.User

// Role is the role part of User.
type Role = authority.Role

// Snapshot is the session context exposed to the rest of the application.
type Snapshot struct {
	User     *User  `json:"user"`
	Loading  bool   `json:"loading"`
	DeviceID string `json:"device_id"`
}

// LoggedIn reports whether a user is set.
func (s Snapshot) LoggedIn() bool { return s.User != nil }

// Snapshot returns a copy of the current session context.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{Loading: m.loading, DeviceID: m.deviceID}
	s.User = cloneUser(m.user)
	return s
}

// User returns the current user, or nil.
func (m *Manager) User() *User { return m.Snapshot().User }

// Loading reports whether restoration has not completed yet.
func (m *Manager) Loading() bool { return m.Snapshot().Loading }

// DeviceID returns the device identifier.
func (m *Manager) DeviceID() string { return m.deviceID }

// SetUser replaces the current user (nil clears it) and notifies observers.
func (m *Manager) SetUser(u *User) {
	m.commit(func() { m.user = cloneUser(u) })
}

// Observe registers fn for every committed change of the session context.
// The returned func removes the observer.
func (m *Manager) Observe(fn func(Snapshot)) func() {
	m.mu.Lock()
	m.obsSeq++
	id := m.obsSeq
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// CompleteLogin installs the result of an explicit login: token, user id and
// logged-in flag are persisted, the user is set and loading ends.
func (m *Manager) CompleteLogin(ctx context.Context, res authority.LoginResult) error {
	if res.Token == "" || res.User.ID == "" {
		return ErrInvalidLogin
	}
	if err := m.creds.MarkLoggedIn(ctx, res.User.ID, res.Token); err != nil {
		return err
	}
	user := cloneUser(&res.User)
	m.commit(func() {
		m.user = user
		m.loading = false
	})
	m.log.Info("session.login.ok", "user_id", user.ID)
	return nil
}

// TrackPath records path as the last-visited path. The login and onboarding
// entry points are never recorded.
func (m *Manager) TrackPath(ctx context.Context, path string) error {
	if path == "" || path == m.cfg.LoginPath || path == m.cfg.OnboardingPath {
		return nil
	}
	return m.creds.SetLastPath(ctx, path)
}

// commit applies mutate under the state lock and then notifies observers
// synchronously with the resulting snapshot.
func (m *Manager) commit(mutate func()) Snapshot {
	m.mu.Lock()
	mutate()
	snap := m.snapshotLocked()
	ids := make([]uint64, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	obs := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		obs = append(obs, m.observers[id])
	}
	m.mu.Unlock()

	for _, fn := range obs {
		fn(snap)
	}
	return snap
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Profile = maps.Clone(u.Profile)
	return &c
}
