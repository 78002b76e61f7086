package session

import (
	"context"

	"arcclient/cmd/internal/auth/credential"
	"arcclient/cmd/internal/storage"
)

// StartPropagator subscribes to shared-storage changes and logs this tab out
// locally when another tab flips the logged-in flag to "false". The returned
// stop func unsubscribes; Close also stops it.
func (m *Manager) StartPropagator(ctx context.Context) (func(), error) {
	unsub, err := m.kv.Subscribe(ctx, func(ch storage.Change) {
		if !credential.IsLogoutSignal(ch) {
			return
		}
		m.log.Info("session.logout.propagated", "from", ch.Origin)
		if err := m.logoutLocal(ctx); err != nil {
			m.log.Error("session.logout.propagated.fail", "err", err)
		}
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	prev := m.stopProp
	m.stopProp = unsub
	m.mu.Unlock()
	if prev != nil {
		prev()
	}
	return unsub, nil
}
