package session

import (
	"context"
	"fmt"

	"arcclient/cmd/security/token"
)

// Logout signs this tab out. The remote logout is best-effort: its failure is
// logged and local state is cleared regardless. A call while another logout is
// in flight (or settling) is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	return m.logout(ctx, true, LogoutSourceUser)
}

// logoutLocal converges this tab to logged-out without calling the authority.
func (m *Manager) logoutLocal(ctx context.Context) error {
	return m.logout(ctx, false, LogoutSourcePropagated)
}

func (m *Manager) logout(ctx context.Context, remote bool, source string) error {
	m.mu.Lock()
	if m.loggingOut {
		m.mu.Unlock()
		m.log.Debug("session.logout.skip", "source", source)
		return nil
	}
	m.loggingOut = true
	m.logoutGen++
	m.mu.Unlock()
	defer m.settleLogout()

	cctx := context.WithoutCancel(ctx)

	var tok string
	if remote {
		t, err := m.creds.Token(cctx)
		if err != nil {
			m.log.Error("session.logout.token.fail", "err", err)
		}
		tok = t
	}
	if remote && tok != "" {
		if err := m.authority.Logout(ctx, m.deviceID, tok); err != nil {
			m.log.Warn("session.logout.remote.fail", "err", err, "token", token.Fingerprint(tok))
		}
	}

	var clearErr error
	if err := m.creds.Clear(cctx); err != nil {
		m.log.Error("session.credential.clear.fail", "err", err)
		clearErr = fmt.Errorf("session: clear credential: %w", err)
	}

	m.commit(func() {
		m.user = nil
		m.loading = false
	})

	m.notifier.Notify(logoutSuccessNotice)
	m.metrics.LogoutFinished(source)
	m.log.Info("session.logout.done", "source", source)
	m.navigate(m.cfg.LoginPath)
	return clearErr
}

// settleLogout releases the in-flight flag after LogoutSettle.
func (m *Manager) settleLogout() {
	release := func() {
		m.mu.Lock()
		m.loggingOut = false
		m.settle = nil
		m.mu.Unlock()
	}
	if m.cfg.LogoutSettle <= 0 {
		release()
		return
	}
	m.mu.Lock()
	m.settle = m.clock.AfterFunc(m.cfg.LogoutSettle, release)
	m.mu.Unlock()
}
