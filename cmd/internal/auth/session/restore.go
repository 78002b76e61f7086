package session

import (
	"context"
	"errors"

	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/auth/credential"
	"arcclient/cmd/security/token"
)

// Outcome classifies one restoration attempt.
type Outcome string

const (
	// OutcomeSkipped: another attempt was in progress or the lock was held. No side effects.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRestored: the stored credential was exchanged on the first try.
	OutcomeRestored Outcome = "restored"
	// OutcomeRenewedRestored: the first exchange hit an expired credential, renewal and retry succeeded.
	OutcomeRenewedRestored Outcome = "renewed_restored"
	// OutcomeMissingCredential: nothing usable was stored; silent redirect to login.
	OutcomeMissingCredential Outcome = "missing_credential"
	// OutcomeFailed: a terminal failure cleared the credential set.
	OutcomeFailed Outcome = "failed"
	// OutcomeCanceled: the caller's context ended mid-attempt. The credential set is left as it was.
	OutcomeCanceled Outcome = "canceled"
)

// Result reports a restoration attempt.
type Result struct {
	Outcome Outcome
	Reason  string
	// Path is the navigation intent emitted after commit ("" when skipped).
	Path   string
	Notice *Notification
	Err    error
}

// Restore runs the restoration protocol once. Only one attempt runs at a time in
// a tab, and at most one across tabs while the shared lock is honored.
func (m *Manager) Restore(ctx context.Context) (res Result) {
	m.mu.Lock()
	if m.restoring {
		m.mu.Unlock()
		return Result{Outcome: OutcomeSkipped}
	}
	m.restoring = true
	m.mu.Unlock()

	acquired, err := m.lock.TryAcquire(ctx)
	if err != nil || !acquired {
		m.mu.Lock()
		m.restoring = false
		m.mu.Unlock()
		if err != nil {
			m.log.Error("session.restore.lock.fail", "err", err)
		} else {
			m.log.Info("session.restore.skip", "reason", "lock held")
		}
		return Result{Outcome: OutcomeSkipped, Err: err}
	}

	m.log.Info("session.restore.start")
	defer func() { m.finishRestore(ctx, res) }()

	return m.restore(ctx)
}

func (m *Manager) restore(ctx context.Context) Result {
	m.mu.Lock()
	gen := m.logoutGen
	m.mu.Unlock()

	cred, err := m.creds.Load(ctx)
	if err != nil {
		if canceled(ctx, err) {
			return m.abort(err)
		}
		return m.fail(ctx, OutcomeFailed, ReasonRestorationError, &restoreFailedNotice, err)
	}
	if !cred.Complete() || m.deviceID == "" {
		return m.fail(ctx, OutcomeMissingCredential, ReasonMissingSessionData, nil, nil)
	}

	info := credential.Inspect(cred.Token)
	m.log.Debug("session.restore.credential",
		"user_id", cred.UserID,
		"token", token.Fingerprint(cred.Token),
		"token_kind", info.Kind,
		"token_expired", info.Expired(m.clock.Now()),
	)

	outcome := OutcomeRestored
	user, tok, err := m.exchange(ctx, cred.Token, gen)
	if err != nil {
		switch {
		case canceled(ctx, err):
			return m.abort(err)
		case errors.Is(err, ErrLoggedOutDuringRestore):
			return m.fail(ctx, OutcomeFailed, ReasonLoggedOut, nil, err)
		case !errors.Is(err, authority.ErrAuthorizationExpired):
			return m.fail(ctx, OutcomeFailed, ReasonRestorationError, &restoreFailedNotice, err)
		}

		m.log.Info("session.restore.renew", "user_id", cred.UserID)
		renewed, err := m.authority.RenewToken(ctx, cred.UserID, m.deviceID)
		if err == nil {
			err = m.checkNotLoggedOut(ctx, gen)
		}
		if err == nil {
			err = m.creds.SaveToken(ctx, renewed)
		}
		switch {
		case err == nil:
		case canceled(ctx, err):
			return m.abort(err)
		case errors.Is(err, ErrLoggedOutDuringRestore):
			return m.fail(ctx, OutcomeFailed, ReasonLoggedOut, nil, err)
		default:
			return m.fail(ctx, OutcomeFailed, ReasonRenewalFailed, &sessionExpiryNotice, err)
		}

		// Exactly one retry; a second expiry is terminal.
		user, tok, err = m.exchange(ctx, renewed, gen)
		switch {
		case err == nil:
		case canceled(ctx, err):
			return m.abort(err)
		case errors.Is(err, ErrLoggedOutDuringRestore):
			return m.fail(ctx, OutcomeFailed, ReasonLoggedOut, nil, err)
		default:
			return m.fail(ctx, OutcomeFailed, ReasonRetryFailed, &sessionExpiryNotice, err)
		}
		outcome = OutcomeRenewedRestored
	}

	if err := m.authority.SyncDevice(ctx, m.deviceID, tok); err != nil {
		m.metrics.SyncFailed()
		m.log.Warn("session.sync.fail", "err", err, "user_id", user.ID)
	}

	return Result{Outcome: outcome, Path: m.cfg.Destination(user, cred.LastPath)}
}

// exchange presents tok to direct-login and persists what comes back. It returns
// the token now in effect. Nothing is written when a logout landed since the
// attempt started (gen moved, or the shared flag is no longer "true").
func (m *Manager) exchange(ctx context.Context, tok string, gen uint64) (User, string, error) {
	res, err := m.authority.DirectLogin(ctx, tok, m.deviceID)
	if err != nil {
		return User{}, "", err
	}
	if res.Token != "" {
		tok = res.Token
	}

	if err := m.checkNotLoggedOut(ctx, gen); err != nil {
		return User{}, "", err
	}
	if err := m.creds.MarkLoggedIn(ctx, res.User.ID, tok); err != nil {
		return User{}, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logoutGen != gen {
		// The logout's clear may have run before our write; fail clears again.
		return User{}, "", ErrLoggedOutDuringRestore
	}
	user := res.User
	m.user = &user
	return user, tok, nil
}

func (m *Manager) checkNotLoggedOut(ctx context.Context, gen uint64) error {
	m.mu.Lock()
	moved := m.logoutGen != gen
	m.mu.Unlock()
	if moved {
		return ErrLoggedOutDuringRestore
	}
	cur, err := m.creds.Load(ctx)
	if err != nil {
		return err
	}
	if !cur.IsLoggedIn() {
		return ErrLoggedOutDuringRestore
	}
	return nil
}

// fail is the single clear-and-redirect routine for every terminal branch.
func (m *Manager) fail(ctx context.Context, outcome Outcome, reason string, notice *Notification, cause error) Result {
	if err := m.creds.Clear(context.WithoutCancel(ctx)); err != nil {
		m.log.Error("session.credential.clear.fail", "err", err)
	}
	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()

	if cause != nil {
		m.log.Warn("session.restore.fail", "reason", reason, "err", cause)
	} else {
		m.log.Info("session.restore.fail", "reason", reason)
	}
	return Result{Outcome: outcome, Reason: reason, Path: m.cfg.LoginPath, Notice: notice, Err: cause}
}

// abort ends an attempt whose context was canceled. The stored credential is
// still valid, so nothing is cleared, shown or navigated to.
func (m *Manager) abort(cause error) Result {
	m.log.Info("session.restore.canceled", "err", cause)
	return Result{Outcome: OutcomeCanceled, Reason: ReasonCanceled, Err: cause}
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// finishRestore runs on every exit path of an attempt that acquired the lock.
func (m *Manager) finishRestore(ctx context.Context, res Result) {
	cctx := context.WithoutCancel(ctx)
	if err := m.lock.Release(cctx); err != nil {
		m.log.Error("session.lock.release.fail", "err", err)
	}

	m.commit(func() {
		m.restoring = false
		m.loading = false
	})

	if res.Notice != nil {
		m.notifier.Notify(*res.Notice)
	}
	m.metrics.RestoreFinished(res.Outcome)
	m.log.Info("session.restore.done", "outcome", res.Outcome, "path", res.Path)
	m.navigate(res.Path)
}
