package session

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"

	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/auth/credential"
	"arcclient/cmd/internal/storage"
)

func expiredErr() error {
	return errors.Join(authority.ErrAuthorizationExpired, &authority.HTTPError{StatusCode: 401, Message: "expired"})
}

func TestRestore_StudentFirstLoginGoesToOnboarding(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123def456"))

	auth := &fakeAuthority{logins: []loginReply{{res: authority.LoginResult{
		User: User{ID: "u1", Role: Role{RoleName: "Student"}, IsFirstLogin: true, IsTimezoneSet: true},
	}}}}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	res := tb.m.Restore(context.Background())
	if res.Outcome != OutcomeRestored {
		t.Fatalf("expected restored, got %+v", res)
	}
	if got := tb.rec.Paths(); !reflect.DeepEqual(got, []string{"/onboarding"}) {
		t.Fatalf("expected onboarding navigation, got %v", got)
	}
	if v, _ := get(t, kv, credential.KeyLastPath); v != "/courses/42" {
		t.Fatalf("last path must be preserved, got %q", v)
	}
	if v, _ := get(t, kv, credential.KeyUserID); v != "u1" {
		t.Fatalf("user id mismatch: %q", v)
	}
	if v, _ := get(t, kv, credential.KeyLoggedIn); v != "true" {
		t.Fatalf("logged in flag mismatch: %q", v)
	}
	if v, _ := get(t, kv, credential.KeyToken); v != "abc123def456" {
		t.Fatalf("token must stay when authority returns none, got %q", v)
	}

	want := []string{"direct-login:abc123def456:d1", "sync:d1:abc123def456"}
	if got := auth.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}

	snap := tb.m.Snapshot()
	if snap.Loading || snap.User == nil || snap.User.ID != "u1" || snap.DeviceID != "d1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	assertLockReleased(t, kv)
	if len(tb.rec.Notices()) != 0 {
		t.Fatalf("successful restore must not notify: %v", tb.rec.Notices())
	}
}

func TestRestore_ExpiredTokenRenewsAndRetriesOnce(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("expired"))

	auth := &fakeAuthority{
		logins: []loginReply{
			{err: expiredErr()},
			{res: authority.LoginResult{User: User{ID: "u1", Role: Role{RoleName: "teacher"}}}},
		},
		renewTok: "new1",
	}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	res := tb.m.Restore(context.Background())
	if res.Outcome != OutcomeRenewedRestored {
		t.Fatalf("expected renewed_restored, got %+v", res)
	}
	if v, _ := get(t, kv, credential.KeyToken); v != "new1" {
		t.Fatalf("expected token new1, got %q", v)
	}
	if got := tb.rec.Paths(); !reflect.DeepEqual(got, []string{"/courses/42"}) {
		t.Fatalf("expected navigation to last path, got %v", got)
	}
	want := []string{
		"direct-login:expired:d1",
		"renew:u1:d1",
		"direct-login:new1:d1",
		"sync:d1:new1",
	}
	if got := auth.Calls(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	assertLockReleased(t, kv)
}

func TestRestore_NoTokenRedirectsWithoutNetwork(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, map[string]string{"arc.device_id": "d1"})

	tb := newTab(t, area, "tab-a", testConfig(), nil)
	res := tb.m.Restore(context.Background())

	if res.Outcome != OutcomeMissingCredential || res.Reason != ReasonMissingSessionData {
		t.Fatalf("unexpected result: %+v", res)
	}
	if calls := tb.auth.Calls(); len(calls) != 0 {
		t.Fatalf("expected no network calls, got %v", calls)
	}
	if got := tb.rec.Paths(); !reflect.DeepEqual(got, []string{"/login"}) {
		t.Fatalf("expected login navigation, got %v", got)
	}
	if len(tb.rec.Notices()) != 0 {
		t.Fatalf("missing credential is silent, got %v", tb.rec.Notices())
	}
	if tb.m.Loading() {
		t.Fatalf("loading must end")
	}
	assertCleared(t, kv)
	assertLockReleased(t, kv)
}

func TestRestore_IncompleteCredentialNeverCallsAuthority(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"logged in false", func(m map[string]string) { m[credential.KeyLoggedIn] = "false" }},
		{"logged in missing", func(m map[string]string) { delete(m, credential.KeyLoggedIn) }},
		{"logged in odd value", func(m map[string]string) { m[credential.KeyLoggedIn] = "yes" }},
		{"user id missing", func(m map[string]string) { delete(m, credential.KeyUserID) }},
		{"token blank", func(m map[string]string) { m[credential.KeyToken] = "   " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			area := storage.NewArea()
			kv := area.Tab("seed")
			values := storedSession("abc123")
			tc.mutate(values)
			seed(t, kv, values)

			tb := newTab(t, area, "tab-a", testConfig(), nil)
			res := tb.m.Restore(context.Background())
			if res.Outcome != OutcomeMissingCredential {
				t.Fatalf("expected missing credential, got %+v", res)
			}
			if calls := tb.auth.Calls(); len(calls) != 0 {
				t.Fatalf("expected no network calls, got %v", calls)
			}
			if got := tb.rec.Paths(); !reflect.DeepEqual(got, []string{"/login"}) {
				t.Fatalf("expected login navigation, got %v", got)
			}
			assertCleared(t, kv)
			assertLockReleased(t, kv)
		})
	}
}

func TestRestore_TerminalFailures(t *testing.T) {
	cases := []struct {
		name      string
		auth      *fakeAuthority
		reason    string
		notice    string
		wantCalls []string
	}{
		{
			name:      "transient exchange failure",
			auth:      &fakeAuthority{logins: []loginReply{{err: &authority.HTTPError{StatusCode: 503, Message: "down"}}}},
			reason:    ReasonRestorationError,
			notice:    NoticeRestoreFailed,
			wantCalls: []string{"direct-login:abc123:d1"},
		},
		{
			name:      "renewal fails",
			auth:      &fakeAuthority{logins: []loginReply{{err: expiredErr()}}, renewErr: io.ErrUnexpectedEOF},
			reason:    ReasonRenewalFailed,
			notice:    NoticeSessionExpiry,
			wantCalls: []string{"direct-login:abc123:d1", "renew:u1:d1"},
		},
		{
			name: "second expiry is never retried",
			auth: &fakeAuthority{
				logins:   []loginReply{{err: expiredErr()}, {err: expiredErr()}, {res: authority.LoginResult{User: User{ID: "u1"}}}},
				renewTok: "new1",
			},
			reason:    ReasonRetryFailed,
			notice:    NoticeSessionExpiry,
			wantCalls: []string{"direct-login:abc123:d1", "renew:u1:d1", "direct-login:new1:d1"},
		},
		{
			name: "retry fails otherwise",
			auth: &fakeAuthority{
				logins:   []loginReply{{err: expiredErr()}, {err: io.ErrUnexpectedEOF}},
				renewTok: "new1",
			},
			reason:    ReasonRetryFailed,
			notice:    NoticeSessionExpiry,
			wantCalls: []string{"direct-login:abc123:d1", "renew:u1:d1", "direct-login:new1:d1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			area := storage.NewArea()
			kv := area.Tab("seed")
			seed(t, kv, storedSession("abc123"))

			tb := newTab(t, area, "tab-a", testConfig(), tc.auth)
			res := tb.m.Restore(context.Background())

			if res.Outcome != OutcomeFailed || res.Reason != tc.reason {
				t.Fatalf("unexpected result: %+v", res)
			}
			if res.Err == nil {
				t.Fatalf("expected cause in result")
			}
			if got := tc.auth.Calls(); !reflect.DeepEqual(got, tc.wantCalls) {
				t.Fatalf("calls = %v, want %v", got, tc.wantCalls)
			}
			notices := tb.rec.Notices()
			if len(notices) != 1 || notices[0].ID != tc.notice || notices[0].Level != LevelError {
				t.Fatalf("unexpected notices: %+v", notices)
			}
			if got := tb.rec.Paths(); !reflect.DeepEqual(got, []string{"/login"}) {
				t.Fatalf("expected login navigation, got %v", got)
			}
			snap := tb.m.Snapshot()
			if snap.User != nil || snap.Loading {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}
			assertCleared(t, kv)
			assertLockReleased(t, kv)
			if tb.metrics.restores[OutcomeFailed] != 1 {
				t.Fatalf("expected one failed restore metric, got %v", tb.metrics.restores)
			}
		})
	}
}

func TestRestore_NewTokenFromExchangeReplacesStored(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("old"))

	auth := &fakeAuthority{logins: []loginReply{{res: authority.LoginResult{
		User:  User{ID: "u1", Role: Role{RoleName: "teacher"}},
		Token: "rotated",
	}}}}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	if res := tb.m.Restore(context.Background()); res.Outcome != OutcomeRestored {
		t.Fatalf("unexpected result: %+v", res)
	}
	if v, _ := get(t, kv, credential.KeyToken); v != "rotated" {
		t.Fatalf("expected rotated token, got %q", v)
	}
	calls := auth.Calls()
	if calls[len(calls)-1] != "sync:d1:rotated" {
		t.Fatalf("sync must use the token in effect, got %v", calls)
	}
}

func TestRestore_SyncFailureIsNonFatal(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	auth := &fakeAuthority{
		logins:  []loginReply{{res: authority.LoginResult{User: User{ID: "u1", Role: Role{RoleName: "teacher"}}}}},
		syncErr: io.ErrUnexpectedEOF,
	}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	res := tb.m.Restore(context.Background())
	if res.Outcome != OutcomeRestored {
		t.Fatalf("sync failure must not fail restoration: %+v", res)
	}
	if tb.metrics.syncFail != 1 {
		t.Fatalf("expected sync failure metric")
	}
	if v, _ := get(t, kv, credential.KeyToken); v != "abc123" {
		t.Fatalf("credential must survive sync failure, got %q", v)
	}
	if tb.m.User() == nil {
		t.Fatalf("user must stay set")
	}
}

func TestRestore_SkipsWhenLockHeldByOtherTab(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))
	seed(t, kv, map[string]string{
		credential.KeyRestoreLock:   "true",
		credential.KeyRestoreLockAt: time.Now().UTC().Format(time.RFC3339Nano),
	})

	tb := newTab(t, area, "tab-a", testConfig(), nil)
	res := tb.m.Restore(context.Background())
	if res.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %+v", res)
	}
	if len(tb.auth.Calls()) != 0 || len(tb.rec.Paths()) != 0 {
		t.Fatalf("skipped restore must have no side effects")
	}
	if v, _ := get(t, kv, credential.KeyToken); v != "abc123" {
		t.Fatalf("credential must be untouched")
	}
	if _, ok := get(t, kv, credential.KeyRestoreLock); !ok {
		t.Fatalf("foreign lock must not be released")
	}
	if !tb.m.Loading() {
		t.Fatalf("loading stays until a restore in this tab completes")
	}
}

func TestRestore_BreaksStaleLockWhenConfigured(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	cfg := testConfig()
	cfg.LockStaleAfter = 30 * time.Second
	auth := &fakeAuthority{logins: []loginReply{{res: authority.LoginResult{User: User{ID: "u1"}}}}}
	tb := newTab(t, area, "tab-a", cfg, auth)

	seed(t, kv, map[string]string{
		credential.KeyRestoreLock:   "true",
		credential.KeyRestoreLockAt: tb.clock.Now().UTC().Format(time.RFC3339Nano),
	})
	tb.clock.Advance(time.Minute)

	if res := tb.m.Restore(context.Background()); res.Outcome != OutcomeRestored {
		t.Fatalf("expected stale lock to be broken, got %+v", res)
	}
	assertLockReleased(t, kv)
}

func TestRestore_OneAttemptPerTab(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	entered := make(chan struct{})
	proceed := make(chan struct{})
	auth := &fakeAuthority{
		logins:  []loginReply{{res: authority.LoginResult{User: User{ID: "u1"}}}},
		onLogin: func() { close(entered); <-proceed },
	}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	var wg sync.WaitGroup
	var first Result
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = tb.m.Restore(context.Background())
	}()
	<-entered

	if res := tb.m.Restore(context.Background()); res.Outcome != OutcomeSkipped {
		t.Fatalf("concurrent restore in the same tab must be skipped, got %+v", res)
	}
	other := newTab(t, area, "tab-b", testConfig(), nil)
	if res := other.m.Restore(context.Background()); res.Outcome != OutcomeSkipped {
		t.Fatalf("restore in another tab must be skipped while locked, got %+v", res)
	}

	close(proceed)
	wg.Wait()
	if first.Outcome != OutcomeRestored {
		t.Fatalf("first attempt: %+v", first)
	}
	assertLockReleased(t, kv)
}

func TestRestore_CleanupRunsOnPanic(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	auth := &fakeAuthority{onLogin: func() { panic("authority exploded") }}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		tb.m.Restore(context.Background())
	}()

	assertLockReleased(t, kv)
	if tb.m.Loading() {
		t.Fatalf("loading must end on panic")
	}
	// The in-progress marker is cleared, so a new attempt can run.
	auth.onLogin = nil
	auth.logins = []loginReply{{res: authority.LoginResult{User: User{ID: "u1"}}}}
	if res := tb.m.Restore(context.Background()); res.Outcome != OutcomeRestored {
		t.Fatalf("expected restore after panic, got %+v", res)
	}
}

func TestRestore_NavigatesAfterCommitAndDelay(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	cfg := testConfig()
	cfg.RouteDelay = 100 * time.Millisecond
	auth := &fakeAuthority{logins: []loginReply{{res: authority.LoginResult{User: User{ID: "u1", Role: Role{RoleName: "teacher"}}}}}}
	tb := newTab(t, area, "tab-a", cfg, auth)

	var (
		mu       sync.Mutex
		observed []Snapshot
	)
	tb.m.Observe(func(s Snapshot) {
		mu.Lock()
		observed = append(observed, s)
		mu.Unlock()
	})

	tb.m.Restore(context.Background())

	mu.Lock()
	if len(observed) != 1 || observed[0].Loading || observed[0].User == nil {
		mu.Unlock()
		t.Fatalf("observers must see the committed state first: %+v", observed)
	}
	mu.Unlock()
	if len(tb.rec.Paths()) != 0 {
		t.Fatalf("navigation must wait for the route delay")
	}

	tb.clock.Advance(100 * time.Millisecond)
	if got := tb.rec.waitNav(t); got != "/courses/42" {
		t.Fatalf("navigated to %q", got)
	}
}

func TestRestore_LogoutFromOtherTabDuringExchangeWins(t *testing.T) {
	ctx := context.Background()
	area := storage.NewArea()
	seed(t, area.Tab("seed"), storedSession("abc123"))

	a := newTab(t, area, "tab-a", testConfig(), nil)
	authB := &fakeAuthority{logins: []loginReply{{res: authority.LoginResult{User: User{ID: "u1", IsTimezoneSet: true}}}}}
	authB.onLogin = func() {
		if err := a.m.Logout(ctx); err != nil {
			t.Errorf("Logout: %v", err)
		}
		area.Wait()
	}
	b := newTab(t, area, "tab-b", testConfig(), authB)
	if _, err := b.m.StartPropagator(ctx); err != nil {
		t.Fatalf("StartPropagator: %v", err)
	}

	res := b.m.Restore(ctx)
	area.Wait()

	if res.Outcome != OutcomeFailed || res.Reason != ReasonLoggedOut {
		t.Fatalf("expected logged-out failure, got %+v", res)
	}
	if b.m.User() != nil {
		t.Fatalf("tab-b must not show a user after a concurrent logout")
	}
	assertCleared(t, b.kv)
	assertLockReleased(t, b.kv)
	for _, n := range b.rec.Notices() {
		if n.ID == NoticeRestoreFailed || n.ID == NoticeSessionExpiry {
			t.Fatalf("a lost race with logout is not a restore failure: %+v", n)
		}
	}
	if calls := authB.Calls(); !reflect.DeepEqual(calls, []string{"direct-login:abc123:d1"}) {
		t.Fatalf("no sync after a concurrent logout, got %v", calls)
	}
}

func TestRestore_LogoutInSameTabDuringExchangeWins(t *testing.T) {
	ctx := context.Background()
	area := storage.NewArea()
	seed(t, area.Tab("seed"), storedSession("abc123"))

	auth := &fakeAuthority{logins: []loginReply{{res: authority.LoginResult{User: User{ID: "u1"}, Token: "rotated"}}}}
	tb := newTab(t, area, "tab-a", testConfig(), auth)
	auth.onLogin = func() {
		if err := tb.m.Logout(ctx); err != nil {
			t.Errorf("Logout: %v", err)
		}
	}

	res := tb.m.Restore(ctx)
	if res.Reason != ReasonLoggedOut {
		t.Fatalf("expected logged-out failure, got %+v", res)
	}
	if tb.m.User() != nil {
		t.Fatalf("user set after logout")
	}
	assertCleared(t, tb.kv)
	assertLockReleased(t, tb.kv)
}

func TestRestore_CanceledContextKeepsCredential(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	auth := &fakeAuthority{onLogin: cancel, logins: []loginReply{{err: context.Canceled}}}
	tb := newTab(t, area, "tab-a", testConfig(), auth)

	res := tb.m.Restore(ctx)
	if res.Outcome != OutcomeCanceled || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected canceled outcome, got %+v", res)
	}
	if n := tb.rec.Notices(); len(n) != 0 {
		t.Fatalf("cancellation must not notify, got %v", n)
	}
	if p := tb.rec.Paths(); len(p) != 0 {
		t.Fatalf("cancellation must not navigate, got %v", p)
	}
	if v, _ := get(t, kv, credential.KeyToken); v != "abc123" {
		t.Fatalf("token must survive cancellation, got %q", v)
	}
	if v, _ := get(t, kv, credential.KeyLoggedIn); v != "true" {
		t.Fatalf("logged_in must survive cancellation, got %q", v)
	}
	if tb.m.Loading() {
		t.Fatalf("loading must end after an attempt")
	}
	if tb.metrics.restores[OutcomeCanceled] != 1 {
		t.Fatalf("expected canceled metric: %v", tb.metrics.restores)
	}
	assertLockReleased(t, kv)

	// The preserved credential restores on the next attempt.
	auth.onLogin = nil
	auth.logins = []loginReply{{res: authority.LoginResult{User: User{ID: "u1", IsTimezoneSet: true}}}}
	if res := tb.m.Restore(context.Background()); res.Outcome != OutcomeRestored {
		t.Fatalf("expected restored on retry, got %+v", res)
	}
}
