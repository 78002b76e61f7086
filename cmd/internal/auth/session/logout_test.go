package session

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/storage"
)

func TestLogout_ClearsEvenWhenRemoteFails(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	auth := &fakeAuthority{logoutErr: io.ErrUnexpectedEOF}
	tb := newTab(t, area, "tab-a", testConfig(), auth)
	tb.m.SetUser(&User{ID: "u1"})

	if err := tb.m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if got := auth.Calls(); !reflect.DeepEqual(got, []string{"logout:d1:abc123"}) {
		t.Fatalf("calls = %v", got)
	}
	assertCleared(t, kv)
	if v, ok := get(t, kv, "arc.device_id"); !ok || v != "d1" {
		t.Fatalf("device id must survive logout, got %q", v)
	}
	if tb.m.User() != nil {
		t.Fatalf("user must be cleared")
	}
	notices := tb.rec.Notices()
	if len(notices) != 1 || notices[0].ID != NoticeLogoutSuccess || notices[0].Level != LevelSuccess {
		t.Fatalf("unexpected notices: %+v", notices)
	}
	if got := tb.rec.Paths(); !reflect.DeepEqual(got, []string{"/login"}) {
		t.Fatalf("expected login navigation, got %v", got)
	}
	if tb.metrics.logouts[LogoutSourceUser] != 1 {
		t.Fatalf("expected user logout metric: %v", tb.metrics.logouts)
	}
}

func TestLogout_NoTokenSkipsRemote(t *testing.T) {
	area := storage.NewArea()
	tb := newTab(t, area, "tab-a", testConfig(), nil)

	if err := tb.m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if calls := tb.auth.Calls(); len(calls) != 0 {
		t.Fatalf("expected no remote call without token, got %v", calls)
	}
	assertCleared(t, tb.kv)
}

func TestLogout_InFlightGuardAndSettle(t *testing.T) {
	area := storage.NewArea()
	kv := area.Tab("seed")
	seed(t, kv, storedSession("abc123"))

	cfg := testConfig()
	cfg.LogoutSettle = time.Second
	tb := newTab(t, area, "tab-a", cfg, nil)

	if err := tb.m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	seed(t, kv, map[string]string{"arc.token": "again"})

	// Still settling: a repeated trigger is absorbed.
	if err := tb.m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if n := len(tb.auth.Calls()); n != 1 {
		t.Fatalf("expected one remote logout while settling, got %d", n)
	}
	if n := len(tb.rec.Notices()); n != 1 {
		t.Fatalf("expected one notification while settling, got %d", n)
	}

	tb.clock.Advance(time.Second)
	waitFor(t, func() bool {
		tb.m.mu.Lock()
		defer tb.m.mu.Unlock()
		return !tb.m.loggingOut
	})

	if err := tb.m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if got := tb.auth.Calls(); !reflect.DeepEqual(got, []string{"logout:d1:abc123", "logout:d1:again"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestCompleteLogin(t *testing.T) {
	area := storage.NewArea()
	tb := newTab(t, area, "tab-a", testConfig(), nil)

	if err := tb.m.CompleteLogin(context.Background(), authority.LoginResult{User: User{ID: "u9"}}); err != ErrInvalidLogin {
		t.Fatalf("expected ErrInvalidLogin, got %v", err)
	}

	var seen []Snapshot
	stop := tb.m.Observe(func(s Snapshot) { seen = append(seen, s) })
	defer stop()

	if err := tb.m.CompleteLogin(context.Background(), authority.LoginResult{User: User{ID: "u9"}, Token: "tok9"}); err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	if v, _ := get(t, tb.kv, "arc.token"); v != "tok9" {
		t.Fatalf("token not persisted: %q", v)
	}
	if v, _ := get(t, tb.kv, "arc.logged_in"); v != "true" {
		t.Fatalf("flag not set: %q", v)
	}
	snap := tb.m.Snapshot()
	if snap.Loading || snap.User == nil || snap.User.ID != "u9" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(seen) != 1 || seen[0].User.ID != "u9" {
		t.Fatalf("observer not notified: %+v", seen)
	}
}

func TestSetUserAndObserve(t *testing.T) {
	tb := newTab(t, storage.NewArea(), "tab-a", testConfig(), nil)

	var calls int
	stop := tb.m.Observe(func(Snapshot) { calls++ })
	tb.m.SetUser(&User{ID: "u1"})

	u := tb.m.User()
	u.ID = "mutated"
	if tb.m.User().ID != "u1" {
		t.Fatalf("User must return a copy")
	}

	stop()
	tb.m.SetUser(nil)
	if calls != 1 {
		t.Fatalf("expected one observer call before stop, got %d", calls)
	}
	if tb.m.User() != nil {
		t.Fatalf("expected user cleared")
	}
}

func TestTrackPath(t *testing.T) {
	tb := newTab(t, storage.NewArea(), "tab-a", testConfig(), nil)
	ctx := context.Background()

	for _, p := range []string{"/courses/1", "/login", "/onboarding", ""} {
		if err := tb.m.TrackPath(ctx, p); err != nil {
			t.Fatalf("TrackPath(%q): %v", p, err)
		}
	}
	if v, _ := get(t, tb.kv, "arc.last_path"); v != "/courses/1" {
		t.Fatalf("expected /courses/1, got %q", v)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
