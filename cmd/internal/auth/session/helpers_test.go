package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"arcclient/cmd/identity"
	"arcclient/cmd/internal/auth/authority"
	"arcclient/cmd/internal/auth/credential"
	"arcclient/cmd/internal/storage"
)

type loginReply struct {
	res authority.LoginResult
	err error
}

type fakeAuthority struct {
	mu        sync.Mutex
	logins    []loginReply
	renewTok  string
	renewErr  error
	syncErr   error
	logoutErr error
	calls     []string

	// onLogin, when set, runs before DirectLogin returns.
	onLogin func()
}

func (f *fakeAuthority) record(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeAuthority) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAuthority) DirectLogin(_ context.Context, tok, deviceID string) (authority.LoginResult, error) {
	f.record("direct-login:" + tok + ":" + deviceID)
	if f.onLogin != nil {
		f.onLogin()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.logins) == 0 {
		return authority.LoginResult{}, io.ErrUnexpectedEOF
	}
	r := f.logins[0]
	f.logins = f.logins[1:]
	return r.res, r.err
}

func (f *fakeAuthority) RenewToken(_ context.Context, userID, deviceID string) (string, error) {
	f.record("renew:" + userID + ":" + deviceID)
	return f.renewTok, f.renewErr
}

func (f *fakeAuthority) SyncDevice(_ context.Context, deviceID, tok string) error {
	f.record("sync:" + deviceID + ":" + tok)
	return f.syncErr
}

func (f *fakeAuthority) Logout(_ context.Context, deviceID, tok string) error {
	f.record("logout:" + deviceID + ":" + tok)
	return f.logoutErr
}

type recorder struct {
	mu      sync.Mutex
	paths   []string
	notices []Notification
	navCh   chan string
}

func newRecorder() *recorder { return &recorder{navCh: make(chan string, 16)} }

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.navCh <- path
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) Notices() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notices...)
}

func (r *recorder) waitNav(t *testing.T) string {
	t.Helper()
	select {
	case p := <-r.navCh:
		return p
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for navigation")
		return ""
	}
}

type countingMetrics struct {
	mu       sync.Mutex
	restores map[Outcome]int
	logouts  map[string]int
	syncFail int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{restores: map[Outcome]int{}, logouts: map[string]int{}}
}

func (c *countingMetrics) RestoreFinished(o Outcome) {
	c.mu.Lock()
	c.restores[o]++
	c.mu.Unlock()
}

func (c *countingMetrics) LogoutFinished(source string) {
	c.mu.Lock()
	c.logouts[source]++
	c.mu.Unlock()
}

func (c *countingMetrics) SyncFailed() {
	c.mu.Lock()
	c.syncFail++
	c.mu.Unlock()
}

type tab struct {
	m       *Manager
	kv      *storage.MemoryStore
	auth    *fakeAuthority
	rec     *recorder
	metrics *countingMetrics
	clock   *clockwork.FakeClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RouteDelay = 0
	cfg.LogoutSettle = 0
	return cfg
}

func newTab(t *testing.T, area *storage.Area, origin string, cfg Config, auth *fakeAuthority) *tab {
	t.Helper()
	if auth == nil {
		auth = &fakeAuthority{}
	}
	tb := &tab{
		kv:      area.Tab(origin),
		auth:    auth,
		rec:     newRecorder(),
		metrics: newCountingMetrics(),
		clock:   clockwork.NewFakeClock(),
	}
	m, err := NewManager(context.Background(), cfg, Deps{
		Store:     tb.kv,
		Authority: auth,
		Navigator: tb.rec,
		Notifier:  tb.rec,
		Metrics:   tb.metrics,
		Clock:     tb.clock,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	tb.m = m
	return tb
}

// seed writes a stored session as a previous run would have left it.
func seed(t *testing.T, kv storage.SharedKeyValueStore, values map[string]string) {
	t.Helper()
	for k, v := range values {
		if err := kv.Set(context.Background(), k, v); err != nil {
			t.Fatalf("seed %s: %v", k, err)
		}
	}
}

func get(t *testing.T, kv storage.SharedKeyValueStore, key string) (string, bool) {
	t.Helper()
	v, ok, err := kv.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	return v, ok
}

func storedSession(tok string) map[string]string {
	return map[string]string{
		identity.KeyDeviceID:   "d1",
		credential.KeyToken:    tok,
		credential.KeyUserID:   "u1",
		credential.KeyLoggedIn: "true",
		credential.KeyLastPath: "/courses/42",
	}
}

func assertLockReleased(t *testing.T, kv storage.SharedKeyValueStore) {
	t.Helper()
	if _, ok := get(t, kv, credential.KeyRestoreLock); ok {
		t.Fatalf("restore lock still held")
	}
	if _, ok := get(t, kv, credential.KeyRestoreLockAt); ok {
		t.Fatalf("restore lock timestamp still set")
	}
}

func assertCleared(t *testing.T, kv storage.SharedKeyValueStore) {
	t.Helper()
	if v, _ := get(t, kv, credential.KeyLoggedIn); v != "false" {
		t.Fatalf("expected logged_in=false, got %q", v)
	}
	for _, k := range []string{credential.KeyToken, credential.KeyUserID, credential.KeyLastPath} {
		if _, ok := get(t, kv, k); ok {
			t.Fatalf("expected %s cleared", k)
		}
	}
}
