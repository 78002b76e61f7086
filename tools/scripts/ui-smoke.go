// Package main is a CI-friendly smoke test for the arcclient UI bridge.
//
// It validates:
//   - handshake + subprotocol selection
//   - hello/ack with tab and device ids
//   - initial session snapshot
//   - path_visited is accepted
//   - optionally, logout_request fans navigate(/login) out to a second client
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/pflag"

	v1 "arcclient/shared/contracts/ui/v1"
)

const maxReadBytes = 1 << 20

type smokeClient struct {
	name string
	conn *websocket.Conn
	ack  v1.HelloAckPayload

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL     = pflag.String("url", "ws://127.0.0.1:7420/ws", "UI bridge WebSocket URL")
		origin    = pflag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		path      = pflag.String("path", "/dashboard", "path reported with path_visited")
		logout    = pflag.Bool("logout", false, "send logout_request and expect navigate on both clients")
		loginPath = pflag.String("login-path", "/login", "expected navigate target after logout")
		timeout   = pflag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose   = pflag.BoolP("verbose", "v", false, "verbose output")
	)
	pflag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid --url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid --origin: %v", err)
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *timeout)
	defer closeWS(a.conn)
	b := mustConnect(root, "B", *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	if a.ack.TabID != b.ack.TabID || a.ack.DeviceID != b.ack.DeviceID {
		fatalf("clients of one agent disagree: A=%+v B=%+v", a.ack, b.ack)
	}

	snap := a.mustSnapshot(root, *timeout)
	if *verbose {
		fmt.Printf("connected: A=%s B=%s tab=%s device=%s loading=%v user=%v\n",
			a.ack.ConnID, b.ack.ConnID, a.ack.TabID, a.ack.DeviceID, snap.Loading, snap.User != nil)
	}
	_ = b.mustSnapshot(root, *timeout)

	mustWrite(root, a, v1.TypePathVisited, v1.PathVisitedPayload{Path: *path}, *timeout)
	a.mustAssertNoType(root, v1.TypeError, 500*time.Millisecond)

	if *logout {
		skip := map[string]struct{}{v1.TypeSessionSnapshot: {}, v1.TypeNotify: {}}
		mustWrite(root, a, v1.TypeLogoutRequest, struct{}{}, *timeout)
		for _, c := range []*smokeClient{a, b} {
			env := c.mustReadUntilType(root, v1.TypeNavigate, *timeout, skip)
			var p v1.NavigatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				fatalf("unmarshal navigate (%s): %v", c.name, err)
			}
			if p.Path != *loginPath {
				fatalf("navigate (%s): got=%q want=%q", c.name, p.Path, *loginPath)
			}
		}
	}

	fmt.Printf("OK: tab=%s device=%s A=%s B=%s logout=%v\n", a.ack.TabID, a.ack.DeviceID, a.ack.ConnID, b.ack.ConnID, *logout)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch (%s): got=%q want=%q", name, got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 64),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	mustWrite(parent, c, v1.TypeHello, v1.HelloPayload{}, stepTimeout)
	// A broadcast can race the ack once the client joined the hub.
	skip := map[string]struct{}{v1.TypeSessionSnapshot: {}, v1.TypeNotify: {}, v1.TypeNavigate: {}}
	env := c.mustReadUntilType(parent, v1.TypeHelloAck, stepTimeout, skip)
	if err := json.Unmarshal(env.Payload, &c.ack); err != nil {
		fatalf("unmarshal hello_ack (%s): %v", name, err)
	}
	if c.ack.ConnID == "" || c.ack.TabID == "" || c.ack.DeviceID == "" {
		fatalf("hello_ack incomplete (%s): %+v", name, c.ack)
	}
	return c
}

func (c *smokeClient) mustSnapshot(parent context.Context, stepTimeout time.Duration) v1.SessionSnapshotPayload {
	env := c.mustReadUntilType(parent, v1.TypeSessionSnapshot, stepTimeout, nil)
	var p v1.SessionSnapshotPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal session_snapshot (%s): %v", c.name, err)
	}
	if p.DeviceID != c.ack.DeviceID {
		fatalf("snapshot device mismatch (%s): got=%q want=%q", c.name, p.DeviceID, c.ack.DeviceID)
	}
	return p
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.fail(fmt.Errorf("bad envelope: %w", err))
				return
			}
			select {
			case c.inbox <- env:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func (c *smokeClient) mustAssertNoType(parent context.Context, forbiddenType string, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection error (%s): %v", c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed unexpectedly (%s)", c.name)
			}
			if env.Type == forbiddenType {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("unexpected %s received (%s): code=%q msg=%q", forbiddenType, c.name, ep.Code, ep.Message)
			}
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if skipTypes != nil {
				if _, ok := skipTypes[env.Type]; ok {
					continue
				}
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWrite(parent context.Context, c *smokeClient, typ string, payload any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		fatalf("marshal payload: %v", err)
	}
	env := v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      fmt.Sprintf("%s-%s-%d", c.name, typ, time.Now().UnixNano()),
		TS:      time.Now().UTC(),
		Payload: raw,
	}
	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write %s (%s): %v", typ, c.name, err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
