// Package v1 defines the Arc UI Bridge Protocol v1 contract.
//
// The bridge connects the client agent to the UI shell of one tab: the agent
// pushes navigation intents, notifications and session snapshots; the shell
// sends user commands (logout, restore, visited paths).
//
// This package is dependency-light and shared by the agent and its smoke client.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Subprotocol is negotiated on the websocket handshake.
const Subprotocol = "arc.ui.v1"

// Type constants (wire-stable).
const (
	// TypeHello starts the bridge handshake (shell -> agent).
	TypeHello = "hello"
	// TypeHelloAck acknowledges the handshake (agent -> shell).
	TypeHelloAck = "hello_ack"

	// TypeSessionSnapshot carries the committed session context (agent -> shell).
	TypeSessionSnapshot = "session_snapshot"
	// TypeNavigate is a navigation intent (agent -> shell).
	TypeNavigate = "navigate"
	// TypeNotify is a user-facing notification (agent -> shell).
	TypeNotify = "notify"

	// TypeLogoutRequest asks the agent to log the tab out (shell -> agent).
	TypeLogoutRequest = "logout_request"
	// TypeRestoreRequest asks the agent to run session restoration (shell -> agent).
	TypeRestoreRequest = "restore_request"
	// TypePathVisited reports the path the shell is showing (shell -> agent).
	TypePathVisited = "path_visited"

	// TypeError is a generic error envelope (agent -> shell).
	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeHello,
		TypeHelloAck,
		TypeSessionSnapshot,
		TypeNavigate,
		TypeNotify,
		TypeLogoutRequest,
		TypeRestoreRequest,
		TypePathVisited,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ---- Payloads ----

// HelloPayload is sent by the shell to open the bridge.
type HelloPayload struct{}

// HelloAckPayload carries the bridge connection id and the tab it is bound to.
type HelloAckPayload struct {
	ConnID   string `json:"conn_id"`
	TabID    string `json:"tab_id"`
	DeviceID string `json:"device_id"`
}

// UserPayload is the part of the user profile the shell renders.
type UserPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	RoleName      string `json:"role_name,omitempty"`
	IsFirstLogin  bool   `json:"is_first_login"`
	IsTimezoneSet bool   `json:"is_timezone_set"`
}

// SessionSnapshotPayload mirrors the session context.
type SessionSnapshotPayload struct {
	User     *UserPayload `json:"user"`
	Loading  bool         `json:"loading"`
	DeviceID string       `json:"device_id"`
}

// NavigatePayload is a navigation intent.
type NavigatePayload struct {
	Path string `json:"path"`
}

// NotifyPayload is a notification. ID is stable per message kind; shells
// replace a visible notification with the same ID instead of stacking it.
type NotifyPayload struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PathVisitedPayload reports the shell's current path.
type PathVisitedPayload struct {
	Path string `json:"path"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
