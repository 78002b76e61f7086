package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is the remote authority collaborator.
type Client interface {
	DirectLogin(ctx context.Context, token, deviceID string) (LoginResult, error)
	RenewToken(ctx context.Context, userID, deviceID string) (string, error)
	SyncDevice(ctx context.Context, deviceID, token string) error
	Logout(ctx context.Context, deviceID, token string) error
}

// HeaderDeviceID carries the device id on direct-login.
const HeaderDeviceID = "X-Device-ID"

// HTTPClient talks to the authority over JSON/HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the authority at cfg.BaseURL.
func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// DirectLogin exchanges the bearer token for a fresh session.
// A 401 is reported as ErrAuthorizationExpired.
func (c *HTTPClient) DirectLogin(ctx context.Context, token, deviceID string) (LoginResult, error) {
	var out LoginResult
	err := c.doRequest(ctx, http.MethodPost, "/auth/direct-login", token, deviceID, directLoginRequest{DeviceID: deviceID}, &out)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return LoginResult{}, fmt.Errorf("authority.DirectLogin: %w: %w", ErrAuthorizationExpired, err)
		}
		return LoginResult{}, fmt.Errorf("authority.DirectLogin: %w", err)
	}
	if strings.TrimSpace(out.User.ID) == "" {
		return LoginResult{}, fmt.Errorf("authority.DirectLogin: %w", ErrMissingUser)
	}
	return out, nil
}

// RenewToken asks for a new bearer token for userID on deviceID.
func (c *HTTPClient) RenewToken(ctx context.Context, userID, deviceID string) (string, error) {
	var out renewTokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/renew-token", "", "", renewTokenRequest{UserID: userID, DeviceID: deviceID}, &out); err != nil {
		return "", fmt.Errorf("authority.RenewToken: %w", err)
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", fmt.Errorf("authority.RenewToken: %w", ErrEmptyToken)
	}
	return out.Token, nil
}

// SyncDevice registers deviceID against the session behind token.
func (c *HTTPClient) SyncDevice(ctx context.Context, deviceID, token string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/sync-device", token, "", deviceRequest{DeviceID: deviceID}, nil); err != nil {
		return fmt.Errorf("authority.SyncDevice: %w", err)
	}
	return nil
}

// Logout revokes the session behind token on deviceID.
func (c *HTTPClient) Logout(ctx context.Context, deviceID, token string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", token, "", deviceRequest{DeviceID: deviceID}, nil); err != nil {
		return fmt.Errorf("authority.Logout: %w", err)
	}
	return nil
}

func (c *HTTPClient) doRequest(ctx context.Context, method, path, token, deviceID string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if deviceID != "" {
		req.Header.Set(HeaderDeviceID, deviceID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
