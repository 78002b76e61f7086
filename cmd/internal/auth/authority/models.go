package authority

// Role is the user's role as reported by the authority.
type Role struct {
	RoleName string `json:"role_name"`
}

// User is the server-supplied profile. Fields the client does not interpret are
// kept in Profile.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	Role          Role           `json:"role"`
	IsFirstLogin  bool           `json:"is_first_login"`
	IsTimezoneSet bool           `json:"is_timezone_set"`
	Profile       map[string]any `json:"profile,omitempty"`
}

// LoginResult is the outcome of a successful direct-login.
// Token is empty when the authority keeps the presented token.
type LoginResult struct {
	User  User   `json:"user"`
	Token string `json:"token,omitempty"`
}

type directLoginRequest struct {
	DeviceID string `json:"device_id"`
}

type renewTokenRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

type renewTokenResponse struct {
	Token string `json:"token"`
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}
