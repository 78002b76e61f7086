package credential

import (
	"context"
	"strings"

	"arcclient/cmd/internal/storage"
)

// Storage keys owned by the Credential Store.
const (
	KeyToken    = "arc.token"
	KeyUserID   = "arc.user_id"
	KeyLoggedIn = "arc.logged_in"
	KeyLastPath = "arc.last_path"
)

// Flag values stored under KeyLoggedIn.
const (
	LoggedInTrue  = "true"
	LoggedInFalse = "false"
)

// Credential is the persisted credential set. Empty strings mean absent.
type Credential struct {
	Token    string
	UserID   string
	LoggedIn string
	LastPath string
}

// IsLoggedIn reports whether the flag holds exactly "true".
func (c Credential) IsLoggedIn() bool { return c.LoggedIn == LoggedInTrue }

// Complete reports whether the set is usable for restoration.
func (c Credential) Complete() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.UserID) != "" && c.IsLoggedIn()
}

// Store reads and writes the credential set.
type Store struct {
	kv storage.SharedKeyValueStore
}

// NewStore constructs a Store on kv.
func NewStore(kv storage.SharedKeyValueStore) *Store {
	return &Store{kv: kv}
}

// Load reads all credential fields.
func (s *Store) Load(ctx context.Context) (Credential, error) {
	var c Credential
	fields := []struct {
		key string
		dst *string
	}{
		{KeyToken, &c.Token},
		{KeyUserID, &c.UserID},
		{KeyLoggedIn, &c.LoggedIn},
		{KeyLastPath, &c.LastPath},
	}
	for _, f := range fields {
		v, _, err := s.kv.Get(ctx, f.key)
		if err != nil {
			return Credential{}, err
		}
		*f.dst = v
	}
	return c, nil
}

// Token returns the stored bearer token ("" when absent).
func (s *Store) Token(ctx context.Context) (string, error) {
	v, _, err := s.kv.Get(ctx, KeyToken)
	return v, err
}

// SaveToken replaces the stored bearer token.
func (s *Store) SaveToken(ctx context.Context, tok string) error {
	if strings.TrimSpace(tok) == "" {
		return ErrInvalidToken
	}
	return s.kv.Set(ctx, KeyToken, tok)
}

// MarkLoggedIn persists the token in effect, the user id and the logged-in flag
// in one batch, so the flag is never "true" without a token beside it.
func (s *Store) MarkLoggedIn(ctx context.Context, userID, tok string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(tok) == "" {
		return ErrInvalidToken
	}
	return s.kv.Apply(ctx, []storage.Mutation{
		storage.SetOp(KeyToken, tok),
		storage.SetOp(KeyUserID, userID),
		storage.SetOp(KeyLoggedIn, LoggedInTrue),
	})
}

// SetLastPath records the last-visited path.
func (s *Store) SetLastPath(ctx context.Context, path string) error {
	if path == "" {
		return s.kv.Remove(ctx, KeyLastPath)
	}
	return s.kv.Set(ctx, KeyLastPath, path)
}

// Clear resets the whole credential set in one batch: token, user id and last
// path are removed and the logged-in flag becomes "false". The "false" write is
// what other tabs observe as a logout signal.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Apply(ctx, []storage.Mutation{
		storage.RemoveOp(KeyToken),
		storage.RemoveOp(KeyUserID),
		storage.RemoveOp(KeyLastPath),
		storage.SetOp(KeyLoggedIn, LoggedInFalse),
	})
}

// IsLogoutSignal reports whether ch is another tab flipping the flag from
// "true" to "false". Clearing a set that was never logged in is not a logout.
func IsLogoutSignal(ch storage.Change) bool {
	return ch.Key == KeyLoggedIn && !ch.Removed && ch.OldValue == LoggedInTrue && ch.NewValue == LoggedInFalse
}
