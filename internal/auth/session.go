package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Account is the identity of the signed-in principal.
type Account struct {
	Username    string
	DisplayName string
	TenantID    string
}

// Session is the persistable part of a credential session: enough to restore
// the account and refresh silently on the next run. Access tokens are
// deliberately never persisted.
type Session struct {
	Username     string
	DisplayName  string
	TenantID     string
	RefreshToken string
	UpdatedAt    time.Time
}

// Account returns the identity stored in the session.
func (s Session) Account() Account {
	return Account{Username: s.Username, DisplayName: s.DisplayName, TenantID: s.TenantID}
}

// SessionStore persists one credential session across runs.
type SessionStore interface {
	SaveSession(ctx context.Context, session Session) error
	LoadSession(ctx context.Context) (Session, bool, error)
	ClearSession(ctx context.Context) error
}

// Prompter presents a pending device-code prompt to the user. Its presence is
// what makes a context interactive: without one, interactive acquisition is
// refused rather than attempted headlessly.
type Prompter interface {
	PromptDeviceCode(ctx context.Context, code DeviceCode) error
}

// accountFromTokens extracts display identity from the ID token (or the
// access token when no ID token was issued). The parse is unverified: the
// claims feed the UI only, never an authorization decision.
func accountFromTokens(idToken, accessToken string) (Account, bool) {
	for _, raw := range []string{idToken, accessToken} {
		if raw == "" {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			continue
		}
		account := Account{
			Username:    claimString(claims, "preferred_username"),
			DisplayName: claimString(claims, "name"),
			TenantID:    claimString(claims, "tid"),
		}
		if account.Username == "" {
			account.Username = claimString(claims, "upn")
		}
		if account.Username != "" || account.DisplayName != "" {
			return account, true
		}
	}
	return Account{}, false
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
