package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// interactionRequiredCodes lists the OAuth error codes that mean the cached
// session cannot be refreshed silently and only a new interactive grant can
// recover. Any other code is a hard or transient failure and is never
// escalated to a prompt.
var interactionRequiredCodes = []string{
	"invalid_grant",
	"interaction_required",
	"consent_required",
	"login_required",
	"expired_token",
	"authorization_declined",
}

// TokenError is a non-2xx reply from the authority's token endpoint.
type TokenError struct {
	Status      int
	Code        string
	Description string
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint %d %s", e.Status, e.Code)
}

// InteractionRequired reports whether the failure class requires a new
// interactive grant rather than a retry.
func (e *TokenError) InteractionRequired() bool {
	return slices.Contains(interactionRequiredCodes, e.Code)
}

// DeviceCode carries one pending device-authorization grant.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Message         string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// tokenReply is a successful token-endpoint response.
type tokenReply struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// tokenErrorReply is the wire shape of a token-endpoint error.
type tokenErrorReply struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// deviceCodeReply is the wire shape of a device-authorization response.
type deviceCodeReply struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	Message         string `json:"message"`
	Interval        int    `json:"interval"`
	ExpiresIn       int    `json:"expires_in"`
}

// oauthClient drives the authority's OAuth2 v2 endpoints: refresh-token
// redemption for silent acquisition and the device-authorization grant for
// interactive sign-in.
type oauthClient struct {
	authority string
	tenant    string
	clientID  string
	scopes    []string
	http      *http.Client
	logger    *charmLog.Logger
}

func newOAuthClient(authority, tenant, clientID string, scopes []string, httpClient *http.Client, logger *charmLog.Logger) *oauthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	return &oauthClient{
		authority: strings.TrimRight(authority, "/"),
		tenant:    tenant,
		clientID:  clientID,
		scopes:    normalizeScopes(scopes),
		http:      httpClient,
		logger:    logger,
	}
}

// normalizeScopes ensures the OpenID scopes a refreshable delegated session
// needs are always requested alongside the resource scope.
func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes)+3)
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || slices.Contains(out, scope) {
			continue
		}
		out = append(out, scope)
	}
	for _, required := range []string{"openid", "profile", "offline_access"} {
		if !slices.Contains(out, required) {
			out = append(out, required)
		}
	}
	return out
}

func (c *oauthClient) tokenURL() string {
	return c.authority + "/" + c.tenant + "/oauth2/v2.0/token"
}

func (c *oauthClient) deviceCodeURL() string {
	return c.authority + "/" + c.tenant + "/oauth2/v2.0/devicecode"
}

func (c *oauthClient) logoutURL() string {
	return c.authority + "/" + c.tenant + "/oauth2/v2.0/logout"
}

// redeemRefreshToken performs one silent acquisition.
func (c *oauthClient) redeemRefreshToken(ctx context.Context, refreshToken string) (*tokenReply, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &TokenError{Status: http.StatusBadRequest, Code: "invalid_grant", Description: "no refresh token in session"}
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"scope":         {strings.Join(c.scopes, " ")},
	}
	return c.postTokenForm(ctx, form)
}

// requestDeviceCode starts one device-authorization grant.
func (c *oauthClient) requestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scope":     {strings.Join(c.scopes, " ")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.deviceCodeURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeTokenError(resp)
	}
	var reply deviceCodeReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode device code response: %w", err)
	}
	interval := time.Duration(reply.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DeviceCode{
		DeviceCode:      reply.DeviceCode,
		UserCode:        reply.UserCode,
		VerificationURI: reply.VerificationURI,
		Message:         reply.Message,
		Interval:        interval,
		ExpiresAt:       time.Now().Add(time.Duration(reply.ExpiresIn) * time.Second),
	}, nil
}

// pollDeviceToken polls the token endpoint until the user completes or
// abandons the device-code prompt. A dismissed or expired prompt resolves to
// an error; it never hangs past the code's lifetime.
func (c *oauthClient) pollDeviceToken(ctx context.Context, code *DeviceCode) (*tokenReply, error) {
	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {code.DeviceCode},
		"client_id":   {c.clientID},
	}
	interval := code.Interval
	for {
		reply, err := c.postTokenForm(ctx, form)
		if err == nil {
			return reply, nil
		}
		var tokenErr *TokenError
		if !errors.As(err, &tokenErr) {
			return nil, err
		}
		switch tokenErr.Code {
		case "authorization_pending":
			// Keep waiting.
		case "slow_down":
			interval += 5 * time.Second
		case "authorization_declined":
			return nil, fmt.Errorf("%w: %s", ErrSignInDeclined, tokenErr.Description)
		case "expired_token":
			return nil, fmt.Errorf("%w: %s", ErrSignInExpired, tokenErr.Description)
		default:
			return nil, err
		}
		if !code.ExpiresAt.IsZero() && time.Now().After(code.ExpiresAt) {
			return nil, ErrSignInExpired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// endSession asks the authority to drop the upstream session. Best effort:
// callers clear local state regardless of the outcome.
func (c *oauthClient) endSession(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.logoutURL(), nil)
	if err != nil {
		return fmt.Errorf("create end session request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("end session: status %d", resp.StatusCode)
	}
	return nil
}

// postTokenForm posts one form to the token endpoint and decodes the reply.
func (c *oauthClient) postTokenForm(ctx context.Context, form url.Values) (*tokenReply, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeTokenError(resp)
	}
	var reply tokenReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if reply.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &reply, nil
}

// decodeTokenError turns a non-2xx token-endpoint reply into a TokenError.
func decodeTokenError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var reply tokenErrorReply
	if err := json.Unmarshal(body, &reply); err != nil || reply.Error == "" {
		return &TokenError{Status: resp.StatusCode, Code: "unknown_error", Description: strings.TrimSpace(string(body))}
	}
	return &TokenError{Status: resp.StatusCode, Code: reply.Error, Description: reply.ErrorDescription}
}
