// Package auth owns the credential session and produces bearer tokens for
// the remote API with a silent-refresh-first, interactive-fallback strategy.
package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
)

// State names one position in the credential lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

// refreshSkew expires cached tokens slightly early so a token handed to the
// remote client is never on the edge of rejection.
const refreshSkew = 2 * time.Minute

// Config carries the authority coordinates for one downstream audience.
type Config struct {
	Authority string
	TenantID  string
	ClientID  string
	Scopes    []string
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient overrides the transport used against the authority.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.oauth.http = client
		}
	}
}

// WithPrompter attaches the interactive device-code prompt surface.
func WithPrompter(prompter Prompter) Option {
	return func(p *Provider) { p.prompter = prompter }
}

// WithLogger attaches a runtime logger.
func WithLogger(logger *charmLog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
			p.oauth.logger = logger
		}
	}
}

// Provider owns the process-local credential session. All session state is
// mutated under one lock so the cached token and its expiry always move
// together, and all other components observe it read-only.
type Provider struct {
	oauth    *oauthClient
	store    SessionStore
	prompter Prompter
	logger   *charmLog.Logger

	mu           sync.Mutex
	state        State
	account      *Account
	refreshToken string
	accessToken  string
	expiry       time.Time
}

// NewProvider builds a provider for one client registration. The store may
// be nil, in which case sessions last for the process lifetime only.
func NewProvider(cfg Config, store SessionStore, opts ...Option) *Provider {
	logger := charmLog.New(io.Discard)
	p := &Provider{
		oauth:  newOAuthClient(cfg.Authority, cfg.TenantID, cfg.ClientID, cfg.Scopes, nil, logger),
		store:  store,
		logger: logger,
		state:  StateUnauthenticated,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// UsePrompter swaps the interactive prompt surface once the UI exists.
func (p *Provider) UsePrompter(prompter Prompter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompter = prompter
}

// Initialize restores a prior signed-in session from the store. Restore
// failure is not an error condition: the provider simply stays
// unauthenticated and the cause is logged.
func (p *Provider) Initialize(ctx context.Context) {
	if p.store == nil {
		return
	}
	session, ok, err := p.store.LoadSession(ctx)
	if err != nil {
		p.logger.Warn("session restore failed", "err", err)
		return
	}
	if !ok {
		p.logger.Debug("no prior session to restore")
		return
	}
	account := session.Account()
	p.mu.Lock()
	p.account = &account
	p.refreshToken = session.RefreshToken
	p.state = StateAuthenticated
	p.mu.Unlock()
	p.logger.Info("session restored", "username", account.Username)
}

// SignIn runs the interactive device-code flow. It needs a prompter (the
// user-gesture context); without one it refuses rather than hanging.
func (p *Provider) SignIn(ctx context.Context) (Account, error) {
	p.mu.Lock()
	prompter := p.prompter
	if prompter == nil {
		p.mu.Unlock()
		return Account{}, ErrInteractionRequired
	}
	p.state = StateAuthenticating
	p.mu.Unlock()

	account, err := p.acquireInteractive(ctx, prompter)
	if err != nil {
		p.mu.Lock()
		if p.account == nil {
			p.state = StateUnauthenticated
		} else {
			p.state = StateAuthenticated
		}
		p.mu.Unlock()
		return Account{}, err
	}
	p.logger.Info("signed in", "username", account.Username)
	return account, nil
}

// SignOut drops the upstream session best-effort and always clears local
// state, even when revocation or store cleanup fails.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.oauth.endSession(ctx); err != nil {
		p.logger.Warn("upstream session revocation failed", "err", err)
	}

	p.mu.Lock()
	p.account = nil
	p.refreshToken = ""
	p.accessToken = ""
	p.expiry = time.Time{}
	p.state = StateUnauthenticated
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}
	if err := p.store.ClearSession(ctx); err != nil {
		p.logger.Error("session store clear failed", "err", err)
		return err
	}
	p.logger.Info("signed out")
	return nil
}

// AccessToken returns a valid bearer token, or "" when the caller must treat
// the session as unauthenticated. All failure paths resolve to "": the
// authorization decision belongs to the caller.
//
// Order of attempts: cached token, silent refresh, then one interactive
// acquisition only when the silent failure is the interaction-required class.
func (p *Provider) AccessToken(ctx context.Context) string {
	p.mu.Lock()

	if p.account == nil {
		p.mu.Unlock()
		return ""
	}
	if p.accessToken != "" && time.Now().Before(p.expiry.Add(-refreshSkew)) {
		token := p.accessToken
		p.mu.Unlock()
		return token
	}
	if p.state == StateAuthenticating {
		// An interactive grant is already pending; don't stack prompts.
		p.mu.Unlock()
		return ""
	}

	p.state = StateRefreshing
	reply, err := p.oauth.redeemRefreshToken(ctx, p.refreshToken)
	if err == nil {
		p.adoptLocked(ctx, reply)
		token := p.accessToken
		p.mu.Unlock()
		return token
	}

	var tokenErr *TokenError
	prompter := p.prompter
	if !errors.As(err, &tokenErr) || !tokenErr.InteractionRequired() || prompter == nil {
		p.logger.Warn("silent acquisition failed", "err", err)
		p.state = StateAuthenticated
		p.mu.Unlock()
		return ""
	}

	p.logger.Info("silent acquisition needs interaction, prompting", "code", tokenErr.Code)
	p.state = StateAuthenticating
	p.mu.Unlock()

	// The prompt and poll can run for minutes. The session lock stays free so
	// status reads, sign-out, and other token consumers are not held hostage.
	account, ierr := p.acquireInteractive(ctx, prompter)

	p.mu.Lock()
	defer p.mu.Unlock()
	if ierr != nil {
		p.logger.Warn("interactive acquisition failed", "err", ierr)
		if p.state == StateAuthenticating {
			p.state = StateAuthenticated
		}
		// A concurrent SignIn may have landed a token while we polled.
		if p.accessToken != "" && time.Now().Before(p.expiry.Add(-refreshSkew)) {
			return p.accessToken
		}
		return ""
	}
	p.logger.Info("token acquired interactively", "username", account.Username)
	return p.accessToken
}

// IsAuthenticated reports whether an account session exists.
func (p *Provider) IsAuthenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account != nil
}

// CurrentAccount returns the signed-in identity, when present.
func (p *Provider) CurrentAccount() (Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == nil {
		return Account{}, false
	}
	return *p.account, true
}

// State returns the lifecycle position, for status surfaces.
func (p *Provider) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// acquireInteractive runs one device-code grant without holding the lock
// during the prompt/poll, then adopts the result.
func (p *Provider) acquireInteractive(ctx context.Context, prompter Prompter) (Account, error) {
	code, err := p.oauth.requestDeviceCode(ctx)
	if err != nil {
		return Account{}, err
	}
	if err := prompter.PromptDeviceCode(ctx, *code); err != nil {
		return Account{}, err
	}
	reply, err := p.oauth.pollDeviceToken(ctx, code)
	if err != nil {
		return Account{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adoptLocked(ctx, reply)
	if p.account == nil {
		return Account{}, ErrNotAuthenticated
	}
	return *p.account, nil
}

// adoptLocked installs a successful token reply: token and expiry move
// together, the refresh token rotates when a new one is issued, and the
// persisted session is updated best-effort. Callers hold p.mu.
func (p *Provider) adoptLocked(ctx context.Context, reply *tokenReply) {
	p.accessToken = reply.AccessToken
	p.expiry = time.Now().Add(time.Duration(reply.ExpiresIn) * time.Second)
	if reply.RefreshToken != "" {
		p.refreshToken = reply.RefreshToken
	}
	if account, ok := accountFromTokens(reply.IDToken, reply.AccessToken); ok {
		p.account = &account
	}
	p.state = StateAuthenticated

	if p.store == nil || p.account == nil {
		return
	}
	session := Session{
		Username:     p.account.Username,
		DisplayName:  p.account.DisplayName,
		TenantID:     p.account.TenantID,
		RefreshToken: p.refreshToken,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := p.store.SaveSession(ctx, session); err != nil {
		p.logger.Warn("session persist failed", "err", err)
	}
}
