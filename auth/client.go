// Package auth implements the browser-side OAuth 2.0 authorization code flow
// with PKCE: discovery, redirect, callback completion, refresh and logout.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"scspa/events"
	"scspa/metrics"
	"scspa/platform"
)

// Event names emitted by Client.
type Event string

const (
	EventAuthStateLoaded Event = "auth-state-loaded"
	EventNewAccessToken  Event = "new-access-token"
)

// Initial actions sent as authorization_initial_action.
const (
	ActionLogin  = "login"
	ActionSignup = "signup"
)

// Options configures a Client.
type Options struct {
	// Domain is the tenant issuer URL used for discovery.
	Domain      string
	ClientID    string
	RedirectURI string

	// AfterCallback runs after a callback has been completed. Defaults to
	// navigating to "/".
	AfterCallback func() error
	// OAuthErrorHandler receives OAuth protocol errors. Defaults to an alert
	// through the browser when it implements platform.Alerter.
	OAuthErrorHandler func(*OAuthError)

	Storage    platform.Storage
	Browser    platform.Browser
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	Now        func() time.Time
}

// Client is the token lifecycle state machine.
type Client struct {
	opts    Options
	logger  *slog.Logger
	browser platform.Browser
	store   *TokenStore
	session *Session
	emitter events.Emitter[Event]
	metrics *metrics.Collector
	now     func() time.Time

	serverMu sync.Mutex
	server   *AuthServer

	// writeMu serialises session writes with their refresh token writes.
	writeMu  sync.Mutex
	refreshG singleflight.Group
}

// New validates opts and returns a client in the idle state. No network call is made.
func New(opts Options) (*Client, error) {
	if opts.Browser == nil {
		return nil, ErrNoBrowser
	}
	if opts.Storage == nil {
		return nil, ErrNoStorage
	}
	if opts.Domain == "" || opts.ClientID == "" || opts.RedirectURI == "" {
		return nil, fmt.Errorf("domain, client id and redirect uri are required")
	}

	c := &Client{
		opts:    opts,
		logger:  opts.Logger,
		browser: opts.Browser,
		store:   NewTokenStore(opts.Storage),
		session: &Session{},
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.opts.HTTPClient == nil {
		c.opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.opts.AfterCallback == nil {
		c.opts.AfterCallback = func() error { return c.browser.Navigate("/") }
	}
	if c.opts.OAuthErrorHandler == nil {
		c.opts.OAuthErrorHandler = c.alertOAuthError
	}
	return c, nil
}

func (c *Client) alertOAuthError(e *OAuthError) {
	c.logger.Error("oauth error", "error", e.Code, "description", e.Description)
	if a, ok := c.browser.(platform.Alerter); ok {
		a.Alert(fmt.Sprintf("%s: %s", e.Code, e.Description))
	}
}

// On subscribes handler to event, replacing any previous subscriber.
func (c *Client) On(event Event, handler events.Handler) {
	c.emitter.On(event, handler)
}

// Session returns the client's session state object.
func (c *Client) Session() *Session {
	return c.session
}

// User returns the current user, or nil when no token exchange has produced one.
func (c *Client) User() *User {
	return c.session.Snapshot().User
}

// AuthServer returns the discovered metadata, if discovery has completed.
func (c *Client) AuthServer() (*AuthServer, bool) {
	c.serverMu.Lock()
	defer c.serverMu.Unlock()
	return c.server, c.server != nil
}

// initAuthServer discovers the authorization server once. A discovery failure
// is logged and leaves the metadata absent; missing S256 support is fatal.
func (c *Client) initAuthServer(ctx context.Context) error {
	c.serverMu.Lock()
	defer c.serverMu.Unlock()
	if c.server != nil {
		return nil
	}

	srv, err := discover(ctx, c.opts.HTTPClient, c.opts.Domain, c.opts.ClientID, c.now)
	if err != nil {
		c.metrics.Discovery(metrics.OutcomeError)
		c.logger.Error("could not discover OIDC server", "issuer", c.opts.Domain, "error", err)
		return nil
	}
	if !srv.SupportsS256() {
		c.metrics.Discovery(metrics.OutcomeError)
		return ErrPKCEUnsupported
	}
	c.metrics.Discovery(metrics.OutcomeSuccess)
	c.server = srv
	return nil
}

func (c *Client) ensureAuthServer(ctx context.Context) (*AuthServer, error) {
	if err := c.initAuthServer(ctx); err != nil {
		return nil, err
	}
	srv, ok := c.AuthServer()
	if !ok {
		return nil, ErrNoAuthServer
	}
	return srv, nil
}

// LoadAuthState completes a pending callback when the current URL is the
// redirect URI carrying code or error, otherwise attempts a silent refresh when a
// refresh token is stored. EventAuthStateLoaded is emitted exactly once when the
// chosen path has settled, whatever the outcome.
func (c *Client) LoadAuthState(ctx context.Context) error {
	defer c.emitter.Emit(EventAuthStateLoaded, nil)

	current := c.browser.CurrentURL()
	if u, err := url.Parse(current); err == nil && strings.HasPrefix(current, c.opts.RedirectURI) {
		q := u.Query()
		if q.Get("code") != "" || q.Get("error") != "" {
			return c.completeCallback(ctx, u)
		}
	}

	_, ok, err := c.store.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := c.refresh(ctx); err != nil {
		c.logger.Error("silent refresh failed", "error", err)
	}
	return nil
}

// GetAccessToken returns the cached access token. An expired token is refreshed
// once; if that fails the error wraps ErrTokenExpired. With no cached token and
// expiry it returns "" and a nil error.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	st := c.session.Snapshot()
	if st.AccessToken == "" || st.AccessTokenExpiry.IsZero() {
		return "", nil
	}
	if !c.now().Before(st.AccessTokenExpiry) {
		if err := c.refreshExpired(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
	}
	return c.session.Snapshot().AccessToken, nil
}

// LoginViaRedirect navigates to the authorization endpoint for a login.
func (c *Client) LoginViaRedirect(ctx context.Context) error {
	return c.redirect(ctx, ActionLogin)
}

// SignupViaRedirect navigates to the authorization endpoint for a signup.
func (c *Client) SignupViaRedirect(ctx context.Context) error {
	return c.redirect(ctx, ActionSignup)
}

func (c *Client) redirect(ctx context.Context, action string) error {
	authURL, err := c.AuthorizationURL(ctx, action)
	if err != nil {
		return err
	}
	return c.browser.Navigate(authURL)
}

// AuthorizationURL persists a fresh PKCE verifier and returns the authorization
// request URL. No state parameter is sent.
func (c *Client) AuthorizationURL(ctx context.Context, action string) (string, error) {
	srv, err := c.ensureAuthServer(ctx)
	if err != nil {
		return "", err
	}
	if srv.AuthorizationEndpoint == "" {
		return "", ErrNoAuthEndpoint
	}

	verifier := oauth2.GenerateVerifier()
	if err := c.store.SetCodeVerifier(ctx, verifier); err != nil {
		return "", err
	}

	cfg := srv.oauthConfig(c.opts.ClientID, c.opts.RedirectURI)
	return cfg.AuthCodeURL("",
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("authorization_initial_action", action),
	), nil
}

// LogoutViaRedirect clears the stored refresh token and the session, then
// navigates to the end-session endpoint. It does nothing when the server has no
// end-session endpoint or no ID token is cached.
func (c *Client) LogoutViaRedirect(ctx context.Context, postLogoutRedirectURI string) error {
	srv, ok := c.AuthServer()
	if !ok {
		return ErrNoAuthServer
	}
	idToken := c.session.Snapshot().IDToken
	if srv.EndSessionEndpoint == "" || idToken == "" {
		return nil
	}

	u, err := url.Parse(srv.EndSessionEndpoint)
	if err != nil {
		return fmt.Errorf("parse end session endpoint: %w", err)
	}
	q := u.Query()
	q.Set("id_token_hint", idToken)
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	u.RawQuery = q.Encode()

	if err := c.clearSession(ctx); err != nil {
		return err
	}
	return c.browser.Navigate(u.String())
}

func (c *Client) clearSession(ctx context.Context) error {
	c.writeMu.Lock()
	c.session.clear()
	err := c.store.SetRefreshToken(ctx, "")
	c.writeMu.Unlock()

	c.emitter.Emit(EventNewAccessToken, "")
	return err
}
