// Package sdk composes the auth client, the account and shop panels and the
// account-management API into the object a host page works with.
package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scspa/accountsapi"
	"scspa/auth"
	"scspa/bridge"
	"scspa/metrics"
	"scspa/platform"
)

// DefaultUIBaseURL hosts the account and shop panel pages.
const DefaultUIBaseURL = "https://ui.saascannon.com"

// Options configures New.
type Options struct {
	Domain      string
	ClientID    string
	RedirectURI string
	// UIBaseURL defaults to DefaultUIBaseURL.
	UIBaseURL string

	AfterCallback     func() error
	OAuthErrorHandler func(*auth.OAuthError)

	Storage   platform.Storage
	Browser   platform.Browser
	Frames    bridge.FrameHost
	Presenter bridge.PresenterFactory

	// Routes are the API capabilities exposed to panels. Defaults to accountsapi.Routes.
	Routes []accountsapi.Route

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Collector
	Now        func() time.Time
}

// AccountManagement is the account settings panel plus direct API access.
type AccountManagement struct {
	*bridge.AccountPanel
	API *accountsapi.Client
}

// ShopManagement is the shop panel plus direct API access.
type ShopManagement struct {
	*bridge.ShopPanel
	API *accountsapi.Client
}

// SDK is the composed client.
type SDK struct {
	*auth.Client

	AccountManagement *AccountManagement
	ShopManagement    *ShopManagement
	Capabilities      *bridge.Capabilities
	Router            *bridge.Router

	logger *slog.Logger
}

// New wires the SDK. No network call is made.
func New(opts Options) (*SDK, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UIBaseURL == "" {
		opts.UIBaseURL = DefaultUIBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	routes := opts.Routes
	if routes == nil {
		routes = accountsapi.Routes
	}

	client, err := auth.New(auth.Options{
		Domain:            opts.Domain,
		ClientID:          opts.ClientID,
		RedirectURI:       opts.RedirectURI,
		AfterCallback:     opts.AfterCallback,
		OAuthErrorHandler: opts.OAuthErrorHandler,
		Storage:           opts.Storage,
		Browser:           opts.Browser,
		HTTPClient:        opts.HTTPClient,
		Logger:            logger.With("component", "auth"),
		Metrics:           opts.Metrics,
		Now:               opts.Now,
	})
	if err != nil {
		return nil, err
	}

	api := accountsapi.New(accountsapi.Config{
		BaseURL:    accountsapi.BaseURL(opts.Domain),
		Token:      client.GetAccessToken,
		HTTPClient: opts.HTTPClient,
		Logger:     logger.With("component", "accountsapi"),
	})
	caps := bridge.NewCapabilities()
	if err := accountsapi.Register(caps, api, routes); err != nil {
		return nil, fmt.Errorf("register capabilities: %w", err)
	}

	parentOrigin, err := platform.Origin(opts.Browser.CurrentURL())
	if err != nil {
		logger.Warn("could not determine page origin", "error", err)
	}

	s := &SDK{
		Client:       client,
		Capabilities: caps,
		Router:       bridge.NewRouter(logger.With("component", "bridge")),
		logger:       logger,
	}
	panel := bridge.Config{
		UIBaseURL:    opts.UIBaseURL,
		Domain:       opts.Domain,
		ParentOrigin: parentOrigin,
		Session:      client,
		Capabilities: caps,
		Frames:       opts.Frames,
		Router:       s.Router,
		Presenter:    opts.Presenter,
		Logger:       logger.With("component", "bridge"),
		Metrics:      opts.Metrics,
	}
	s.AccountManagement = &AccountManagement{
		AccountPanel: bridge.NewAccountPanel(panel, s.accountUpdated),
		API:          api,
	}
	s.ShopManagement = &ShopManagement{
		ShopPanel: bridge.NewShopPanel(panel),
		API:       api,
	}
	return s, nil
}

// Serve routes page-level messages to the mounted panels until msgs is closed
// or ctx is done.
func (s *SDK) Serve(ctx context.Context, msgs <-chan bridge.Message) error {
	return s.Router.Serve(ctx, msgs)
}

func (s *SDK) accountUpdated(ctx context.Context) {
	if err := s.LoadAuthState(ctx); err != nil {
		s.logger.Error("reload auth state after account update", "error", err)
	}
}
