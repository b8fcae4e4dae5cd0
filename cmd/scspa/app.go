package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scspa/auth"
	"scspa/sdk"
)

var errNotLoggedIn = errors.New("not logged in, run `scspa login` first")

// terminalBrowser stands in for the page: navigation prints the target so the
// user can open it, and the current URL is set when the callback arrives.
type terminalBrowser struct {
	out io.Writer
	// onNavigate, when set, runs after each navigation.
	onNavigate func(target string)

	mu          sync.Mutex
	current     string
	navigations []string
}

func (b *terminalBrowser) CurrentURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *terminalBrowser) Navigate(target string) error {
	b.mu.Lock()
	b.navigations = append(b.navigations, target)
	hook := b.onNavigate
	b.mu.Unlock()

	fmt.Fprintf(b.out, "Open the following URL in your browser:\n\n  %s\n\n", target)
	if hook != nil {
		hook(target)
	}
	return nil
}

func (b *terminalBrowser) Alert(message string) {
	fmt.Fprintf(b.out, "error: %s\n", message)
}

func (b *terminalBrowser) setCurrent(u string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = u
}

func (b *terminalBrowser) lastNavigation() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.navigations) == 0 {
		return ""
	}
	return b.navigations[len(b.navigations)-1]
}

// callbackServer receives the authorization redirect on the loopback interface.
type callbackServer struct {
	srv  *http.Server
	ln   net.Listener
	got  chan string
	done chan struct{}
}

// listenCallback serves redirectURI's path on ln. The full callback URL is
// delivered once through Wait.
func listenCallback(ln net.Listener, redirectURI string, logger *slog.Logger) (*callbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	cs := &callbackServer{ln: ln, got: make(chan string, 1), done: make(chan struct{})}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		callback := *u
		callback.RawQuery = req.URL.RawQuery
		select {
		case cs.got <- callback.String():
		default:
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "Sign-in complete. You can close this window and return to the terminal.\n")
	})

	cs.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		defer close(cs.done)
		if err := cs.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server error", "error", err)
		}
	}()
	return cs, nil
}

// Wait blocks until the callback arrives or ctx is done.
func (cs *callbackServer) Wait(ctx context.Context) (string, error) {
	select {
	case u := <-cs.got:
		return u, nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for sign-in: %w", ctx.Err())
	}
}

func (cs *callbackServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cs.srv.Shutdown(ctx)
	<-cs.done
	return err
}

// cliApp is one CLI invocation's SDK and its host capabilities.
type cliApp struct {
	cfg     sdk.Config
	logger  *slog.Logger
	out     io.Writer
	browser *terminalBrowser
	sdk     *sdk.SDK
	release func() error
}

func newCLIApp(ctx context.Context, cfg sdk.Config, logger *slog.Logger, out io.Writer) (*cliApp, error) {
	store, release, err := cfg.Storage.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	browser := &terminalBrowser{out: out, current: redirect.Scheme + "://" + redirect.Host + "/"}

	opts := cfg.Options()
	opts.Storage = store
	opts.Browser = browser
	opts.Logger = logger
	opts.AfterCallback = func() error { return nil }
	s, err := sdk.New(opts)
	if err != nil {
		_ = release()
		return nil, err
	}
	return &cliApp{cfg: cfg, logger: logger, out: out, browser: browser, sdk: s, release: release}, nil
}

func (a *cliApp) Close() error {
	return a.release()
}

// authorize runs the redirect flow with the callback served on ln.
func (a *cliApp) authorize(ctx context.Context, action string, ln net.Listener) error {
	cs, err := listenCallback(ln, a.cfg.RedirectURI, a.logger)
	if err != nil {
		return err
	}
	defer cs.Close()

	switch action {
	case auth.ActionSignup:
		err = a.sdk.SignupViaRedirect(ctx)
	default:
		err = a.sdk.LoginViaRedirect(ctx)
	}
	if err != nil {
		return err
	}

	callback, err := cs.Wait(ctx)
	if err != nil {
		return err
	}
	a.browser.setCurrent(callback)
	if err := a.sdk.LoadAuthState(ctx); err != nil {
		return err
	}
	if a.sdk.User() == nil {
		return errors.New("sign-in did not complete")
	}
	return nil
}

// restore loads the stored session through a silent refresh.
func (a *cliApp) restore(ctx context.Context) error {
	if err := a.sdk.LoadAuthState(ctx); err != nil {
		return err
	}
	if a.sdk.Session().Snapshot().AccessToken == "" {
		return errNotLoggedIn
	}
	return nil
}
