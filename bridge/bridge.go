// Package bridge hosts the account and shop panels: cross-origin frames that
// talk to the host page over postMessage and may call a fixed set of host
// capabilities. Panels never see stored tokens; they ask for the current access
// token over the bridge.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"scspa/auth"
	"scspa/metrics"
	"scspa/platform"
)

var ErrNoFrameHost = errors.New("frame host not provided")

// Frame is a mounted iframe.
type Frame interface {
	// Window returns the frame's content window.
	Window() Window
	// Navigate points the frame at src.
	Navigate(src string) error
}

// FrameHost mounts frames in the host page.
type FrameHost interface {
	CreateFrame(src string) (Frame, error)
}

// Session is the part of the auth client a panel may reach.
type Session interface {
	GetAccessToken(ctx context.Context) (string, error)
	User() *auth.User
}

// Config describes one panel frame.
type Config struct {
	// Name labels the panel in logs and metrics.
	Name string
	// UIBaseURL hosts the panel pages; its origin is the only reply target.
	UIBaseURL string
	// Path is the panel page under UIBaseURL.
	Path string
	// Domain is the application domain passed to the panel.
	Domain string
	// ParentOrigin is the host page origin passed to the panel.
	ParentOrigin string
	// Query adds extra query parameters to the panel URL.
	Query url.Values

	Session      Session
	Capabilities *Capabilities
	Frames       FrameHost
	Router       *Router
	Presenter    PresenterFactory
	Logger       *slog.Logger
	Metrics      *metrics.Collector

	// OnSentinel sees non-envelope messages other than "reload". Returning true
	// marks the message handled.
	OnSentinel func(ctx context.Context, data string) bool
}

// Bridge is one mounted panel frame plus its message handler.
type Bridge struct {
	cfg          Config
	logger       *slog.Logger
	src          string
	targetOrigin string
	frame        Frame
	presenter    Presenter
}

// PanelURL builds the frame source for cfg.
func PanelURL(cfg Config) (string, error) {
	base, err := url.Parse(cfg.UIBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse ui base url: %w", err)
	}
	u := base.ResolveReference(&url.URL{Path: cfg.Path})
	q := u.Query()
	q.Set("domain", cfg.Domain)
	q.Set("parentOrigin", cfg.ParentOrigin)
	for k, vs := range cfg.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Mount creates the panel frame, wraps it in a hidden presenter and registers
// its window with the router.
func Mount(cfg Config) (*Bridge, error) {
	if cfg.Frames == nil {
		return nil, ErrNoFrameHost
	}
	if cfg.Router == nil || cfg.Session == nil {
		return nil, fmt.Errorf("bridge %s: router and session are required", cfg.Name)
	}
	if cfg.Capabilities == nil {
		cfg.Capabilities = NewCapabilities()
	}
	if cfg.Presenter == nil {
		cfg.Presenter = DefaultPresenter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	target, err := platform.Origin(cfg.UIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("ui base url: %w", err)
	}
	src, err := PanelURL(cfg)
	if err != nil {
		return nil, err
	}
	frame, err := cfg.Frames.CreateFrame(src)
	if err != nil {
		return nil, fmt.Errorf("create %s frame: %w", cfg.Name, err)
	}

	b := &Bridge{
		cfg:          cfg,
		logger:       logger.With("panel", cfg.Name),
		src:          src,
		targetOrigin: target,
		frame:        frame,
		presenter:    cfg.Presenter(frame),
	}
	cfg.Router.Register(frame.Window(), b)
	return b, nil
}

// URL is the frame source.
func (b *Bridge) URL() string { return b.src }

func (b *Bridge) Frame() Frame { return b.frame }

func (b *Bridge) Presenter() Presenter { return b.presenter }

func (b *Bridge) Open() { b.presenter.Open() }

func (b *Bridge) Close() { b.presenter.Close() }

// Unmount stops routing messages to this bridge.
func (b *Bridge) Unmount() {
	b.cfg.Router.Unregister(b.frame.Window())
}

// HandleMessage processes one message from the panel window.
func (b *Bridge) HandleMessage(ctx context.Context, data string) {
	if data == SentinelReload {
		b.logger.Info("forcing iframe reload")
		if err := b.frame.Navigate(b.src); err != nil {
			b.logger.Error("reload frame", "error", err)
		}
		return
	}
	if b.cfg.OnSentinel != nil && b.cfg.OnSentinel(ctx, data) {
		return
	}

	req, err := DecodeRequest(data)
	if err != nil {
		b.logger.Warn("ignoring malformed message", "error", err)
		return
	}

	reply, ok := b.handle(ctx, req)
	if !ok {
		b.cfg.Metrics.RPC(b.cfg.Name, req.Method, metrics.OutcomeIgnored)
		return
	}
	outcome := metrics.OutcomeSuccess
	if reply.Error != "" {
		outcome = metrics.OutcomeError
	}
	b.cfg.Metrics.RPC(b.cfg.Name, req.Method, outcome)
	b.reply(reply)
}

// handle runs req and reports whether a reply should be sent.
func (b *Bridge) handle(ctx context.Context, req Request) (Reply, bool) {
	reply := Reply{Method: req.Method, CallbackID: req.CallbackID}

	switch req.Method {
	case MethodGetAccessToken:
		token, err := b.cfg.Session.GetAccessToken(ctx)
		if err != nil {
			b.logger.Debug("access token unavailable for panel", "error", err)
		}
		if token != "" {
			reply.Payload = token
		}
	case MethodCloseModal:
		b.presenter.Close()
	case MethodGetUser:
		if u := b.cfg.Session.User(); u != nil {
			reply.Payload = u
		}
	case MethodAccountManagementAPI:
		call, err := DecodeAPICall(req.Payload)
		if err != nil {
			b.logger.Warn("ignoring malformed api call", "error", err)
			return Reply{}, false
		}
		invoke, ok := b.cfg.Capabilities.Lookup(call.Resource, call.Method)
		if !ok {
			b.logger.Debug("capability not allowed", "resource", call.Resource, "method", call.Method)
			return Reply{}, false
		}
		result, err := invoke(ctx, call.Arguments())
		if err != nil {
			b.logger.Info("capability failed", "resource", call.Resource, "method", call.Method, "error", err)
			reply.Error = errorMessage(err)
			return reply, true
		}
		reply.Payload = result
	default:
		b.logger.Debug("ignoring unknown method", "method", req.Method)
		return Reply{}, false
	}
	return reply, true
}

func (b *Bridge) reply(r Reply) {
	data, err := r.Encode()
	if err != nil {
		b.logger.Error("encode reply", "method", r.Method, "error", err)
		return
	}
	if err := b.frame.Window().PostMessage(data, b.targetOrigin); err != nil {
		b.logger.Warn("post reply", "method", r.Method, "error", err)
	}
}
