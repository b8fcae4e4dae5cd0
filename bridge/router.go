package bridge

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Window is the content window of a frame. Implementations must be comparable,
// since the router keys handlers by window identity.
type Window interface {
	PostMessage(data, targetOrigin string) error
}

// Message is one event from the page-level message channel.
type Message struct {
	Source Window
	Data   string
}

// Handler consumes messages from one window.
type Handler interface {
	HandleMessage(ctx context.Context, data string)
}

// Router delivers page-level messages to the handler registered for their
// source window. Messages from unknown sources are dropped.
type Router struct {
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[Window]Handler
}

func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, routes: make(map[Window]Handler)}
}

// Register routes messages from w to h, replacing any previous handler.
func (r *Router) Register(w Window, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[w] = h
}

func (r *Router) Unregister(w Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, w)
}

// Len reports the number of registered windows.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// Dispatch hands msg to its handler on the calling goroutine. It reports whether
// a handler was found.
func (r *Router) Dispatch(ctx context.Context, msg Message) bool {
	if msg.Source == nil {
		return false
	}
	r.mu.RLock()
	h, ok := r.routes[msg.Source]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("dropping message from unknown source")
		return false
	}
	h.HandleMessage(ctx, msg.Data)
	return true
}

// Serve dispatches messages until msgs is closed or ctx is done. Each message is
// handled on its own goroutine; Serve waits for in-flight handlers before returning.
func (r *Router) Serve(ctx context.Context, msgs <-chan Message) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				g.Go(func() error {
					r.Dispatch(gctx, msg)
					return nil
				})
			}
		}
	})
	return g.Wait()
}
