// Package frametest provides an in-memory frame host whose windows record the
// messages posted to them.
package frametest

import (
	"sync"

	"scspa/bridge"
)

// Post is one message posted to a Window.
type Post struct {
	Data         string
	TargetOrigin string
}

// Window records posted messages.
type Window struct {
	mu    sync.Mutex
	posts []Post
}

func (w *Window) PostMessage(data, targetOrigin string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.posts = append(w.posts, Post{Data: data, TargetOrigin: targetOrigin})
	return nil
}

// Posts returns a copy of everything posted so far.
func (w *Window) Posts() []Post {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Post(nil), w.posts...)
}

// Frame is a mounted frame with its own Window.
type Frame struct {
	window *Window

	mu      sync.Mutex
	sources []string
}

func (f *Frame) Window() bridge.Window { return f.window }

// Win returns the concrete window for assertions.
func (f *Frame) Win() *Window { return f.window }

func (f *Frame) Navigate(src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
	return nil
}

// Sources lists every src the frame was pointed at, the initial one first.
func (f *Frame) Sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

// Host creates Frames and remembers them in creation order.
type Host struct {
	mu     sync.Mutex
	frames []*Frame
}

func (h *Host) CreateFrame(src string) (bridge.Frame, error) {
	f := &Frame{window: &Window{}, sources: []string{src}}
	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()
	return f, nil
}

// Frames returns the frames created so far.
func (h *Host) Frames() []*Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*Frame(nil), h.frames...)
}

// Last returns the most recently created frame, or nil.
func (h *Host) Last() *Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames) == 0 {
		return nil
	}
	return h.frames[len(h.frames)-1]
}
