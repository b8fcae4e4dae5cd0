package bridge

import (
	"sync"

	"github.com/google/uuid"
)

// Presenter shows and hides the container of a panel frame.
type Presenter interface {
	Open()
	Close()
	Visible() bool
}

// PresenterFactory wraps a mounted frame in a Presenter.
type PresenterFactory func(frame Frame) Presenter

// Modal is the default Presenter: a full-screen overlay around the frame,
// hidden until opened. A click on the backdrop closes it.
type Modal struct {
	id    string
	frame Frame

	mu       sync.Mutex
	visible  bool
	onChange func(visible bool)
}

// NewModal returns a hidden modal around frame.
func NewModal(frame Frame) *Modal {
	return &Modal{id: uuid.NewString(), frame: frame}
}

// DefaultPresenter is the PresenterFactory used when none is configured.
func DefaultPresenter(frame Frame) Presenter {
	return NewModal(frame)
}

// ID identifies the overlay element in the host page.
func (m *Modal) ID() string { return m.id }

func (m *Modal) Frame() Frame { return m.frame }

// OnChange registers fn to run whenever visibility changes.
func (m *Modal) OnChange(fn func(visible bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Modal) Open() { m.set(true) }

func (m *Modal) Close() { m.set(false) }

// BackdropClick handles a click outside the frame.
func (m *Modal) BackdropClick() { m.Close() }

func (m *Modal) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

func (m *Modal) set(visible bool) {
	m.mu.Lock()
	changed := m.visible != visible
	m.visible = visible
	fn := m.onChange
	m.mu.Unlock()
	if changed && fn != nil {
		fn(visible)
	}
}
