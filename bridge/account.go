package bridge

import (
	"context"
	"sync"

	"scspa/events"
)

// Event names emitted by AccountPanel.
type Event string

const EventAccountUpdated Event = "account-updated"

// AccountPanelPath is the account settings page under the UI base URL.
const AccountPanelPath = "/account-management/manage-account"

// AccountPanel is the account settings panel. Its frame is mounted on first Open.
type AccountPanel struct {
	cfg       Config
	onUpdated func(ctx context.Context)
	emitter   events.Emitter[Event]

	mu     sync.Mutex
	bridge *Bridge
}

// NewAccountPanel prepares the panel. onUpdated runs after subscribers have been
// told about an "account-updated" message.
func NewAccountPanel(cfg Config, onUpdated func(ctx context.Context)) *AccountPanel {
	cfg.Name = "account"
	cfg.Path = AccountPanelPath
	p := &AccountPanel{cfg: cfg, onUpdated: onUpdated}
	p.cfg.OnSentinel = p.sentinel
	return p
}

// On subscribes handler to event, replacing any previous subscriber.
func (p *AccountPanel) On(event Event, handler events.Handler) {
	p.emitter.On(event, handler)
}

// Open mounts the frame when needed and shows it.
func (p *AccountPanel) Open() error {
	b, err := p.mount()
	if err != nil {
		return err
	}
	b.Open()
	return nil
}

// Close hides the panel. It does nothing before the first Open.
func (p *AccountPanel) Close() {
	p.mu.Lock()
	b := p.bridge
	p.mu.Unlock()
	if b != nil {
		b.Close()
	}
}

// Bridge returns the mounted bridge, or nil before the first Open.
func (p *AccountPanel) Bridge() *Bridge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bridge
}

func (p *AccountPanel) mount() (*Bridge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bridge != nil {
		return p.bridge, nil
	}
	b, err := Mount(p.cfg)
	if err != nil {
		return nil, err
	}
	p.bridge = b
	return b, nil
}

func (p *AccountPanel) sentinel(ctx context.Context, data string) bool {
	if data != SentinelAccountUpdated {
		return false
	}
	p.emitter.Emit(EventAccountUpdated, nil)
	if p.onUpdated != nil {
		p.onUpdated(ctx)
	}
	return true
}
