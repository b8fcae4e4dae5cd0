package bridge

import (
	"net/url"
	"sync"
)

// ShopPanelPath is the shop page under the UI base URL.
const ShopPanelPath = "/shop"

// ShopPanel opens shop frames scoped to a billable account. Frames opened for an
// account are kept and shown again on the next open for that account.
type ShopPanel struct {
	cfg Config

	mu     sync.Mutex
	panels map[string]*Bridge
}

func NewShopPanel(cfg Config) *ShopPanel {
	cfg.Name = "shop"
	cfg.Path = ShopPanelPath
	return &ShopPanel{cfg: cfg, panels: make(map[string]*Bridge)}
}

// Open opens the shop for the current user's billable account, if any.
func (s *ShopPanel) Open() (*Bridge, error) {
	var billableID string
	if s.cfg.Session != nil {
		if u := s.cfg.Session.User(); u != nil {
			billableID = u.BillableID
		}
	}
	return s.OpenFor(billableID)
}

// OpenFor shows the shop for billableID. An empty id always mounts a new,
// uncached frame.
func (s *ShopPanel) OpenFor(billableID string) (*Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if billableID != "" {
		if b, ok := s.panels[billableID]; ok {
			b.Open()
			return b, nil
		}
	}

	cfg := s.cfg
	if billableID != "" {
		cfg.Query = url.Values{"billableId": {billableID}}
	}
	b, err := Mount(cfg)
	if err != nil {
		return nil, err
	}
	if billableID != "" {
		s.panels[billableID] = b
	}
	b.Open()
	return b, nil
}

// Close hides the shop opened for billableID.
func (s *ShopPanel) Close(billableID string) {
	s.mu.Lock()
	b := s.panels[billableID]
	s.mu.Unlock()
	if b != nil {
		b.Close()
	}
}

// Cached returns the frame kept for billableID.
func (s *ShopPanel) Cached(billableID string) (*Bridge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.panels[billableID]
	return b, ok
}
