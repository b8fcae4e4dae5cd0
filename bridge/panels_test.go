package bridge_test

import (
	"context"
	"net/url"
	"testing"

	"scspa/bridge"
)

func TestAccountPanelMountsLazilyOnce(t *testing.T) {
	h := newHarness(t)
	p := bridge.NewAccountPanel(h.cfg, nil)

	p.Close()
	if len(h.frames.Frames()) != 0 || p.Bridge() != nil {
		t.Fatalf("frame mounted before Open")
	}
	if err := p.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := len(h.frames.Frames()); n != 1 {
		t.Fatalf("expected one frame, got %d", n)
	}
	u, _ := url.Parse(p.Bridge().URL())
	if u.Path != bridge.AccountPanelPath {
		t.Fatalf("unexpected account panel path %q", u.Path)
	}
	p.Close()
	if p.Bridge().Presenter().Visible() {
		t.Fatalf("expected panel to be hidden")
	}
}

func TestAccountUpdatedNotifiesAndReloadsState(t *testing.T) {
	h := newHarness(t)
	var reloaded, emitted int
	p := bridge.NewAccountPanel(h.cfg, func(context.Context) { reloaded++ })
	p.On(bridge.EventAccountUpdated, func(any) { emitted++ })
	if err := p.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := h.frames.Last()

	send(t, h.router, f, "account-updated")
	if reloaded != 1 || emitted != 1 {
		t.Fatalf("reloaded=%d emitted=%d", reloaded, emitted)
	}
	if len(f.Win().Posts()) != 0 {
		t.Fatalf("account-updated must not be answered")
	}
}

func TestShopPanelReusesFramesPerBillableAccount(t *testing.T) {
	h := newHarness(t)
	s := bridge.NewShopPanel(h.cfg)

	first, err := s.OpenFor("B1")
	if err != nil {
		t.Fatalf("OpenFor: %v", err)
	}
	first.Close()
	second, err := s.OpenFor("B1")
	if err != nil {
		t.Fatalf("OpenFor: %v", err)
	}
	if first != second || len(h.frames.Frames()) != 1 {
		t.Fatalf("expected the B1 frame to be reused")
	}
	if !second.Presenter().Visible() {
		t.Fatalf("expected reused panel to be shown again")
	}
	u, _ := url.Parse(first.URL())
	if u.Path != bridge.ShopPanelPath || u.Query().Get("billableId") != "B1" {
		t.Fatalf("unexpected shop url %q", first.URL())
	}

	a, _ := s.OpenFor("")
	b, _ := s.OpenFor("")
	if a == b || len(h.frames.Frames()) != 3 {
		t.Fatalf("opens without a billable id must not be cached")
	}
	if _, ok := s.Cached(""); ok {
		t.Fatalf("empty billable id was cached")
	}
	if au, _ := url.Parse(a.URL()); au.Query().Has("billableId") {
		t.Fatalf("unexpected billableId on %q", a.URL())
	}

	s.Close("B1")
	if first.Presenter().Visible() {
		t.Fatalf("expected Close to hide the B1 panel")
	}
}

func TestShopPanelOpenDefaultsToUserBillableAccount(t *testing.T) {
	h := newHarness(t)
	s := bridge.NewShopPanel(h.cfg)

	b, err := s.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cached, ok := s.Cached("B9")
	if !ok || cached != b {
		t.Fatalf("expected panel cached under the user's billable id")
	}

	h.session.user = nil
	if _, err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n := len(h.frames.Frames()); n != 2 {
		t.Fatalf("expected a fresh frame for a user without billable id, got %d", n)
	}
}
