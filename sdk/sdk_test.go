package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"scspa/accountsapi"
	"scspa/auth"
	"scspa/bridge"
	"scspa/internal/frametest"
	"scspa/internal/idptest"
	"scspa/storage"
)

type fakeBrowser struct {
	mu          sync.Mutex
	current     string
	navigations []string
}

func (b *fakeBrowser) CurrentURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *fakeBrowser) Navigate(target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigations = append(b.navigations, target)
	return nil
}

func (b *fakeBrowser) set(u string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = u
}

func (b *fakeBrowser) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.navigations[len(b.navigations)-1]
}

type fixture struct {
	sdk     *SDK
	idp     *idptest.Provider
	browser *fakeBrowser
	frames  *frametest.Host
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	idp := idptest.New(t, "spa")
	f := &fixture{
		idp:     idp,
		browser: &fakeBrowser{current: "http://app.test/dashboard"},
		frames:  &frametest.Host{},
	}
	s, err := New(Options{
		Domain:      idp.Issuer,
		ClientID:    "spa",
		RedirectURI: "http://app.test/callback",
		Storage:     storage.NewMemory(),
		Browser:     f.browser,
		Frames:      f.frames,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         idp.Clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.sdk = s
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.sdk.LoginViaRedirect(ctx); err != nil {
		t.Fatalf("LoginViaRedirect: %v", err)
	}
	callback, err := f.idp.Authorize(f.browser.last())
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	f.browser.set(callback)
	if err := f.sdk.LoadAuthState(ctx); err != nil {
		t.Fatalf("LoadAuthState: %v", err)
	}
	f.browser.set("http://app.test/dashboard")
}

func (f *fixture) send(t *testing.T, frame *frametest.Frame, data string) map[string]any {
	t.Helper()
	before := len(frame.Win().Posts())
	if !f.sdk.Router.Dispatch(context.Background(), bridge.Message{Source: frame.Window(), Data: data}) {
		t.Fatalf("message not routed")
	}
	posts := frame.Win().Posts()
	if len(posts) != before+1 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(posts[len(posts)-1].Data), &out); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return out
}

func TestNewRequiresBrowser(t *testing.T) {
	if _, err := New(Options{Domain: "https://id.test", ClientID: "c", RedirectURI: "https://app/cb", Storage: storage.NewMemory()}); !errors.Is(err, auth.ErrNoBrowser) {
		t.Fatalf("expected ErrNoBrowser, got %v", err)
	}
}

func TestPanelURLsUseDefaults(t *testing.T) {
	f := newFixture(t)
	if err := f.sdk.AccountManagement.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	u, err := url.Parse(f.sdk.AccountManagement.Bridge().URL())
	if err != nil {
		t.Fatalf("parse panel url: %v", err)
	}
	if u.Scheme+"://"+u.Host != DefaultUIBaseURL || u.Path != bridge.AccountPanelPath {
		t.Fatalf("unexpected account panel url %q", u)
	}
	if u.Query().Get("domain") != f.idp.Issuer || u.Query().Get("parentOrigin") != "http://app.test" {
		t.Fatalf("unexpected panel query %q", u.RawQuery)
	}
}

func TestPanelsReadTheSession(t *testing.T) {
	f := newFixture(t)
	f.idp.Update(func(p *idptest.Provider) { p.Identity.BillableID = "B1" })
	f.login(t)

	shop, err := f.sdk.ShopManagement.Open()
	if err != nil {
		t.Fatalf("Open shop: %v", err)
	}
	if cached, ok := f.sdk.ShopManagement.Cached("B1"); !ok || cached != shop {
		t.Fatalf("expected shop opened for the user's billable account")
	}
	frame := f.frames.Last()

	want, _ := f.sdk.GetAccessToken(context.Background())
	if reply := f.send(t, frame, `{"method":"getAccessToken","callbackId":"1"}`); reply["payload"] != want {
		t.Fatalf("unexpected token reply %v", reply)
	}
	reply := f.send(t, frame, `{"method":"getUser","callbackId":"2"}`)
	if user, _ := reply["payload"].(map[string]any); user["name"] != "Test User" || user["user_billable_id"] != "B1" {
		t.Fatalf("unexpected user reply %v", reply)
	}
	if posts := frame.Win().Posts(); posts[0].TargetOrigin != DefaultUIBaseURL {
		t.Fatalf("reply targeted %q", posts[0].TargetOrigin)
	}
}

func TestPanelAPICallsCarryAccessToken(t *testing.T) {
	f := newFixture(t)
	var gotAuth string
	f.idp.Handle("/accounts-api/user", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-123"}`))
	}))
	if err := f.sdk.AccountManagement.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	frame := f.frames.Last()

	call := `{"method":"accountManagementApi","callbackId":"c","payload":{"resource":"user","method":"get","args":[]}}`
	if reply := f.send(t, frame, call); reply["error"] != accountsapi.ErrNotLoggedIn.Error() {
		t.Fatalf("expected not-logged-in error before login, got %v", reply)
	}

	f.login(t)
	reply := f.send(t, frame, call)
	if payload, _ := reply["payload"].(map[string]any); payload["id"] != "user-123" {
		t.Fatalf("unexpected api reply %v", reply)
	}
	token, _ := f.sdk.GetAccessToken(context.Background())
	if gotAuth != "Bearer "+token {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	if reply := f.send(t, frame, `{"method":"accountManagementApi","callbackId":"d","payload":{"resource":"admin","method":"deleteTenant"}}`); reply != nil {
		t.Fatalf("disallowed capability must not be answered, got %v", reply)
	}
}

func TestAccountUpdatedReloadsAuthState(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	var loaded, updated int
	f.sdk.On(auth.EventAuthStateLoaded, func(any) { loaded++ })
	f.sdk.AccountManagement.On(bridge.EventAccountUpdated, func(any) { updated++ })
	if err := f.sdk.AccountManagement.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	f.send(t, f.frames.Last(), "account-updated")
	if updated != 1 || loaded != 1 {
		t.Fatalf("updated=%d loaded=%d", updated, loaded)
	}
	if n := f.idp.TokenRequests("refresh_token"); n != 1 {
		t.Fatalf("expected account update to refresh the session, got %d refreshes", n)
	}
}
