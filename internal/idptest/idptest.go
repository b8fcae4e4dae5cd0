// Package idptest runs an in-process OpenID Connect provider for tests. It
// supports discovery, JWKS, the authorization code grant with PKCE S256, the
// refresh token grant and an end-session endpoint.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user the provider signs in.
type Identity struct {
	Subject     string
	Name        string
	BillableID  string
	Permissions []string
}

// Clock is a settable time source shared by the provider and the client under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type codeGrant struct {
	challenge   string
	redirectURI string
	identity    Identity
}

// Provider is a running test identity provider. Exported fields may be changed
// between requests; they are read under the provider lock.
type Provider struct {
	Server   *httptest.Server
	Issuer   string
	ClientID string
	Clock    *Clock

	mu sync.Mutex
	// CodeChallengeMethods is advertised in discovery.
	CodeChallengeMethods []string
	// EndSession toggles the end_session_endpoint in discovery.
	EndSession bool
	// AccessTTL becomes expires_in. Zero omits expires_in.
	AccessTTL time.Duration
	Identity  Identity
	// TokenError forces the token endpoint to answer with this OAuth error code.
	TokenError string
	// Challenge forces a 401 with this WWW-Authenticate header.
	Challenge string
	// OmitIDTokenOnRefresh drops id_token from refresh responses.
	OmitIDTokenOnRefresh bool
	// BeforeToken runs before each token response is written.
	BeforeToken func(grant string)

	mux     *http.ServeMux
	key     *rsa.PrivateKey
	jwk     jose.JSONWebKey
	codes   map[string]codeGrant
	refresh map[string]Identity
	counts  map[string]int
}

// New starts a provider for clientID and closes it when the test ends.
func New(t testing.TB, clientID string) *Provider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kid := newID()
	p := &Provider{
		ClientID:             clientID,
		Clock:                NewClock(time.Now()),
		CodeChallengeMethods: []string{"S256"},
		EndSession:           true,
		AccessTTL:            5 * time.Minute,
		Identity: Identity{
			Subject:     "user-123",
			Name:        "Test User",
			Permissions: []string{"read"},
		},
		key:     key,
		jwk:     jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"},
		codes:   make(map[string]codeGrant),
		refresh: make(map[string]Identity),
		counts:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("/jwks", p.handleJWKS)
	mux.HandleFunc("/token", p.handleToken)
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	p.mux = mux
	p.Server = httptest.NewServer(mux)
	p.Issuer = p.Server.URL
	t.Cleanup(p.Server.Close)
	return p
}

// Handle serves extra endpoints on the provider host.
func (p *Provider) Handle(pattern string, h http.Handler) {
	p.mux.Handle(pattern, h)
}

// Update mutates provider settings under its lock.
func (p *Provider) Update(fn func(p *Provider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

// TokenRequests reports how many token requests were made for grant.
func (p *Provider) TokenRequests(grant string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[grant]
}

// IssueRefreshToken registers a refresh token for the current identity.
func (p *Provider) IssueRefreshToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rt := newID()
	p.refresh[rt] = p.Identity
	return rt
}

// Authorize plays the user signing in: it validates the authorization request
// and returns the redirect URL carrying a fresh authorization code.
func (p *Provider) Authorize(authURL string) (string, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	switch {
	case q.Get("response_type") != "code":
		return "", fmt.Errorf("unexpected response_type %q", q.Get("response_type"))
	case q.Get("client_id") != p.ClientID:
		return "", fmt.Errorf("unexpected client_id %q", q.Get("client_id"))
	case q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "":
		return "", fmt.Errorf("PKCE S256 challenge required")
	case q.Get("redirect_uri") == "":
		return "", fmt.Errorf("redirect_uri required")
	}

	p.mu.Lock()
	code := newID()
	p.codes[code] = codeGrant{
		challenge:   q.Get("code_challenge"),
		redirectURI: q.Get("redirect_uri"),
		identity:    p.Identity,
	}
	p.mu.Unlock()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		return "", err
	}
	rq := redirect.Query()
	rq.Set("code", code)
	redirect.RawQuery = rq.Encode()
	return redirect.String(), nil
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	doc := map[string]any{
		"issuer":                                p.Issuer,
		"authorization_endpoint":                p.Issuer + "/authorize",
		"token_endpoint":                        p.Issuer + "/token",
		"jwks_uri":                              p.Issuer + "/jwks",
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      p.CodeChallengeMethods,
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"token_endpoint_auth_methods_supported": []string{"none"},
	}
	if p.EndSession {
		doc["end_session_endpoint"] = p.Issuer + "/logout"
	}
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, doc)
}

func (p *Provider) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{p.jwk.Public()}})
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}
	grant := r.PostForm.Get("grant_type")

	p.mu.Lock()
	p.counts[grant]++
	hook := p.BeforeToken
	p.mu.Unlock()
	if hook != nil {
		hook(grant)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Challenge != "" {
		w.Header().Set("WWW-Authenticate", p.Challenge)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication required")
		return
	}
	if p.TokenError != "" {
		writeOAuthError(w, http.StatusBadRequest, p.TokenError, "forced failure")
		return
	}
	if r.PostForm.Get("client_id") != p.ClientID {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}

	switch grant {
	case "authorization_code":
		code := r.PostForm.Get("code")
		cg, ok := p.codes[code]
		if !ok {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown code")
			return
		}
		delete(p.codes, code)
		if cg.redirectURI != r.PostForm.Get("redirect_uri") {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != cg.challenge {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier mismatch")
			return
		}
		p.writeTokens(w, cg.identity, true)
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		identity, ok := p.refresh[rt]
		if !ok {
			writeOAuthError(w, http.StatusBadRequest, "invalid_grant", "unknown refresh token")
			return
		}
		delete(p.refresh, rt)
		p.writeTokens(w, identity, !p.OmitIDTokenOnRefresh)
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
	}
}

// writeTokens must be called with p.mu held.
func (p *Provider) writeTokens(w http.ResponseWriter, identity Identity, withIDToken bool) {
	now := p.Clock.Now()
	accessExp := now.Add(p.AccessTTL)
	if p.AccessTTL == 0 {
		accessExp = now.Add(time.Hour)
	}

	access, err := p.sign(jwt.MapClaims{
		"iss":         p.Issuer,
		"sub":         identity.Subject,
		"aud":         p.ClientID,
		"iat":         now.Unix(),
		"exp":         accessExp.Unix(),
		"scope":       "openid profile email amr auth_time shop",
		"permissions": identity.Permissions,
	})
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	rt := newID()
	p.refresh[rt] = identity
	resp := map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"refresh_token": rt,
	}
	if p.AccessTTL > 0 {
		resp["expires_in"] = int(p.AccessTTL.Seconds())
	}

	if withIDToken {
		claims := jwt.MapClaims{
			"iss": p.Issuer,
			"sub": identity.Subject,
			"aud": p.ClientID,
			"iat": now.Unix(),
			"exp": now.Add(time.Hour).Unix(),
		}
		if identity.Name != "" {
			claims["name"] = identity.Name
		}
		if identity.BillableID != "" {
			claims["user_billable_id"] = identity.BillableID
		}
		idToken, err := p.sign(claims)
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		resp["id_token"] = idToken
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

func (p *Provider) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = p.jwk.KeyID
	return token.SignedString(p.key)
}

// AccessToken signs a token carrying only sub and permissions.
func (p *Provider) AccessToken(permissions ...string) string {
	tok, err := p.sign(jwt.MapClaims{"sub": p.Identity.Subject, "permissions": permissions})
	if err != nil {
		panic(err)
	}
	return tok
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte("fallbackid"))
	}
	return hex.EncodeToString(buf)
}

// CallbackURL builds redirectURI with extra query parameters, for error callbacks.
func CallbackURL(redirectURI string, params map[string]string) string {
	vals := url.Values{}
	for k, v := range params {
		vals.Set(k, v)
	}
	sep := "?"
	if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + vals.Encode()
}
