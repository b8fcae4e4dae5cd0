package auth

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Scope requested on every authorization request.
var Scope = []string{oidc.ScopeOpenID, "profile", "email", "amr", "auth_time", "shop"}

// AuthServer is the discovered authorization server metadata.
type AuthServer struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	EndSessionEndpoint            string   `json:"end_session_endpoint"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`

	verifier *oidc.IDTokenVerifier
}

// SupportsS256 reports whether the server advertises the S256 PKCE method.
func (a *AuthServer) SupportsS256() bool {
	return slices.Contains(a.CodeChallengeMethodsSupported, "S256")
}

// discover performs OIDC discovery against issuer. The issuer in the returned
// document must equal issuer exactly.
func discover(ctx context.Context, client *http.Client, issuer, clientID string, now func() time.Time) (*AuthServer, error) {
	op, err := oidc.NewProvider(oidc.ClientContext(ctx, client), issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", issuer, err)
	}

	var meta AuthServer
	if err := op.Claims(&meta); err != nil {
		return nil, fmt.Errorf("parse discovery document: %w", err)
	}
	meta.verifier = op.Verifier(&oidc.Config{ClientID: clientID, Now: now})
	return &meta, nil
}

// oauthConfig builds a public-client configuration for the discovered endpoints.
func (a *AuthServer) oauthConfig(clientID, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    clientID,
		RedirectURL: redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.AuthorizationEndpoint,
			TokenURL:  a.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: Scope,
	}
}
