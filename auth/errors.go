package auth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

var (
	// ErrNoBrowser and ErrNoStorage are returned by New when a host capability is missing.
	ErrNoBrowser = errors.New("browser capability not provided, the client needs a page location and navigation")
	ErrNoStorage = errors.New("storage capability not provided")

	ErrNoAuthServer     = errors.New("could not identify auth server config")
	ErrPKCEUnsupported  = errors.New("PKCE S256 not supported")
	ErrNoAuthEndpoint   = errors.New("auth server has not specified an authorization endpoint")
	ErrNoRefreshToken   = errors.New("no refresh token saved")
	ErrAuthChallenge    = errors.New("authentication challenges received")
	ErrTokenExpired     = errors.New("access token has expired and could not be refreshed")
	ErrNotLoggedIn      = errors.New("user not logged in")
	ErrMissingIDToken   = errors.New("id_token missing in response")
	ErrMissingNameClaim = errors.New("'name' missing from claims")
	ErrSessionChanged   = errors.New("session changed while the token request was in flight")
)

// Error codes used by OAuthError.
const (
	ErrorCodeInvalidGrant    = "invalid_grant"
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeInvalidResponse = "invalid_response"
)

// OAuthError is an OAuth 2.0 error response, either from the token endpoint or
// carried on the authorization callback URL.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// oauthErrorFrom extracts the OAuth error body from a token endpoint failure.
func oauthErrorFrom(err error) (*OAuthError, bool) {
	var oe *OAuthError
	if errors.As(err, &oe) {
		return oe, true
	}
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode == "" {
		return nil, false
	}
	return &OAuthError{Code: re.ErrorCode, Description: re.ErrorDescription, URI: re.ErrorURI}, true
}

// challengesFrom returns WWW-Authenticate challenges attached to a token endpoint failure.
func challengesFrom(err error) []string {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return nil
	}
	return re.Response.Header.Values("WWW-Authenticate")
}
