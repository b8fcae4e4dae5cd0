package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"scspa/metrics"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// validateAuthResponse checks the callback parameters. The flow is stateless,
// so a state parameter on the response is rejected.
func validateAuthResponse(srv *AuthServer, u *url.URL) (string, *OAuthError) {
	q := u.Query()
	if iss := q.Get("iss"); iss != "" && iss != srv.Issuer {
		return "", &OAuthError{Code: ErrorCodeInvalidResponse, Description: "unexpected iss parameter value"}
	}
	if q.Has("state") {
		return "", &OAuthError{Code: ErrorCodeInvalidResponse, Description: "unexpected state parameter"}
	}
	if e := q.Get("error"); e != "" {
		return "", &OAuthError{Code: e, Description: q.Get("error_description"), URI: q.Get("error_uri")}
	}
	code := q.Get("code")
	if code == "" {
		return "", &OAuthError{Code: ErrorCodeInvalidResponse, Description: "no authorization code in response"}
	}
	return code, nil
}

func (c *Client) completeCallback(ctx context.Context, callback *url.URL) error {
	srv, err := c.ensureAuthServer(ctx)
	if err != nil {
		return err
	}

	code, oerr := validateAuthResponse(srv, callback)
	if oerr != nil {
		c.opts.OAuthErrorHandler(oerr)
		return nil
	}

	verifier, ok, err := c.store.CodeVerifier(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Debug("no code verifier stored, nothing to complete")
		return nil
	}

	generation := c.session.Generation()
	cfg := srv.oauthConfig(c.opts.ClientID, c.opts.RedirectURI)
	tok, exchangeErr := cfg.Exchange(oidc.ClientContext(ctx, c.opts.HTTPClient), code, oauth2.VerifierOption(verifier))

	// The verifier is single use whatever the exchange outcome.
	if err := c.store.SetCodeVerifier(ctx, ""); err != nil {
		c.logger.Error("clear code verifier", "error", err)
		if exchangeErr == nil {
			return err
		}
	}

	if exchangeErr != nil {
		c.metrics.TokenRequest(grantAuthorizationCode, metrics.OutcomeError)
		if err := c.tokenError(ctx, exchangeErr); err != nil {
			return fmt.Errorf("exchange authorization code: %w", err)
		}
		return c.opts.AfterCallback()
	}
	c.metrics.TokenRequest(grantAuthorizationCode, metrics.OutcomeSuccess)

	res, err := c.processTokenResult(ctx, srv, tok, true)
	if err != nil {
		return err
	}
	if err := c.applyTokenResult(ctx, generation, res); err != nil {
		return err
	}
	return c.opts.AfterCallback()
}

// refresh exchanges the stored refresh token. Concurrent callers share a single
// token request.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshG.Do(grantRefreshToken, func() (any, error) {
		return nil, c.refreshOnce(ctx)
	})
	return err
}

// refreshExpired refreshes unless another caller has already replaced the
// expired token.
func (c *Client) refreshExpired(ctx context.Context) error {
	_, err, _ := c.refreshG.Do(grantRefreshToken, func() (any, error) {
		if st := c.session.Snapshot(); st.AccessToken != "" && c.now().Before(st.AccessTokenExpiry) {
			return nil, nil
		}
		return nil, c.refreshOnce(ctx)
	})
	return err
}

func (c *Client) refreshOnce(ctx context.Context) error {
	srv, err := c.ensureAuthServer(ctx)
	if err != nil {
		return err
	}
	refreshToken, ok, err := c.store.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoRefreshToken
	}

	generation := c.session.Generation()
	cfg := srv.oauthConfig(c.opts.ClientID, c.opts.RedirectURI)
	tok, err := cfg.TokenSource(oidc.ClientContext(ctx, c.opts.HTTPClient), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		c.metrics.TokenRequest(grantRefreshToken, metrics.OutcomeError)
		if oe, ok := oauthErrorFrom(err); ok && len(challengesFrom(err)) == 0 {
			c.handleOAuthError(ctx, oe)
			return oe
		}
		return fmt.Errorf("refresh token grant: %w", c.tokenError(ctx, err))
	}
	c.metrics.TokenRequest(grantRefreshToken, metrics.OutcomeSuccess)

	res, err := c.processTokenResult(ctx, srv, tok, false)
	if err != nil {
		return err
	}
	return c.applyTokenResult(ctx, generation, res)
}

// tokenError classifies a token endpoint failure. Challenges are fatal, OAuth
// error bodies go to the error handler and yield nil, anything else is returned.
func (c *Client) tokenError(ctx context.Context, err error) error {
	if challenges := challengesFrom(err); len(challenges) > 0 {
		for _, ch := range challenges {
			c.logger.Warn("authentication challenge", "challenge", ch)
		}
		return ErrAuthChallenge
	}
	if oe, ok := oauthErrorFrom(err); ok {
		c.handleOAuthError(ctx, oe)
		return nil
	}
	return err
}

// handleOAuthError treats invalid_grant as a revoked refresh token.
func (c *Client) handleOAuthError(ctx context.Context, oe *OAuthError) {
	if oe.Code == ErrorCodeInvalidGrant {
		c.writeMu.Lock()
		err := c.store.SetRefreshToken(ctx, "")
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Error("clear refresh token", "error", err)
		}
	}
	c.opts.OAuthErrorHandler(oe)
}

func (c *Client) processTokenResult(ctx context.Context, srv *AuthServer, tok *oauth2.Token, requireIDToken bool) (tokenResult, error) {
	res := tokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if d, ok := expiresIn(tok); ok && d > 0 {
		res.Expiry = c.now().Add(d)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		if requireIDToken {
			return tokenResult{}, ErrMissingIDToken
		}
		return res, nil
	}

	idToken, err := srv.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return tokenResult{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return tokenResult{}, fmt.Errorf("parse claims: %w", err)
	}
	user, err := userFromClaims(idToken.Subject, claims)
	if err != nil {
		return tokenResult{}, err
	}
	res.IDToken = rawIDToken
	res.User = user
	return res, nil
}

// applyTokenResult is the only writer of token results into the session.
func (c *Client) applyTokenResult(ctx context.Context, generation uint64, res tokenResult) error {
	c.writeMu.Lock()
	if err := c.session.apply(generation, res); err != nil {
		c.writeMu.Unlock()
		c.logger.Warn("discarding token result", "error", err)
		return err
	}
	var err error
	if res.RefreshToken != "" {
		err = c.store.SetRefreshToken(ctx, res.RefreshToken)
	}
	c.writeMu.Unlock()

	c.emitter.Emit(EventNewAccessToken, res.AccessToken)
	return err
}

func expiresIn(tok *oauth2.Token) (time.Duration, bool) {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), true
	case int64:
		return time.Duration(v) * time.Second, true
	case int:
		return time.Duration(v) * time.Second, true
	case json.Number:
		n, err := v.Int64()
		return time.Duration(n) * time.Second, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return time.Duration(n) * time.Second, err == nil
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry), true
	}
	return 0, false
}
