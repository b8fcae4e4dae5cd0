package auth

import (
	"context"
	"fmt"

	"scspa/platform"
)

// Durable storage keys.
const (
	CodeVerifierKey = "_sc_code_verifier"
	RefreshTokenKey = "_sc_rt"
)

// TokenStore persists the PKCE code verifier and the refresh token. Both must
// survive a full-page navigation, so they live in host storage rather than memory.
// Setting a value to the empty string removes the key.
type TokenStore struct {
	storage platform.Storage
}

// NewTokenStore wraps storage.
func NewTokenStore(storage platform.Storage) *TokenStore {
	return &TokenStore{storage: storage}
}

func (s *TokenStore) CodeVerifier(ctx context.Context) (string, bool, error) {
	return s.get(ctx, CodeVerifierKey)
}

func (s *TokenStore) SetCodeVerifier(ctx context.Context, verifier string) error {
	return s.set(ctx, CodeVerifierKey, verifier)
}

func (s *TokenStore) RefreshToken(ctx context.Context) (string, bool, error) {
	return s.get(ctx, RefreshTokenKey)
}

func (s *TokenStore) SetRefreshToken(ctx context.Context, token string) error {
	return s.set(ctx, RefreshTokenKey, token)
}

func (s *TokenStore) get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

func (s *TokenStore) set(ctx context.Context, key, value string) error {
	var err error
	if value == "" {
		err = s.storage.Remove(ctx, key)
	} else {
		err = s.storage.Set(ctx, key, value)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
