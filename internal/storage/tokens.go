package storage

import (
	"context"
	"errors"

	"genstudio/internal/models"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// TokenStore holds the raw bearer tokens. It is the ground truth for
// request authorization.
type TokenStore struct {
	kv KV
}

func NewTokenStore(kv KV) *TokenStore {
	return &TokenStore{kv: kv}
}

// AccessToken returns the stored access token, or "" when none is stored.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func (s *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

// Tokens returns both tokens; missing ones are empty.
func (s *TokenStore) Tokens(ctx context.Context) (models.AuthTokens, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return models.AuthTokens{}, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return models.AuthTokens{}, err
	}
	return models.AuthTokens{AccessToken: access, RefreshToken: refresh}, nil
}

// Save writes both tokens. An empty refresh token leaves the stored one in
// place, since some refresh routes do not rotate it.
func (s *TokenStore) Save(ctx context.Context, tokens models.AuthTokens) error {
	if err := s.kv.Set(ctx, KeyAccessToken, tokens.AccessToken); err != nil {
		return err
	}
	if tokens.RefreshToken == "" {
		return nil
	}
	return s.kv.Set(ctx, KeyRefreshToken, tokens.RefreshToken)
}

func (s *TokenStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken)
}

func (s *TokenStore) get(ctx context.Context, key string) (string, error) {
	v, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
