// Package auth keeps a valid access token for the mail API.
//
// Access tokens come from a token broker that exchanges an encrypted refresh
// token. The resulting credential is cached through a CredentialStore so later
// invocations reuse it until it expires, and so a rotated refresh token takes
// priority over the one originally configured.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/daviddao/mailwatch/internal/types"
)

// CredentialStore persists the broker credential between invocations.
type CredentialStore interface {
	// LoadCredential returns nil, nil when nothing has been stored yet.
	LoadCredential(ctx context.Context) (*types.Credential, error)
	SaveCredential(ctx context.Context, cred types.Credential) error
}

// Exchanger trades a refresh token for a fresh credential.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (types.Credential, error)
}

// TokenCache hands out access tokens, exchanging with the broker only when
// the cached one has expired.
type TokenCache struct {
	store        CredentialStore
	broker       Exchanger
	refreshToken string

	// Clock defaults to time.Now.
	Clock func() time.Time

	mu     sync.Mutex
	loaded bool
	cred   *types.Credential
}

// NewTokenCache creates a cache. refreshToken is the configured token and is
// only used while the store holds no rotated one.
func NewTokenCache(store CredentialStore, broker Exchanger, refreshToken string) *TokenCache {
	return &TokenCache{
		store:        store,
		broker:       broker,
		refreshToken: refreshToken,
		Clock:        time.Now,
	}
}

// AccessToken returns a usable access token. A cached, unexpired token is
// returned without any network call; otherwise exactly one broker exchange
// is made and its result persisted.
func (c *TokenCache) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		cred, err := c.store.LoadCredential(ctx)
		if err != nil {
			return "", fmt.Errorf("load cached credential: %w", err)
		}
		c.cred = cred
		c.loaded = true
	}

	if c.cred.Valid(c.Clock()) {
		return c.cred.AccessToken, nil
	}

	refresh := c.refreshToken
	if c.cred != nil && c.cred.RefreshToken != "" {
		refresh = c.cred.RefreshToken
	}
	if refresh == "" {
		return "", &AuthenticationError{Message: "no refresh token configured"}
	}

	cred, err := c.broker.Exchange(ctx, refresh)
	if err != nil {
		return "", err
	}
	if err := c.store.SaveCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("save credential: %w", err)
	}
	c.cred = &cred
	return cred.AccessToken, nil
}

// Credential returns a copy of the cached credential, or nil if none has
// been loaded or exchanged yet.
func (c *TokenCache) Credential() *types.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred == nil {
		return nil
	}
	cp := *c.cred
	return &cp
}

// TokenSource adapts the cache to oauth2.TokenSource for the lifetime of ctx.
func (c *TokenCache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &cacheTokenSource{ctx: ctx, cache: c}
}

type cacheTokenSource struct {
	ctx   context.Context
	cache *TokenCache
}

func (s *cacheTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.cache.AccessToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

// NewHTTPClient returns a client whose transport attaches
// "Authorization: Bearer <token>" from the cache to every request.
func NewHTTPClient(ctx context.Context, cache *TokenCache, base http.RoundTripper, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: cache.TokenSource(ctx),
			Base:   base,
		},
		Timeout: timeout,
	}
}

// FileStore keeps the credential in a JSON file, in the same
// {access_token, valid_until, current_refresh_token} shape as every other store.
type FileStore struct {
	Path string
}

// LoadCredential reads the credential file. A missing file is not an error.
func (f FileStore) LoadCredential(_ context.Context) (*types.Credential, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential from %s: %w", f.Path, err)
	}

	var cred types.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}
	return &cred, nil
}

// SaveCredential writes the credential file with owner-only permissions.
func (f FileStore) SaveCredential(_ context.Context, cred types.Credential) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create directory for %s: %w", f.Path, err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o600)
}
