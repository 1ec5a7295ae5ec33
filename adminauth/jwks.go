// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package adminauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// jwksCache fetches and caches provider keys by kid. An unknown kid forces a
// refetch, rate-limited by the refresh interval, so key rotation at the
// provider is picked up without restarting.
type jwksCache struct {
	url     string
	refresh time.Duration
	client  *http.Client

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newJWKSCache(url string, refresh time.Duration) *jwksCache {
	return &jwksCache{
		url:     url,
		refresh: refresh,
		client:  &http.Client{Timeout: 10 * time.Second},
		keys:    map[string]*rsa.PublicKey{},
	}
}

// Key returns the public key for a kid, refetching the JWKS when needed.
func (cache *jwksCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	if key, ok := cache.keys[kid]; ok {
		return key, nil
	}
	if !cache.fetchedAt.IsZero() && time.Since(cache.fetchedAt) < cache.refresh {
		return nil, ErrToken.New("unknown key id %q", kid)
	}
	if err := cache.fetchLocked(ctx); err != nil {
		return nil, err
	}
	if key, ok := cache.keys[kid]; ok {
		return key, nil
	}
	return nil, ErrToken.New("unknown key id %q", kid)
}

func (cache *jwksCache) fetchLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cache.url, nil)
	if err != nil {
		return Error.Wrap(err)
	}
	resp, err := cache.client.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Error.New("jwks fetch returned %s", resp.Status)
	}

	var document struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&document); err != nil {
		return Error.Wrap(err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, entry := range document.Keys {
		if entry.Kty != "RSA" || (entry.Use != "" && entry.Use != "sig") {
			continue
		}
		modulus, err := base64.RawURLEncoding.DecodeString(entry.N)
		if err != nil {
			continue
		}
		exponent, err := base64.RawURLEncoding.DecodeString(entry.E)
		if err != nil {
			continue
		}
		keys[entry.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(modulus),
			E: int(new(big.Int).SetBytes(exponent).Int64()),
		}
	}

	cache.keys = keys
	cache.fetchedAt = time.Now()
	return nil
}
