package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const appleKeysURL = "https://appleid.apple.com/auth/keys"

// appleKeyCache caches Apple's published signing keys, keyed by key id.
// Keys are refreshed when the TTL lapses or when an unknown key id is
// requested (Apple rotates keys without notice).
type appleKeyCache struct {
	httpClient *http.Client
	url        string
	ttl        time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func newAppleKeyCache(httpClient *http.Client, url string, ttl time.Duration) *appleKeyCache {
	return &appleKeyCache{
		httpClient: httpClient,
		url:        url,
		ttl:        ttl,
	}
}

// GetKey returns the RSA public key for a key id, refreshing the cached key
// set if needed.
func (c *appleKeyCache) GetKey(ctx context.Context, keyID string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := time.Since(c.fetchedAt) > c.ttl
	if key, ok := c.keys[keyID]; ok && !stale {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok := c.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown signing key id %q", ErrIdentityTokenInvalid, keyID)
	}
	return key, nil
}

func (c *appleKeyCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build key request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: apple key fetch: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: apple key endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var keySet struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return fmt.Errorf("failed to decode apple key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(keySet.Keys))
	for _, k := range keySet.Keys {
		if k.Kty != "RSA" {
			continue
		}
		key, err := rsaKeyFromComponents(k.N, k.E)
		if err != nil {
			return fmt.Errorf("failed to build key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = key
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}

// rsaKeyFromComponents reconstructs an RSA public key from base64url-encoded
// modulus and exponent as published in Apple's JWK set.
func rsaKeyFromComponents(modulus, exponent string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(modulus)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(exponent)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid exponent value %d", e)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
