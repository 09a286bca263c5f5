package commerce

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const (
	defaultTokenTTL    = time.Hour
	defaultTokenBuffer = 30 * time.Second
)

// RefreshFunc obtains a new token and its expiry.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenCache holds one bearer token for the component that makes authenticated
// calls. The token is refreshed lazily once now > expiresAt - buffer.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	buffer    time.Duration
	refresh   RefreshFunc
	now       func() time.Time
}

func NewTokenCache(refresh RefreshFunc) *TokenCache {
	return &TokenCache{
		buffer:  defaultTokenBuffer,
		refresh: refresh,
		now:     time.Now,
	}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !c.now().After(c.expiresAt.Add(-c.buffer)) {
		return c.token, nil
	}

	token, expiresAt, err := c.refresh(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token, e.g. after the backend rejected it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// tokenExpiry reads the exp claim of a JWT, falling back to issuedAt + defaultTokenTTL.
func tokenExpiry(token string, issuedAt time.Time) time.Time {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return issuedAt.Add(defaultTokenTTL)
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return issuedAt.Add(defaultTokenTTL)
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return issuedAt.Add(defaultTokenTTL)
	}
	return time.Unix(claims.Exp, 0)
}
