package commerce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache_RefreshesLazilyWithinBuffer(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	refreshes := 0

	cache := NewTokenCache(func(context.Context) (string, time.Time, error) {
		refreshes++
		return "token", now.Add(time.Hour), nil
	})
	cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tok, err := cache.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "token", tok)
	}
	assert.Equal(t, 1, refreshes)

	// inside the buffer window before expiry
	now = now.Add(time.Hour - 10*time.Second)
	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, refreshes)
}

func TestTokenCache_RefreshError(t *testing.T) {
	cache := NewTokenCache(func(context.Context) (string, time.Time, error) {
		return "", time.Time{}, errors.New("login rejected")
	})

	_, err := cache.Token(context.Background())
	assert.EqualError(t, err, "login rejected")
}

func TestTokenCache_Invalidate(t *testing.T) {
	refreshes := 0
	cache := NewTokenCache(func(context.Context) (string, time.Time, error) {
		refreshes++
		return "token", time.Now().Add(time.Hour), nil
	})

	_, _ = cache.Token(context.Background())
	cache.Invalidate()
	_, _ = cache.Token(context.Background())
	assert.Equal(t, 2, refreshes)
}

func TestTokenExpiry(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := issued.Add(2 * time.Hour)

	assert.Equal(t, exp.Unix(), tokenExpiry(fakeJWT(exp), issued).Unix())
	assert.Equal(t, issued.Add(defaultTokenTTL), tokenExpiry("opaque-token", issued))
}
