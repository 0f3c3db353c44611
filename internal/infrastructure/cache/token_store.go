package cache

import (
	"sync"
	"time"
)

// TokenState is one authenticated session: the access/refresh token pair and
// their absolute expiry instants, computed as now + TTL at acquisition time.
type TokenState struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessValidFor reports whether the access token still has more than buffer
// of TTL remaining at now.
func (s TokenState) AccessValidFor(now time.Time, buffer time.Duration) bool {
	return s.AccessToken != "" && now.Add(buffer).Before(s.AccessExpiresAt)
}

// RefreshValid reports whether the refresh token is present and unexpired at now.
func (s TokenState) RefreshValid(now time.Time) bool {
	return s.RefreshToken != "" && now.Before(s.RefreshExpiresAt)
}

// TokenStore holds at most one TokenState behind a read/write mutex. Every
// install fully replaces the previous state; partial updates are impossible
// through this API.
type TokenStore struct {
	mu        sync.RWMutex
	state     TokenState
	installed bool
}

// NewTokenStore creates an empty thread-safe token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns the current state and whether one is installed. Expiry is the
// caller's concern; an installed state may already be stale.
func (c *TokenStore) Get() (TokenState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state, c.installed
}

// Install atomically replaces the stored state.
func (c *TokenStore) Install(s TokenState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
	c.installed = true
}

// Clear removes the stored state.
func (c *TokenStore) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = TokenState{}
	c.installed = false
}
