package hacienda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"3tcapital/hacienda_client/internal/infrastructure/cache"
	"3tcapital/hacienda_client/internal/infrastructure/clock"
)

// HTTPClient is the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// expiryBuffer is subtracted from the access token lifetime so a token is
// never used within 30 seconds of its server-side expiry.
const expiryBuffer = 30 * time.Second

const (
	grantPassword = "password"
	grantRefresh  = "refresh_token"
)

// Credentials are the identity provider login values. The manager keeps the
// last successfully used pair in memory for refresh fallback; it never
// persists them.
type Credentials struct {
	Username string
	Password string
}

// tokenResponse is the JSON document the identity provider returns for both
// password and refresh grants.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

// tokenCall is a shared in-flight renewal handle. The first caller that
// observes a stale token installs one and performs the network exchange;
// concurrent callers wait on done and read the same outcome.
type tokenCall struct {
	done  chan struct{}
	token string
	err   error
}

// TokenManager owns the authenticated session against the identity provider:
// password-grant login, silent refresh inside the expiry buffer, single-flight
// deduplication of concurrent renewals, and a one-shot password fallback when
// a refresh grant fails.
type TokenManager struct {
	tokenURL  string
	clientID  string
	transport HTTPClient
	clock     clock.Clock
	log       *slog.Logger

	store *cache.TokenStore

	mu       sync.Mutex
	creds    *Credentials
	inflight *tokenCall
}

// NewTokenManager creates a token manager for the given token endpoint and
// OAuth client id.
func NewTokenManager(tokenURL, clientID string, transport HTTPClient, clk clock.Clock, log *slog.Logger) *TokenManager {
	if clk == nil {
		clk = clock.System()
	}
	return &TokenManager{
		tokenURL:  tokenURL,
		clientID:  clientID,
		transport: transport,
		clock:     clk,
		log:       log,
		store:     cache.NewTokenStore(),
	}
}

// Authenticate performs a password-grant login. On success the new session
// replaces any previous one and the credentials are retained for refresh
// fallback; on failure a pre-existing session is left untouched.
func (m *TokenManager) Authenticate(ctx context.Context, creds Credentials) error {
	form := url.Values{}
	form.Set("grant_type", grantPassword)
	form.Set("client_id", m.clientID)
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	state, err := m.requestToken(ctx, form)
	if err != nil {
		m.log.Error("Authentication failed", "username", creds.Username, "error", err)
		return err
	}

	m.mu.Lock()
	m.creds = &creds
	m.mu.Unlock()
	m.store.Install(state)

	m.log.Info("Authenticated against identity provider",
		"username", creds.Username,
		"expires_at", state.AccessExpiresAt,
	)
	return nil
}

// GetAccessToken returns a valid access token, transparently renewing it when
// it is within the expiry buffer. Concurrent callers share a single renewal.
func (m *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	state, ok := m.store.Get()
	if !ok {
		return "", ErrNotAuthenticated
	}
	if state.AccessValidFor(m.clock.Now(), expiryBuffer) {
		return state.AccessToken, nil
	}

	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		return m.awaitCall(ctx, call)
	}
	// Double-check after acquiring the lock; another caller may have finished
	// a renewal between the staleness check and now.
	if state, ok := m.store.Get(); ok && state.AccessValidFor(m.clock.Now(), expiryBuffer) {
		m.mu.Unlock()
		return state.AccessToken, nil
	}
	call := &tokenCall{done: make(chan struct{})}
	m.inflight = call
	m.mu.Unlock()

	call.token, call.err = m.renew(ctx)
	close(call.done)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()

	return call.token, call.err
}

// IsAuthenticated reports whether a session is installed. The session may be
// stale; GetAccessToken handles renewal transparently.
func (m *TokenManager) IsAuthenticated() bool {
	_, ok := m.store.Get()
	return ok
}

// Invalidate clears the session synchronously. GetAccessToken fails with
// ErrNotAuthenticated until Authenticate succeeds again.
func (m *TokenManager) Invalidate() {
	m.store.Clear()
	m.log.Debug("Session invalidated")
}

func (m *TokenManager) awaitCall(ctx context.Context, call *tokenCall) (string, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// renew obtains a fresh access token: a refresh grant while the refresh token
// is alive, a password grant when it lapsed, and a one-shot password fallback
// when the provider rejects a refresh token the local clock considers valid.
func (m *TokenManager) renew(ctx context.Context) (string, error) {
	state, ok := m.store.Get()
	if !ok {
		return "", ErrNotAuthenticated
	}

	if !state.RefreshValid(m.clock.Now()) {
		creds, ok := m.credentials()
		if !ok {
			return "", fmt.Errorf("%w and no stored credentials to re-authenticate", ErrRefreshTokenExpired)
		}
		m.log.Debug("Refresh token expired, re-authenticating", "username", creds.Username)
		fresh, err := m.passwordGrant(ctx, creds)
		if err != nil {
			return "", fmt.Errorf("%w: re-authentication failed: %w", ErrRefreshTokenExpired, err)
		}
		m.store.Install(fresh)
		return fresh.AccessToken, nil
	}

	fresh, refreshErr := m.refreshGrant(ctx, state.RefreshToken)
	if refreshErr == nil {
		m.store.Install(fresh)
		m.log.Debug("Access token refreshed", "expires_at", fresh.AccessExpiresAt)
		return fresh.AccessToken, nil
	}

	// The provider rejected a refresh token that looks valid locally. Try one
	// password grant before giving up.
	creds, ok := m.credentials()
	if !ok {
		return "", fmt.Errorf("%w: %w", ErrTokenRefreshFailed, refreshErr)
	}
	m.log.Warn("Refresh grant failed, falling back to password grant",
		"username", creds.Username,
		"error", refreshErr,
	)
	fresh, err := m.passwordGrant(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("%w: refresh grant: %v; password grant fallback: %w", ErrTokenRefreshFailed, refreshErr, err)
	}
	m.store.Install(fresh)
	m.log.Info("Session recovered through password grant fallback", "username", creds.Username)
	return fresh.AccessToken, nil
}

func (m *TokenManager) credentials() (Credentials, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, false
	}
	return *m.creds, true
}

func (m *TokenManager) passwordGrant(ctx context.Context, creds Credentials) (cache.TokenState, error) {
	form := url.Values{}
	form.Set("grant_type", grantPassword)
	form.Set("client_id", m.clientID)
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	return m.requestToken(ctx, form)
}

func (m *TokenManager) refreshGrant(ctx context.Context, refreshToken string) (cache.TokenState, error) {
	form := url.Values{}
	form.Set("grant_type", grantRefresh)
	form.Set("client_id", m.clientID)
	form.Set("refresh_token", refreshToken)
	return m.requestToken(ctx, form)
}

// requestToken executes one form-encoded exchange against the token endpoint.
func (m *TokenManager) requestToken(ctx context.Context, form url.Values) (cache.TokenState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return cache.TokenState{}, fmt.Errorf("%w: create request: %v", ErrTokenRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.transport.Do(req)
	if err != nil {
		return cache.TokenState{}, fmt.Errorf("%w: %v", ErrTokenRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cache.TokenState{}, fmt.Errorf("%w: read response body: %v", ErrTokenRequestFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return cache.TokenState{}, fmt.Errorf("%w: identity provider returned status %d: %s",
			ErrTokenRequestFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return cache.TokenState{}, fmt.Errorf("%w: %v", ErrInvalidTokenResponse, err)
	}
	return m.buildState(tr)
}

// buildState maps a token response onto absolute expiry times. Keycloak
// normally sends expires_in; when it is absent the exp claim of the JWT is
// used instead.
func (m *TokenManager) buildState(tr tokenResponse) (cache.TokenState, error) {
	if strings.TrimSpace(tr.AccessToken) == "" {
		return cache.TokenState{}, fmt.Errorf("%w: missing access_token", ErrInvalidTokenResponse)
	}

	now := m.clock.Now()
	state := cache.TokenState{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
	}

	if tr.ExpiresIn > 0 {
		state.AccessExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	} else {
		exp, err := tokenExpiry(tr.AccessToken)
		if err != nil {
			return cache.TokenState{}, fmt.Errorf("%w: no expires_in and no usable exp claim: %v", ErrInvalidTokenResponse, err)
		}
		state.AccessExpiresAt = exp
	}

	if tr.RefreshExpiresIn > 0 {
		state.RefreshExpiresAt = now.Add(time.Duration(tr.RefreshExpiresIn) * time.Second)
	} else if tr.RefreshToken != "" {
		if exp, err := tokenExpiry(tr.RefreshToken); err == nil {
			state.RefreshExpiresAt = exp
		}
	}

	return state, nil
}

// tokenExpiry reads the exp claim of a JWT without verifying the signature.
// Verification is the provider's job; this is only an expiry hint.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("no exp claim")
	}
	return exp.Time, nil
}
