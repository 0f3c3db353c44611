package cache

import (
	"sync"
	"testing"
	"time"
)

func testState(base time.Time) TokenState {
	return TokenState{
		AccessToken:      "access-token",
		RefreshToken:     "refresh-token",
		AccessExpiresAt:  base.Add(5 * time.Minute),
		RefreshExpiresAt: base.Add(30 * time.Minute),
	}
}

func TestNewTokenStore(t *testing.T) {
	store := NewTokenStore()
	if store == nil {
		t.Fatal("expected store to be created, got nil")
	}

	if _, ok := store.Get(); ok {
		t.Error("expected empty store to report no installed state")
	}
}

func TestTokenStore_InstallAndGet(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewTokenStore()

	store.Install(testState(base))

	state, ok := store.Get()
	if !ok {
		t.Fatal("expected state to be installed")
	}
	if state.AccessToken != "access-token" {
		t.Errorf("expected access token %q, got %q", "access-token", state.AccessToken)
	}
	if state.RefreshToken != "refresh-token" {
		t.Errorf("expected refresh token %q, got %q", "refresh-token", state.RefreshToken)
	}
}

func TestTokenStore_Install_Replaces(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewTokenStore()
	store.Install(testState(base))

	replacement := TokenState{
		AccessToken:     "new-access",
		AccessExpiresAt: base.Add(10 * time.Minute),
	}
	store.Install(replacement)

	state, ok := store.Get()
	if !ok {
		t.Fatal("expected state to be installed")
	}
	if state.AccessToken != "new-access" {
		t.Errorf("expected replacement access token, got %q", state.AccessToken)
	}
	if state.RefreshToken != "" {
		t.Errorf("expected refresh token to be fully replaced, got %q", state.RefreshToken)
	}
}

func TestTokenStore_Clear(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewTokenStore()
	store.Install(testState(base))

	store.Clear()

	if _, ok := store.Get(); ok {
		t.Error("expected no installed state after Clear")
	}
}

func TestTokenStore_ConcurrentAccess(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewTokenStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Install(testState(base))
			store.Get()
		}()
	}
	wg.Wait()

	if _, ok := store.Get(); !ok {
		t.Error("expected state to be installed after concurrent writes")
	}
}

func TestTokenState_AccessValidFor(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := testState(base) // access expires at base + 5m

	tests := []struct {
		name   string
		now    time.Time
		buffer time.Duration
		valid  bool
	}{
		{name: "fresh token", now: base, buffer: 30 * time.Second, valid: true},
		{name: "inside buffer", now: base.Add(4*time.Minute + 35*time.Second), buffer: 30 * time.Second, valid: false},
		{name: "outside buffer", now: base.Add(4 * time.Minute), buffer: 30 * time.Second, valid: true},
		{name: "expired", now: base.Add(6 * time.Minute), buffer: 30 * time.Second, valid: false},
		{name: "exactly at buffer boundary", now: base.Add(4*time.Minute + 30*time.Second), buffer: 30 * time.Second, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := state.AccessValidFor(tt.now, tt.buffer); got != tt.valid {
				t.Errorf("expected AccessValidFor=%v, got %v", tt.valid, got)
			}
		})
	}
}

func TestTokenState_AccessValidFor_EmptyToken(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := TokenState{AccessExpiresAt: base.Add(time.Hour)}

	if state.AccessValidFor(base, 30*time.Second) {
		t.Error("expected empty access token to be invalid")
	}
}

func TestTokenState_RefreshValid(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := testState(base) // refresh expires at base + 30m

	tests := []struct {
		name  string
		now   time.Time
		valid bool
	}{
		{name: "fresh", now: base, valid: true},
		{name: "near expiry", now: base.Add(29 * time.Minute), valid: true},
		{name: "expired", now: base.Add(31 * time.Minute), valid: false},
		{name: "exactly at expiry", now: base.Add(30 * time.Minute), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := state.RefreshValid(tt.now); got != tt.valid {
				t.Errorf("expected RefreshValid=%v, got %v", tt.valid, got)
			}
		})
	}
}
