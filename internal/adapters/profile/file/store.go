// Package file provides a crash-safe, file-backed profile store.
//
// The profile (issuer identity, IDP credentials, sequence counters) lives in
// a single JSON file. Writes use atomic file replacement (write to .tmp, then
// rename) so the file is never left in a partial state, and every operation
// is mutex-protected so concurrent sequence draws stay strictly increasing.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"3tcapital/hacienda_client/internal/core/profile"
)

// ErrNotFound is returned by Load when no profile file exists yet.
var ErrNotFound = errors.New("profile not found")

// Store persists one profile to a JSON file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the given file path. The parent
// directory is created if missing.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Load returns the stored profile, or ErrNotFound when none has been saved.
func (s *Store) Load(ctx context.Context) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save atomically replaces the stored profile.
func (s *Store) Save(ctx context.Context, p profile.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(p)
}

// NextSequence increments and returns the sequence counter for a document
// type. Counters start at 1 and are persisted before the value is returned,
// so a crash never reissues a consecutivo.
func (s *Store) NextSequence(ctx context.Context, docType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.load()
	if err != nil {
		return 0, err
	}

	if p.Sequences == nil {
		p.Sequences = make(map[string]int64)
	}
	next := p.Sequences[docType] + 1
	p.Sequences[docType] = next

	if err := s.save(p); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) load() (profile.Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return profile.Profile{}, ErrNotFound
		}
		return profile.Profile{}, fmt.Errorf("read profile: %w", err)
	}

	var p profile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return profile.Profile{}, fmt.Errorf("unmarshal profile: %w", err)
	}
	return p, nil
}

func (s *Store) save(p profile.Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return os.Rename(tmp, s.path)
}
