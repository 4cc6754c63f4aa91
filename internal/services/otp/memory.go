// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package otp

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

type memoryEntry struct {
	digest    string
	expiresAt time.Time
}

// MemoryStore keeps codes in process memory. It suits a single instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore. A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key, digest string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{digest: digest, expiresAt: s.now().Add(ttl)}
	return nil
}

// CompareAndDelete implements Store.
func (s *MemoryStore) CompareAndDelete(_ context.Context, key, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(entry.digest), []byte(digest)) != 1 {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
