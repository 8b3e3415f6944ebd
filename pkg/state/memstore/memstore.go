// Package memstore keeps the last applied optime in memory. It backs
// tests and demo runs where persistence across restarts does not matter.
package memstore

import (
    "sync"

    "github.com/amirimatin/go-freshness/pkg/optime"
    "github.com/amirimatin/go-freshness/pkg/state"
)

// Store is an in-memory OpTimeStore.
type Store struct {
    mu   sync.RWMutex
    last optime.OpTime
}

func New() *Store { return &Store{} }

func (s *Store) Load() (optime.OpTime, error) {
    s.mu.RLock(); defer s.mu.RUnlock()
    return s.last, nil
}

func (s *Store) Save(at optime.OpTime) error {
    s.mu.Lock(); defer s.mu.Unlock()
    s.last = at
    return nil
}

func (s *Store) Close() error { return nil }

// Ensure interface satisfaction at compile-time.
var _ state.OpTimeStore = (*Store)(nil)
