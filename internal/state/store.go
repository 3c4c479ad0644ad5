package state

import (
	"sync"

	"insight-backend/internal/models"
)

// Snapshot pairs a Dataset with its profile. Both are immutable after
// construction and always replaced together.
type Snapshot struct {
	Dataset *Dataset
	Profile *models.DatasetProfile
}

// Store holds the active Snapshot for the session. Replacement swaps a
// single reference, so concurrent readers observe either the fully-old
// or fully-new pair, never a partially replaced one.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{}
}

// Swap installs a new Dataset+Profile pair atomically.
func (s *Store) Swap(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Current returns the active snapshot, or nil when no dataset is loaded.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reset drops the active dataset.
func (s *Store) Reset() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}
