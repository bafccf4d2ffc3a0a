// Package memory provides an in-memory history store for lightweight
// deployments. Records are kept in a bounded ring and lost when the
// process exits.
package memory

import (
	"sync"

	"github.com/rhuss/cadbridge/pkg/history"
)

// Store is an in-memory ring of execution records.
type Store struct {
	mu      sync.RWMutex
	records []history.Record
	maxSize int // 0 = unlimited
}

var _ history.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0, the store grows
// without limit; otherwise the oldest record is evicted at capacity.
func New(maxSize int) *Store {
	return &Store{maxSize: maxSize}
}

// Append stores a record, evicting the oldest if at capacity.
func (s *Store) Append(rec history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSize > 0 && len(s.records) >= s.maxSize {
		s.records = s.records[1:]
	}
	s.records = append(s.records, rec)
	return nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(n int) ([]history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]history.Record, 0, n)
	for i := len(s.records) - 1; i >= len(s.records)-n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }
