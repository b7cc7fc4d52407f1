// Package memory keeps trial documents in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trialcore/internal/persistence"
	"trialcore/pkg/document"
)

var _ persistence.Store = (*Store)(nil)

type row struct {
	doc       document.Object
	updatedAt time.Time
}

// Store implements persistence.Store with a map of deep copies.
type Store struct {
	mu   sync.RWMutex
	rows map[string]row
	now  func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{rows: map[string]row{}, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns a copy of the stored document.
func (s *Store) Get(_ context.Context, studyID string) (document.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[studyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrNotFound, studyID)
	}
	return document.CloneObject(r.doc), nil
}

// Put stores a copy of doc.
func (s *Store) Put(_ context.Context, studyID string, doc document.Object) error {
	if studyID == "" {
		return fmt.Errorf("study id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[studyID] = row{doc: document.CloneObject(doc), updatedAt: s.now()}
	return nil
}

// List implements persistence.Store.
func (s *Store) List(_ context.Context) ([]persistence.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.Entry, 0, len(s.rows))
	for id, r := range s.rows {
		out = append(out, persistence.Entry{StudyID: id, UpdatedAt: r.updatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudyID < out[j].StudyID })
	return out, nil
}

// Delete implements persistence.Store.
func (s *Store) Delete(_ context.Context, studyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[studyID]
	delete(s.rows, studyID)
	return ok, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
