package jobgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"genesis/internal/domain"
)

// MemoryStore is an in-process domain.ActiveJobRepository that applies the
// same partial unique rule as the Postgres index.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]domain.ActiveJobMarker
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]domain.ActiveJobMarker{}}
}

func (s *MemoryStore) Insert(_ context.Context, m *domain.ActiveJobMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.rows[m.ID]; dup {
		return fmt.Errorf("memstore: duplicate id %s", m.ID)
	}
	for _, row := range s.rows {
		if row.UserID == m.UserID && row.Status == domain.JobStatusRunning {
			return fmt.Errorf("%w: user %s", domain.ErrConcurrency, m.UserID)
		}
	}
	m.Status = domain.JobStatusRunning
	s.rows[m.ID] = *m
	return nil
}

func (s *MemoryStore) Finish(_ context.Context, id string, status domain.JobStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != domain.JobStatusRunning {
		return false, nil
	}
	row.Status = status
	row.CompletedAt = &at
	s.rows[id] = row
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok && row.Status != domain.JobStatusRunning {
		delete(s.rows, id)
	}
	return nil
}

func (s *MemoryStore) DeleteStaleForUser(_ context.Context, userID string, startedBefore time.Time) (int64, error) {
	return s.deleteWhere(func(row domain.ActiveJobMarker) bool {
		return row.UserID == userID && (row.Status != domain.JobStatusRunning || row.StartedAt.Before(startedBefore))
	}), nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, startedBefore time.Time) (int64, error) {
	return s.deleteWhere(func(row domain.ActiveJobMarker) bool {
		return row.Status != domain.JobStatusRunning || row.StartedAt.Before(startedBefore)
	}), nil
}

func (s *MemoryStore) GetRunning(_ context.Context, userID string) (*domain.ActiveJobMarker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.UserID == userID && row.Status == domain.JobStatusRunning {
			out := row
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Len returns the number of stored rows in any status.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Put stores a row verbatim, bypassing the running check.
func (s *MemoryStore) Put(m domain.ActiveJobMarker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = m
}

func (s *MemoryStore) deleteWhere(match func(domain.ActiveJobMarker) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.rows {
		if match(row) {
			delete(s.rows, id)
			n++
		}
	}
	return n
}

var _ domain.ActiveJobRepository = (*MemoryStore)(nil)
