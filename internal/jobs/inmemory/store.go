package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-pipeline/internal/jobs"
)

// Store is an in-memory RunStore, safe for concurrent use. Runs are lost
// on restart.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*jobs.Run
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*jobs.Run)}
}

// SaveRun saves or replaces a run.
func (s *Store) SaveRun(_ context.Context, run *jobs.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

// GetRun returns a copy of the run with the given id.
func (s *Store) GetRun(_ context.Context, id string) (*jobs.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrRunNotFound, id)
	}
	return run.Clone(), nil
}

// ListRuns returns matching runs, newest first.
func (s *Store) ListRuns(_ context.Context, filter jobs.RunFilter) ([]*jobs.Run, error) {
	s.mu.RLock()
	result := make([]*jobs.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Operation != "" && run.Operation != filter.Operation {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		result = append(result, run.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.Run{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.RunStore = (*Store)(nil)
