package storage

import (
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/stereocards/internal/importer"
)

// RunStore remembers import runs started through the HTTP interface so their
// summaries stay available after the importer moves on.
type RunStore struct {
	runs map[string]*importer.Run
	mu   sync.RWMutex
}

func New() *RunStore {
	return &RunStore{
		runs: make(map[string]*importer.Run),
	}
}

func (s *RunStore) Get(runID string) (*importer.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, exists := s.runs[runID]
	return run, exists
}

func (s *RunStore) Set(run *importer.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

// Summaries returns every run's summary, oldest first.
func (s *RunStore) Summaries() []importer.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]importer.Summary, 0, len(s.runs))
	for _, run := range s.runs {
		result = append(result, run.Summary())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

func (s *RunStore) Delete(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
