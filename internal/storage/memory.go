package storage

import (
	"context"
	"sync"

	"efmtune/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	leaderboard []model.LeaderboardRecord
	saved       bool
	diagnostics map[string][]model.GenerationDiagnostics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		diagnostics: make(map[string][]model.GenerationDiagnostics),
	}
}

// Init is a no-op: a memory store is usable as constructed.
func (s *MemoryStore) Init(_ context.Context) error {
	return nil
}

func (s *MemoryStore) SaveLeaderboard(_ context.Context, records []model.LeaderboardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leaderboard = append([]model.LeaderboardRecord(nil), records...)
	s.saved = true
	return nil
}

func (s *MemoryStore) LoadLeaderboard(_ context.Context) ([]model.LeaderboardRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.saved {
		return nil, false, nil
	}
	return append([]model.LeaderboardRecord(nil), s.leaderboard...), true, nil
}

func (s *MemoryStore) SaveRunDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.diagnostics == nil {
		s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	}
	s.diagnostics[runID] = append([]model.GenerationDiagnostics(nil), diagnostics...)
	return nil
}

func (s *MemoryStore) GetRunDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationDiagnostics(nil), diagnostics...), true, nil
}
