package storage

import (
	"context"

	"efmtune/internal/model"
)

// Store persists the leaderboard (the durable snapshot of the current
// population) and per-run generation diagnostics.
type Store interface {
	Init(ctx context.Context) error
	// SaveLeaderboard atomically replaces the whole leaderboard; a failed
	// save must leave the previously persisted leaderboard intact.
	SaveLeaderboard(ctx context.Context, records []model.LeaderboardRecord) error
	// LoadLeaderboard returns the persisted records and whether a
	// leaderboard exists at all.
	LoadLeaderboard(ctx context.Context) ([]model.LeaderboardRecord, bool, error)
	SaveRunDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetRunDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
}
