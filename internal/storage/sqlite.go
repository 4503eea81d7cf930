//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"efmtune/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// SaveLeaderboard replaces the whole leaderboard inside one transaction, so
// readers either see the previous generation's snapshot or the new one.
func (s *SQLiteStore) SaveLeaderboard(ctx context.Context, records []model.LeaderboardRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM leaderboard`); err != nil {
		return err
	}
	for slot, rec := range records {
		payload, err := json.Marshal(rec.Params)
		if err != nil {
			return fmt.Errorf("encode leaderboard params for slot %d: %w", slot, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO leaderboard (slot, score, generation, schema_version, codec_version, payload)
			VALUES (?, ?, ?, ?, ?, ?)
		`, slot, rec.Score, rec.Generation, CurrentSchemaVersion, CurrentCodecVersion, payload)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadLeaderboard(ctx context.Context) ([]model.LeaderboardRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT score, generation, schema_version, codec_version, payload
		FROM leaderboard ORDER BY slot
	`)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var records []model.LeaderboardRecord
	for rows.Next() {
		var rec model.LeaderboardRecord
		var payload []byte
		if err := rows.Scan(&rec.Score, &rec.Generation, &rec.SchemaVersion, &rec.CodecVersion, &payload); err != nil {
			return nil, false, err
		}
		if err := checkVersion(rec.VersionedRecord); err != nil {
			return nil, false, err
		}
		if err := json.Unmarshal(payload, &rec.Params); err != nil {
			return nil, false, fmt.Errorf("decode leaderboard params: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return records, len(records) > 0, nil
}

func (s *SQLiteStore) SaveRunDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeDiagnostics(diagnostics)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO diagnostics (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetRunDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM diagnostics WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	diagnostics, err := DecodeDiagnostics(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS leaderboard (
			slot INTEGER PRIMARY KEY,
			score REAL NOT NULL,
			generation INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
