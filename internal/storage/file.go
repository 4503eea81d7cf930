package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"efmtune/internal/model"
)

// FileStore keeps the leaderboard as a plain text file, one record per
// line, rewritten wholesale through a temp-file-then-rename so a crash or
// failed write never leaves a partially written leaderboard. Run
// diagnostics live in a JSON sidecar next to the leaderboard.
type FileStore struct {
	path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Init(_ context.Context) error {
	if s.path == "" {
		return errors.New("leaderboard path is required")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create leaderboard dir %s: %w", dir, err)
	}
	return nil
}

func (s *FileStore) SaveLeaderboard(_ context.Context, records []model.LeaderboardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]string, 0, len(records))
	for i, rec := range records {
		line, err := EncodeRecord(rec)
		if err != nil {
			return fmt.Errorf("encode leaderboard record %d: %w", i, err)
		}
		lines = append(lines, line)
	}
	body := strings.Join(lines, "\n")
	if len(lines) > 0 {
		body += "\n"
	}
	return atomicWrite(s.path, []byte(body))
}

func (s *FileStore) LoadLeaderboard(_ context.Context) ([]model.LeaderboardRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open leaderboard %s: %w", s.path, err)
	}
	defer f.Close()

	var records []model.LeaderboardRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := DecodeRecord(line)
		if err != nil {
			return nil, false, fmt.Errorf("leaderboard %s line %d: %w", s.path, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("read leaderboard %s: %w", s.path, err)
	}
	return records, true, nil
}

func (s *FileStore) SaveRunDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := EncodeDiagnostics(diagnostics)
	if err != nil {
		return fmt.Errorf("encode diagnostics for %s: %w", runID, err)
	}
	return atomicWrite(s.diagnosticsPath(runID), payload)
}

func (s *FileStore) GetRunDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.diagnosticsPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	diagnostics, err := DecodeDiagnostics(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode diagnostics for %s: %w", runID, err)
	}
	return diagnostics, true, nil
}

func (s *FileStore) diagnosticsPath(runID string) string {
	return s.path + "." + runID + ".diagnostics.json"
}

// atomicWrite replaces path via a temp file in the same directory. The
// rename is the commit point; on any earlier failure the previous file is
// untouched.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	tmpName = ""
	return nil
}
