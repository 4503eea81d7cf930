package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"efmtune/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

type paramPayload struct {
	model.VersionedRecord
	Params map[string]float64 `json:"params"`
}

// EncodeRecord renders one leaderboard record as a single line:
// score, generation and a re-parseable JSON encoding of the full
// parameter mapping, tab separated.
func EncodeRecord(rec model.LeaderboardRecord) (string, error) {
	payload, err := json.Marshal(paramPayload{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: CurrentSchemaVersion,
			CodecVersion:  CurrentCodecVersion,
		},
		Params: rec.Params,
	})
	if err != nil {
		return "", fmt.Errorf("encode leaderboard params: %w", err)
	}
	score := strconv.FormatFloat(rec.Score, 'g', -1, 64)
	return score + "\t" + strconv.Itoa(rec.Generation) + "\t" + string(payload), nil
}

// DecodeRecord parses one leaderboard line back into a record.
func DecodeRecord(line string) (model.LeaderboardRecord, error) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) != 3 {
		return model.LeaderboardRecord{}, fmt.Errorf("leaderboard line has %d fields, want 3", len(fields))
	}
	score, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return model.LeaderboardRecord{}, fmt.Errorf("parse leaderboard score: %w", err)
	}
	generation, err := strconv.Atoi(fields[1])
	if err != nil {
		return model.LeaderboardRecord{}, fmt.Errorf("parse leaderboard generation: %w", err)
	}
	var payload paramPayload
	if err := json.Unmarshal([]byte(fields[2]), &payload); err != nil {
		return model.LeaderboardRecord{}, fmt.Errorf("decode leaderboard params: %w", err)
	}
	if err := checkVersion(payload.VersionedRecord); err != nil {
		return model.LeaderboardRecord{}, err
	}
	return model.LeaderboardRecord{
		VersionedRecord: payload.VersionedRecord,
		Score:           score,
		Generation:      generation,
		Params:          payload.Params,
	}, nil
}

func EncodeDiagnostics(diagnostics []model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(diagnostics)
}

func DecodeDiagnostics(data []byte) ([]model.GenerationDiagnostics, error) {
	var diagnostics []model.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, err
	}
	return diagnostics, nil
}

func checkVersion(rec model.VersionedRecord) error {
	if rec.SchemaVersion != CurrentSchemaVersion || rec.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, rec.SchemaVersion, rec.CodecVersion)
	}
	return nil
}
