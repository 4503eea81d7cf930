package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"

	"efmtune/internal/filter"
	"efmtune/internal/model"
	"efmtune/internal/testcase"
)

const (
	artifactName = "coded.efm"
	decodedName  = "decoded.bin"
)

// Runner drives one candidate x one testcase through the external decode
// chain: filter transform, encode collaborator, decode collaborator, stage
// counter extraction. Each Evaluate call works in its own scratch directory
// so concurrent evaluations never collide on filenames; the directory is
// removed on exit, success or failure.
type Runner struct {
	Filter     filter.Filter
	EncodePath string
	EncodeArgs []string
	DecodePath string
	DecodeArgs []string

	// ScratchRoot overrides the temp root for scratch directories.
	// Empty means the OS default.
	ScratchRoot string
}

func (r Runner) Validate() error {
	if r.Filter == nil {
		return fmt.Errorf("pipeline: filter is required")
	}
	if r.EncodePath == "" {
		return fmt.Errorf("pipeline: encode collaborator path is required")
	}
	if r.DecodePath == "" {
		return fmt.Errorf("pipeline: decode collaborator path is required")
	}
	return nil
}

// Evaluate turns one (params, testcase) pair into a stage counter mapping.
// Any failure along the chain is fatal for the evaluation: a transform
// error, a non-zero collaborator exit, or incomplete statistics output.
func (r Runner) Evaluate(ctx context.Context, params map[string]float64, tc testcase.Testcase) (model.Counters, error) {
	filtered, err := r.Filter.Transform(params, tc.Samples)
	if err != nil {
		return model.Counters{}, fmt.Errorf("transform %s for %s: %w", r.Filter.Name(), tc.Source, err)
	}

	scratch, err := os.MkdirTemp(r.ScratchRoot, "efmtune-eval-")
	if err != nil {
		return model.Counters{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	artifact := filepath.Join(scratch, artifactName)
	if err := r.runEncode(ctx, filtered, artifact); err != nil {
		return model.Counters{}, fmt.Errorf("encode %s: %w", tc.Source, err)
	}

	if err := ensureNonEmptyArtifact(artifact); err != nil {
		return model.Counters{}, fmt.Errorf("encode %s: %w", tc.Source, err)
	}

	counters, err := r.runDecode(ctx, artifact, filepath.Join(scratch, decodedName))
	if err != nil {
		return model.Counters{}, fmt.Errorf("decode %s: %w", tc.Source, err)
	}
	return counters, nil
}

func (r Runner) runEncode(ctx context.Context, filtered []float64, artifact string) error {
	args := append(append([]string(nil), r.EncodeArgs...), artifact)
	cmd := exec.CommandContext(ctx, r.EncodePath, args...)
	cmd.Stdin = bytes.NewReader(encodeS16LE(filtered))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return collaboratorError("encode collaborator", err, &stderr)
	}
	return nil
}

func (r Runner) runDecode(ctx context.Context, artifact, throwaway string) (model.Counters, error) {
	args := append(append([]string(nil), r.DecodeArgs...), artifact, throwaway)
	cmd := exec.CommandContext(ctx, r.DecodePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return model.Counters{}, collaboratorError("decode collaborator", err, &stderr)
	}
	counters, err := ParseStats(stderr.Bytes())
	if err != nil {
		return model.Counters{}, err
	}
	return counters, nil
}

// ensureNonEmptyArtifact substitutes a one-byte placeholder for an empty or
// missing coded artifact. The decode collaborator blocks on an interactive
// error when handed a strictly empty file; a single byte instead yields
// all-zero counters.
func ensureNonEmptyArtifact(artifact string) error {
	info, err := os.Stat(artifact)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stat coded artifact: %w", err)
	}
	if err := os.WriteFile(artifact, []byte{0}, 0o644); err != nil {
		return fmt.Errorf("write placeholder artifact: %w", err)
	}
	return nil
}

func collaboratorError(name string, err error, stderr *bytes.Buffer) error {
	msg := bytes.TrimSpace(stderr.Bytes())
	if len(msg) == 0 {
		return fmt.Errorf("%s: %w", name, err)
	}
	const tail = 512
	if len(msg) > tail {
		msg = msg[len(msg)-tail:]
	}
	return fmt.Errorf("%s: %w: %s", name, err, msg)
}

// encodeS16LE converts filtered samples to the 16-bit little-endian signed
// stream the encode collaborator consumes, clamping out-of-range values.
func encodeS16LE(samples []float64) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Round(s)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		}
		if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}
