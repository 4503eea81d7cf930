package pipeline

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"efmtune/internal/testcase"
)

// passthrough returns its input unchanged so collaborator behaviour can be
// asserted without filter effects.
type passthrough struct{}

func (passthrough) Name() string { return "passthrough" }

func (passthrough) Transform(_ map[string]float64, samples []float64) ([]float64, error) {
	out := make([]float64, len(samples))
	copy(out, samples)
	return out, nil
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("collaborator fakes use /bin/sh")
	}
}

const fakeStats = `EFM to F3 Frames:
  Valid syncs: 10
  Valid symbols: 9
  Valid frames: 8
F3 to F2 Frames:
  Input frames: 8
  Output frames: 7
F2 Frames to Sections:
  Valid sections: 6
`

func fakeDecodeScript(t *testing.T, dir string) string {
	t.Helper()
	// Refuses an empty artifact the way the real decoder hangs on one, and
	// writes its primary output to the throwaway path.
	return writeScript(t, dir, "fake-decode", `
[ -s "$1" ] || exit 3
cp "$1" "$2"
cat >&2 <<'EOF'
`+fakeStats+`EOF
`)
}

func TestEvaluate(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	encode := writeScript(t, dir, "fake-encode", `cat > "$1"`+"\n")
	decode := fakeDecodeScript(t, dir)

	r := Runner{
		Filter:     passthrough{},
		EncodePath: encode,
		DecodePath: decode,
	}
	require.NoError(t, r.Validate())

	tc := testcase.Testcase{Source: "cap.s16", Samples: []float64{1, -2, 3, -4}}
	counters, err := r.Evaluate(context.Background(), map[string]float64{}, tc)
	require.NoError(t, err)
	assert.Equal(t, 10, counters.ValidSyncs)
	assert.Equal(t, 6, counters.ValidSections)
}

func TestEvaluateSubstitutesPlaceholderForEmptyArtifact(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	// Encoder exits 0 but produces a strictly empty artifact.
	encode := writeScript(t, dir, "fake-encode", `: > "$1"`+"\n")
	decode := fakeDecodeScript(t, dir)

	r := Runner{Filter: passthrough{}, EncodePath: encode, DecodePath: decode}
	tc := testcase.Testcase{Source: "cap.s16", Samples: []float64{0, 0}}
	counters, err := r.Evaluate(context.Background(), map[string]float64{}, tc)
	require.NoError(t, err, "decoder must see the one-byte placeholder, not an empty file")
	assert.Equal(t, 10, counters.ValidSyncs)
}

func TestEvaluateFailsOnEncodeExit(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	encode := writeScript(t, dir, "fake-encode", `echo "bad sample stream" >&2; exit 2`+"\n")
	decode := fakeDecodeScript(t, dir)

	r := Runner{Filter: passthrough{}, EncodePath: encode, DecodePath: decode}
	tc := testcase.Testcase{Source: "cap.s16", Samples: []float64{1}}
	_, err := r.Evaluate(context.Background(), map[string]float64{}, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad sample stream")
}

func TestEvaluateFailsOnIncompleteStats(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	encode := writeScript(t, dir, "fake-encode", `cat > "$1"`+"\n")
	decode := writeScript(t, dir, "fake-decode", `echo "EFM to F3 Frames:" >&2; echo "  Valid syncs: 1" >&2`+"\n")

	r := Runner{Filter: passthrough{}, EncodePath: encode, DecodePath: decode}
	tc := testcase.Testcase{Source: "cap.s16", Samples: []float64{1}}
	_, err := r.Evaluate(context.Background(), map[string]float64{}, tc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestEvaluateCleansScratchDir(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	scratchRoot := filepath.Join(dir, "scratch")
	require.NoError(t, os.Mkdir(scratchRoot, 0o755))
	encode := writeScript(t, dir, "fake-encode", `cat > "$1"`+"\n")
	decode := fakeDecodeScript(t, dir)

	r := Runner{Filter: passthrough{}, EncodePath: encode, DecodePath: decode, ScratchRoot: scratchRoot}
	tc := testcase.Testcase{Source: "cap.s16", Samples: []float64{5, 6}}
	_, err := r.Evaluate(context.Background(), map[string]float64{}, tc)
	require.NoError(t, err)

	entries, err := os.ReadDir(scratchRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be removed on exit")
}

func TestValidate(t *testing.T) {
	assert.Error(t, Runner{}.Validate())
	assert.Error(t, Runner{Filter: passthrough{}}.Validate())
	assert.Error(t, Runner{Filter: passthrough{}, EncodePath: "enc"}.Validate())
	assert.NoError(t, Runner{Filter: passthrough{}, EncodePath: "enc", DecodePath: "dec"}.Validate())
}

func TestEncodeS16LEClampsAndRounds(t *testing.T) {
	data := encodeS16LE([]float64{0.4, -1.6, 40000, -40000})
	require.Len(t, data, 8)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(data[0:])))
	assert.Equal(t, int16(-2), int16(binary.LittleEndian.Uint16(data[2:])))
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(data[4:])))
	assert.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(data[6:])))
}
