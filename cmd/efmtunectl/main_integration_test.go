package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"efmtune/pkg/efmtune"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	runErr := fn()
	_ = w.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	return buf.String(), runErr
}

func writeTestScripts(t *testing.T) (encode, decode string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("collaborator scripts require a POSIX shell")
	}
	dir := t.TempDir()

	encode = filepath.Join(dir, "encode.sh")
	encodeBody := `#!/bin/sh
for arg in "$@"; do artifact="$arg"; done
cat > "$artifact"
`
	if err := os.WriteFile(encode, []byte(encodeBody), 0o755); err != nil {
		t.Fatalf("write encode script: %v", err)
	}

	decode = filepath.Join(dir, "decode.sh")
	decodeBody := `#!/bin/sh
[ -s "$1" ] || exit 3
cat <<'EOF' >&2
EFM to F3 Frames:
  Valid syncs: 12
  Valid symbols: 130
  Valid frames: 9
F3 to F2 Frames:
  Input frames: 9
  Output frames: 8
F2 Frames to Sections:
  Valid sections: 1
EOF
`
	if err := os.WriteFile(decode, []byte(decodeBody), 0o755); err != nil {
		t.Fatalf("write decode script: %v", err)
	}
	return encode, decode
}

func writeTestSamples(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	buf := make([]byte, 0, 32*2)
	for i := 0; i < 32; i++ {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(i*200-3200)))
	}
	if err := os.WriteFile(filepath.Join(dir, "capture.s16"), buf, 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return dir
}

func TestRunCommandThenLeaderboard(t *testing.T) {
	encode, decode := writeTestScripts(t)
	samples := writeTestSamples(t)
	leaderboard := filepath.Join(t.TempDir(), "tune.leaderboard")

	out, err := captureStdout(t, func() error {
		return run(context.Background(), []string{
			"run",
			"-samples-dir", samples,
			"-encode", encode,
			"-decode", decode,
			"-leaderboard", leaderboard,
			"-multiplier", "1",
			"-seed", "7",
			"-gens", "1",
			"-workers", "2",
		})
	})
	if err != nil {
		t.Fatalf("run command: %v\noutput:\n%s", err, out)
	}
	if !strings.Contains(out, "run completed") || !strings.Contains(out, "best_score=") {
		t.Fatalf("missing run summary in output:\n%s", out)
	}
	if _, err := os.Stat(leaderboard); err != nil {
		t.Fatalf("leaderboard not persisted: %v", err)
	}

	out, err = captureStdout(t, func() error {
		return run(context.Background(), []string{
			"leaderboard",
			"-leaderboard", leaderboard,
			"-limit", "5",
			"-json",
		})
	})
	if err != nil {
		t.Fatalf("leaderboard command: %v", err)
	}
	var entries []efmtune.LeaderboardEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode leaderboard JSON: %v\noutput:\n%s", err, out)
	}
	if len(entries) != 5 || entries[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard entries: %+v", entries)
	}

	out, err = captureStdout(t, func() error {
		return run(context.Background(), []string{
			"diagnostics",
			"-leaderboard", leaderboard,
		})
	})
	if err != nil {
		t.Fatalf("diagnostics command: %v", err)
	}
	if !strings.Contains(out, "generation=") {
		t.Fatalf("missing diagnostics output:\n%s", out)
	}
}

func TestEvalCommandWithOverrides(t *testing.T) {
	encode, decode := writeTestScripts(t)
	samples := writeTestSamples(t)

	out, err := captureStdout(t, func() error {
		return run(context.Background(), []string{
			"eval",
			"-samples-dir", samples,
			"-encode", encode,
			"-decode", decode,
			"-set", "gain_2=1.5",
		})
	})
	if err != nil {
		t.Fatalf("eval command: %v", err)
	}
	if !strings.Contains(out, "testcase=capture.s16") || !strings.Contains(out, "total_score=") {
		t.Fatalf("missing eval output:\n%s", out)
	}
	if !strings.Contains(out, "gain_2=1.5") {
		t.Fatalf("override not reflected in output:\n%s", out)
	}
}

func TestRunDispatchErrors(t *testing.T) {
	if err := run(context.Background(), nil); err == nil {
		t.Fatal("expected missing command error")
	}
	if err := run(context.Background(), []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestFiltersCommand(t *testing.T) {
	out, err := captureStdout(t, func() error {
		return run(context.Background(), []string{"filters"})
	})
	if err != nil {
		t.Fatalf("filters command: %v", err)
	}
	if !strings.Contains(out, "bandgain") || !strings.Contains(out, "biquad") {
		t.Fatalf("expected registered filters in output:\n%s", out)
	}
}

func TestFormatParamsSortsNames(t *testing.T) {
	got := formatParams(map[string]float64{"width_hz": 200000, "gain_0": 1, "offset_hz": -5000})
	want := "gain_0=1 offset_hz=-5000 width_hz=200000"
	if got != want {
		t.Fatalf("formatParams = %q, want %q", got, want)
	}
}
