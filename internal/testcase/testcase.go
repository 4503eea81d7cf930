package testcase

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Testcase is one fixed sample input reused read-only across the whole
// search. Loaded once at startup; never mutated afterwards.
type Testcase struct {
	Source  string
	Samples []float64
}

// LoadDir loads every *.s16 capture (16-bit little-endian signed PCM) from
// dir. The set must be non-empty and all captures must share one length:
// scores are additive and unnormalized, so unequal lengths would make them
// incomparable.
func LoadDir(dir string) ([]Testcase, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.s16"))
	if err != nil {
		return nil, fmt.Errorf("scan testcase dir %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no *.s16 testcases in %s", dir)
	}
	sort.Strings(matches)

	cases := make([]Testcase, 0, len(matches))
	for _, path := range matches {
		samples, err := loadS16(path)
		if err != nil {
			return nil, err
		}
		cases = append(cases, Testcase{
			Source:  filepath.Base(path),
			Samples: samples,
		})
	}

	want := len(cases[0].Samples)
	for _, tc := range cases[1:] {
		if len(tc.Samples) != want {
			return nil, fmt.Errorf("testcase %s has %d samples, want %d (all testcases must share one length)",
				tc.Source, len(tc.Samples), want)
		}
	}
	return cases, nil
}

func loadS16(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read testcase %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("testcase %s is empty", path)
	}
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("testcase %s has odd byte count %d", path, len(data))
	}
	samples := make([]float64, len(data)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	return samples, nil
}
