package filter

import (
	"fmt"
	"sort"
)

// Filter transforms a sample buffer under a full parameter mapping. A
// transform is pure: deterministic for identical inputs, no I/O, and the
// input buffer is never modified. A transform failure is fatal for the
// evaluation that requested it.
type Filter interface {
	Name() string
	Transform(params map[string]float64, samples []float64) ([]float64, error)
}

// New returns a filter variant by name. The set of variants is closed and
// selected at configuration time.
func New(name string) (Filter, error) {
	switch name {
	case "", "bandgain":
		return BandGainFilter{}, nil
	case "biquad":
		return BiquadFilter{}, nil
	default:
		return nil, fmt.Errorf("unsupported filter variant: %s", name)
	}
}

// Names lists the available filter variants.
func Names() []string {
	names := []string{"bandgain", "biquad"}
	sort.Strings(names)
	return names
}

func paramOrErr(params map[string]float64, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter: %s", name)
	}
	return v, nil
}
