package param

import (
	"fmt"
	"math/rand"
	"sort"
)

// Bound is the inclusive range a mutable parameter may take.
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Space declares every parameter the filter needs together with the bounded
// subset subject to optimization. Parameters without a bound keep their
// default value and are never mutated.
type Space struct {
	Defaults map[string]float64
	Bounds   map[string]Bound
}

func (s Space) Validate() error {
	if len(s.Defaults) == 0 {
		return fmt.Errorf("parameter space has no defaults")
	}
	if len(s.Bounds) == 0 {
		return fmt.Errorf("parameter space has no bounded parameters")
	}
	for name, bound := range s.Bounds {
		def, ok := s.Defaults[name]
		if !ok {
			return fmt.Errorf("bounded parameter %s has no default", name)
		}
		if bound.Max < bound.Min {
			return fmt.Errorf("bounded parameter %s: max %g < min %g", name, bound.Max, bound.Min)
		}
		if def < bound.Min || def > bound.Max {
			return fmt.Errorf("bounded parameter %s: default %g outside [%g, %g]", name, def, bound.Min, bound.Max)
		}
	}
	return nil
}

// BoundedNames returns the mutable parameter names in a stable order.
func (s Space) BoundedNames() []string {
	names := make([]string, 0, len(s.Bounds))
	for name := range s.Bounds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sample draws a full parameter mapping with every bounded parameter uniform
// within its bound and every unbounded parameter at its default.
func (s Space) Sample(rng *rand.Rand) map[string]float64 {
	params := make(map[string]float64, len(s.Defaults))
	for name, def := range s.Defaults {
		params[name] = def
	}
	for name, bound := range s.Bounds {
		params[name] = bound.Min + rng.Float64()*(bound.Max-bound.Min)
	}
	return params
}

// InBounds reports whether every bounded parameter of params lies inside its
// declared bound.
func (s Space) InBounds(params map[string]float64) bool {
	for name, bound := range s.Bounds {
		v, ok := params[name]
		if !ok {
			return false
		}
		if v < bound.Min || v > bound.Max {
			return false
		}
	}
	return true
}

// CloneParams returns an independent copy of a parameter mapping.
func CloneParams(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for name, v := range params {
		out[name] = v
	}
	return out
}

// EqualizerBands is the band count of the stock RF equalizer space.
const EqualizerBands = 10

// DefaultSpace returns the stock EFM RF-equalizer parameter space: one gain
// per frequency band plus passband width and centre offset controls. Sample
// rate and reference level are fixed inputs of the transform, not tuned.
func DefaultSpace() Space {
	defaults := map[string]float64{
		"sample_rate_hz": 40000000,
		"reference":      1.0,
	}
	bounds := map[string]Bound{
		"width_hz":  {Min: 50000, Max: 400000},
		"offset_hz": {Min: -100000, Max: 100000},
	}
	defaults["width_hz"] = 200000
	defaults["offset_hz"] = 0
	for band := 0; band < EqualizerBands; band++ {
		name := fmt.Sprintf("gain_%d", band)
		defaults[name] = 1.0
		bounds[name] = Bound{Min: 0, Max: 4}
	}
	return Space{Defaults: defaults, Bounds: bounds}
}
