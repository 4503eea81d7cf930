package filter

import (
	"fmt"
	"math"

	"efmtune/internal/param"
)

// BiquadFilter realises the same per-band gain controls as BandGainFilter
// with a cascade of RBJ peaking sections, one per band. It avoids the FFT
// and is usable on buffers of any length.
type BiquadFilter struct{}

func (BiquadFilter) Name() string {
	return "biquad"
}

type biquadSection struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (f BiquadFilter) Transform(params map[string]float64, samples []float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("biquad: empty sample buffer")
	}
	rate, err := paramOrErr(params, "sample_rate_hz")
	if err != nil {
		return nil, fmt.Errorf("biquad: %w", err)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("biquad: sample rate must be positive, got %g", rate)
	}
	width, err := paramOrErr(params, "width_hz")
	if err != nil {
		return nil, fmt.Errorf("biquad: %w", err)
	}
	if width <= 0 {
		return nil, fmt.Errorf("biquad: band width must be positive, got %g", width)
	}
	offset, err := paramOrErr(params, "offset_hz")
	if err != nil {
		return nil, fmt.Errorf("biquad: %w", err)
	}

	nyquist := rate / 2
	sections := make([]biquadSection, 0, param.EqualizerBands)
	for band := 0; band < param.EqualizerBands; band++ {
		gain, err := paramOrErr(params, fmt.Sprintf("gain_%d", band))
		if err != nil {
			return nil, fmt.Errorf("biquad: %w", err)
		}
		center := offset + (float64(band)+0.5)*width
		if center <= 0 || center >= nyquist {
			continue
		}
		sections = append(sections, peakingSection(center, width, gain, rate))
	}

	out := make([]float64, len(samples))
	copy(out, samples)
	for _, s := range sections {
		var z1, z2 float64
		for i, x := range out {
			y := s.b0*x + z1
			z1 = s.b1*x - s.a1*y + z2
			z2 = s.b2*x - s.a2*y
			out[i] = y
		}
	}
	if reference, ok := params["reference"]; ok && reference != 0 {
		for i := range out {
			out[i] *= reference
		}
	}
	return out, nil
}

// peakingSection builds an RBJ peaking-EQ biquad for the given centre
// frequency and bandwidth. A zero or negative linear gain is floored well
// below unity instead of producing an undefined section.
func peakingSection(center, width, gain, rate float64) biquadSection {
	const minGain = 1e-2
	if gain < minGain {
		gain = minGain
	}
	a := math.Sqrt(gain)
	w0 := 2 * math.Pi * center / rate
	q := center / width
	alpha := math.Sin(w0) / (2 * q)

	b0 := 1 + alpha*a
	b1 := -2 * math.Cos(w0)
	b2 := 1 - alpha*a
	a0 := 1 + alpha/a
	a1 := b1
	a2 := 1 - alpha/a

	return biquadSection{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}
