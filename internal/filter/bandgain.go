package filter

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"efmtune/internal/param"
)

// BandGainFilter is a frequency-domain equalizer: the sample buffer is
// transformed with a real FFT, each coefficient is scaled by a gain
// interpolated from the per-band gain parameters, and the result is
// transformed back.
type BandGainFilter struct{}

func (BandGainFilter) Name() string {
	return "bandgain"
}

func (f BandGainFilter) Transform(params map[string]float64, samples []float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("bandgain: empty sample buffer")
	}
	rate, err := paramOrErr(params, "sample_rate_hz")
	if err != nil {
		return nil, fmt.Errorf("bandgain: %w", err)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("bandgain: sample rate must be positive, got %g", rate)
	}
	width, err := paramOrErr(params, "width_hz")
	if err != nil {
		return nil, fmt.Errorf("bandgain: %w", err)
	}
	if width <= 0 {
		return nil, fmt.Errorf("bandgain: band width must be positive, got %g", width)
	}
	offset, err := paramOrErr(params, "offset_hz")
	if err != nil {
		return nil, fmt.Errorf("bandgain: %w", err)
	}
	reference := 1.0
	if v, ok := params["reference"]; ok && v != 0 {
		reference = v
	}
	gains := make([]float64, param.EqualizerBands)
	for band := range gains {
		g, err := paramOrErr(params, fmt.Sprintf("gain_%d", band))
		if err != nil {
			return nil, fmt.Errorf("bandgain: %w", err)
		}
		gains[band] = g
	}

	n := len(samples)
	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, samples)
	for k := range coeff {
		freq := fft.Freq(k) * rate
		coeff[k] *= complex(reference*bandGainAt(freq, offset, width, gains), 0)
	}
	out := fft.Sequence(nil, coeff)
	// Coefficients followed by Sequence scales by n.
	inv := 1 / float64(n)
	for i := range out {
		out[i] *= inv
	}
	return out, nil
}

// bandGainAt linearly interpolates between adjacent band gains. Band i is
// centred on offset + (i+0.5)*width; frequencies outside the equalized range
// take the edge band's gain.
func bandGainAt(freq, offset, width float64, gains []float64) float64 {
	pos := (freq-offset)/width - 0.5
	if pos <= 0 {
		return gains[0]
	}
	last := float64(len(gains) - 1)
	if pos >= last {
		return gains[len(gains)-1]
	}
	lo := int(pos)
	frac := pos - float64(lo)
	return gains[lo] + frac*(gains[lo+1]-gains[lo])
}
