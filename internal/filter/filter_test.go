package filter

import (
	"math"
	"testing"

	"efmtune/internal/param"
)

func unityParams() map[string]float64 {
	space := param.DefaultSpace()
	params := make(map[string]float64, len(space.Defaults))
	for name, v := range space.Defaults {
		params[name] = v
	}
	// Keep every band centre well inside the passband for a short buffer.
	params["sample_rate_hz"] = 8000000
	return params
}

func testTone(n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2*math.Pi*float64(i)/64) + 0.25*math.Sin(2*math.Pi*float64(i)/7)
	}
	return samples
}

func TestNewResolvesVariants(t *testing.T) {
	for _, name := range Names() {
		f, err := New(name)
		if err != nil {
			t.Fatalf("new %s: %v", name, err)
		}
		if f.Name() != name {
			t.Fatalf("variant %s reports name %s", name, f.Name())
		}
	}
	if _, err := New("chebyshev"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestNewDefaultsToBandGain(t *testing.T) {
	f, err := New("")
	if err != nil {
		t.Fatalf("new default: %v", err)
	}
	if f.Name() != "bandgain" {
		t.Fatalf("default variant is %s", f.Name())
	}
}

func TestBandGainUnityIsIdentity(t *testing.T) {
	samples := testTone(256)
	out, err := BandGainFilter{}.Transform(unityParams(), samples)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if len(out) != len(samples) {
		t.Fatalf("length changed: %d -> %d", len(samples), len(out))
	}
	for i := range samples {
		if math.Abs(out[i]-samples[i]) > 1e-9 {
			t.Fatalf("sample %d changed under unity gains: %g -> %g", i, samples[i], out[i])
		}
	}
}

func TestBiquadUnityIsIdentity(t *testing.T) {
	samples := testTone(256)
	out, err := BiquadFilter{}.Transform(unityParams(), samples)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	for i := range samples {
		if math.Abs(out[i]-samples[i]) > 1e-9 {
			t.Fatalf("sample %d changed under unity gains: %g -> %g", i, samples[i], out[i])
		}
	}
}

func TestTransformIsDeterministicAndPure(t *testing.T) {
	params := unityParams()
	params["gain_3"] = 2.5
	samples := testTone(128)
	input := append([]float64(nil), samples...)

	for _, f := range []Filter{BandGainFilter{}, BiquadFilter{}} {
		first, err := f.Transform(params, samples)
		if err != nil {
			t.Fatalf("%s transform: %v", f.Name(), err)
		}
		second, err := f.Transform(params, samples)
		if err != nil {
			t.Fatalf("%s transform: %v", f.Name(), err)
		}
		for i := range first {
			if first[i] != second[i] {
				t.Fatalf("%s not deterministic at sample %d", f.Name(), i)
			}
		}
		for i := range samples {
			if samples[i] != input[i] {
				t.Fatalf("%s mutated its input at sample %d", f.Name(), i)
			}
		}
	}
}

func TestTransformRejectsMissingParameters(t *testing.T) {
	for _, f := range []Filter{BandGainFilter{}, BiquadFilter{}} {
		if _, err := f.Transform(map[string]float64{}, testTone(16)); err == nil {
			t.Fatalf("%s accepted empty parameter map", f.Name())
		}
	}
}

func TestTransformRejectsEmptyBuffer(t *testing.T) {
	for _, f := range []Filter{BandGainFilter{}, BiquadFilter{}} {
		if _, err := f.Transform(unityParams(), nil); err == nil {
			t.Fatalf("%s accepted an empty buffer", f.Name())
		}
	}
}

func TestBandGainAtInterpolates(t *testing.T) {
	gains := []float64{1, 3, 2}
	// Band centres at 0.5w, 1.5w, 2.5w with offset 0 and width 100.
	if got := bandGainAt(50, 0, 100, gains); got != 1 {
		t.Fatalf("centre of band 0: got %g", got)
	}
	if got := bandGainAt(100, 0, 100, gains); math.Abs(got-2) > 1e-12 {
		t.Fatalf("midpoint between bands 0 and 1: got %g", got)
	}
	if got := bandGainAt(-500, 0, 100, gains); got != 1 {
		t.Fatalf("below range should take edge gain: got %g", got)
	}
	if got := bandGainAt(5000, 0, 100, gains); got != 2 {
		t.Fatalf("above range should take edge gain: got %g", got)
	}
}
