package window

import (
	"math"
	"testing"
)

func TestHannSymmetric(t *testing.T) {
	coeffs, err := Hann(9)
	if err != nil {
		t.Fatalf("Hann(9) failed: %v", err)
	}

	if got := coeffs[0]; math.Abs(got) > 1e-12 {
		t.Fatalf("symmetric Hann should start at 0, got %v", got)
	}
	if got := coeffs[8]; math.Abs(got) > 1e-12 {
		t.Fatalf("symmetric Hann should end at 0, got %v", got)
	}
	if got := coeffs[4]; math.Abs(got-1) > 1e-12 {
		t.Fatalf("symmetric Hann midpoint = %v, want 1", got)
	}

	for i := 0; i < len(coeffs)/2; i++ {
		if math.Abs(coeffs[i]-coeffs[len(coeffs)-1-i]) > 1e-12 {
			t.Fatalf("Hann not symmetric at index %d", i)
		}
	}
}

// Periodic Hann windows at 75% overlap sum to a constant, which keeps
// overlap-add gain flat.
func TestHannPeriodicOverlapAddIsFlat(t *testing.T) {
	const size = 256
	hop := size / 4

	coeffs, err := Hann(size, WithPeriodic())
	if err != nil {
		t.Fatalf("Hann failed: %v", err)
	}

	acc := make([]float64, size)
	for offset := 0; offset < size; offset += hop {
		for i := range coeffs {
			acc[(offset+i)%size] += coeffs[i]
		}
	}

	want := acc[0]
	for i, v := range acc {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("overlap-add sum varies at %d: %v vs %v", i, v, want)
		}
	}
}

func TestHannRejectsBadSize(t *testing.T) {
	if _, err := Hann(0); err == nil {
		t.Fatal("expected error for size 0")
	}
	if _, err := Hann(-4); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestApplyCoefficients(t *testing.T) {
	samples := []float64{1, 2, 3, 4}
	coeffs := []float64{0.5, 0.5, 0.5, 0.5}

	out, err := ApplyCoefficients(samples, coeffs)
	if err != nil {
		t.Fatalf("ApplyCoefficients failed: %v", err)
	}
	for i := range out {
		if out[i] != samples[i]*0.5 {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], samples[i]*0.5)
		}
	}
	// Input untouched.
	if samples[0] != 1 {
		t.Fatalf("input mutated: %v", samples)
	}

	if err := ApplyCoefficientsInPlace(samples, coeffs); err != nil {
		t.Fatalf("ApplyCoefficientsInPlace failed: %v", err)
	}
	if samples[2] != 1.5 {
		t.Fatalf("samples[2] = %v, want 1.5", samples[2])
	}

	if _, err := ApplyCoefficients(samples, coeffs[:2]); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestCoherentGain(t *testing.T) {
	coeffs, _ := Hann(1024, WithPeriodic())
	gain, err := CoherentGain(coeffs)
	if err != nil {
		t.Fatalf("CoherentGain failed: %v", err)
	}
	if math.Abs(gain-0.5) > 1e-9 {
		t.Fatalf("Hann coherent gain = %v, want ~0.5", gain)
	}

	if _, err := CoherentGain(nil); err == nil {
		t.Fatal("expected error for empty coefficients")
	}
}
