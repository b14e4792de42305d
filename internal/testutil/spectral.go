package testutil

import (
	"math"
	"testing"

	algofft "github.com/cwbudde/algo-fft"
)

// DominantFrequency returns the frequency of the strongest bin in an
// FFT over the center fftLen samples of out, refined by parabolic
// interpolation on the log magnitudes of the neighboring bins.
func DominantFrequency(t *testing.T, out []float64, sampleRate float64, fftLen int) float64 {
	t.Helper()

	spectrum := centerSpectrum(t, out, fftLen)

	best := 1
	bestMag := 0.0
	for k := 1; k <= fftLen/2; k++ {
		mag := magSq(spectrum[k])
		if mag > bestMag {
			bestMag = mag
			best = k
		}
	}

	bin := float64(best)
	if best > 1 && best < fftLen/2 {
		m0 := math.Log(magSq(spectrum[best-1]) + 1e-30)
		m1 := math.Log(magSq(spectrum[best]) + 1e-30)
		m2 := math.Log(magSq(spectrum[best+1]) + 1e-30)
		den := m0 - 2*m1 + m2
		if math.Abs(den) > 1e-12 {
			bin += 0.5 * (m0 - m2) / den
		}
	}

	return bin * sampleRate / float64(fftLen)
}

// SNRAround runs an FFT on the center of out and returns the SNR in dB
// of the ±10 bin band around targetFreq against everything else.
func SNRAround(t *testing.T, out []float64, targetFreq, sampleRate float64, fftLen int) float64 {
	t.Helper()

	spectrum := centerSpectrum(t, out, fftLen)
	targetBin := int(math.Round(targetFreq * float64(fftLen) / sampleRate))

	const sigBW = 10

	sigPower := 0.0
	noisePower := 0.0

	for k := 1; k <= fftLen/2; k++ {
		mag2 := magSq(spectrum[k])
		if k >= targetBin-sigBW && k <= targetBin+sigBW {
			sigPower += mag2
		} else {
			noisePower += mag2
		}
	}

	if noisePower <= 1e-30 {
		return 100.0
	}

	return 10 * math.Log10(sigPower/noisePower)
}

func centerSpectrum(t *testing.T, out []float64, fftLen int) []complex128 {
	t.Helper()

	if len(out) < fftLen {
		t.Fatalf("signal too short for FFT: %d < %d", len(out), fftLen)
	}

	mid := max(len(out)/2-fftLen/2, 0)
	chunk := out[mid : mid+fftLen]

	plan, err := algofft.NewPlan64(fftLen)
	if err != nil {
		t.Fatalf("NewPlan64 error: %v", err)
	}

	fftIn := make([]complex128, fftLen)
	fftOut := make([]complex128, fftLen)

	for i, v := range chunk {
		fftIn[i] = complex(v, 0)
	}

	if err := plan.Forward(fftOut, fftIn); err != nil {
		t.Fatalf("Forward FFT error: %v", err)
	}

	return fftOut
}

func magSq(c complex128) float64 {
	return real(c)*real(c) + imag(c)*imag(c)
}
