package testutil

import (
	"math"
	"math/rand"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// VibratoSine generates a sine whose frequency wobbles by depthHz at
// vibratoHz, which approximates a sung sustained note.
func VibratoSine(freqHz, vibratoHz, depthHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	phase := 0.0
	for i := range out {
		f := freqHz + depthHz*math.Sin(2*math.Pi*vibratoHz*float64(i)/sampleRate)
		phase += 2 * math.Pi * f / sampleRate
		out[i] = amplitude * math.Sin(phase)
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}
