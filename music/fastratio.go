package music

import "github.com/cwbudde/algo-approx"

const ln2 = 0.69314718055994530942

// pow2Fast approximates 2^x. Accurate to well under a cent over the
// ranges the humanizers use.
func pow2Fast(x float64) float64 {
	return float64(approx.FastExp(float32(x) * ln2))
}

// CentsToRatioFast is a fast approximation of CentsToRatio for
// per-sample modulation paths such as pitch drift.
func CentsToRatioFast(cents float64) float64 {
	return pow2Fast(cents / 1200)
}

// SemitonesToRatioFast is a fast approximation of SemitonesToRatio.
func SemitonesToRatioFast(semitones float64) float64 {
	return pow2Fast(semitones / 12)
}
