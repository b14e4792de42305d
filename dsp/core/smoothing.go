package core

import "math"

// SmoothingCoeff returns the per-sample coefficient of a one-pole lowpass
// that reaches roughly 63% of a step within timeMs milliseconds.
// Non-positive times or sample rates yield 1, which makes Smooth jump
// straight to the target.
func SmoothingCoeff(timeMs, sampleRate float64) float64 {
	if timeMs <= 0 || sampleRate <= 0 {
		return 1
	}

	return 1 - math.Exp(-1/(timeMs/1000*sampleRate))
}

// Smooth advances current one step toward target using a one-pole coefficient.
func Smooth(current, target, coeff float64) float64 {
	return current + coeff*(target-current)
}

// Smoother is a one-pole parameter smoother with a fixed time constant.
// The zero value is unusable; configure it with Prepare.
type Smoother struct {
	current float64
	target  float64
	coeff   float64
}

// Prepare sets the time constant and resets both current and target to value.
func (s *Smoother) Prepare(timeMs, sampleRate, value float64) {
	s.coeff = SmoothingCoeff(timeMs, sampleRate)
	s.Reset(value)
}

// Reset jumps current and target to value without smoothing.
func (s *Smoother) Reset(value float64) {
	s.current = value
	s.target = value
}

// SetTarget sets the value the smoother converges toward.
func (s *Smoother) SetTarget(value float64) {
	s.target = value
}

// Next advances one sample and returns the smoothed value.
func (s *Smoother) Next() float64 {
	s.current = Smooth(s.current, s.target, s.coeff)
	return s.current
}

// Value returns the current smoothed value without advancing.
func (s *Smoother) Value() float64 {
	return s.current
}
