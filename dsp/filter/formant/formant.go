package formant

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-tune/dsp/core"
	"github.com/cwbudde/algo-tune/dsp/filter/biquad"
	"github.com/cwbudde/algo-tune/dsp/filter/design"
	"github.com/cwbudde/algo-tune/music"
)

const (
	numBands = 8

	bandQ = 2.0

	minBandFreq      = 20.0
	maxBandFreqRatio = 0.45

	minShiftSemitones = -6.0
	maxShiftSemitones = 6.0

	minShiftRatio = 0.5
	maxShiftRatio = 2.0

	// Shift changes are smoothed over 10 ms; coefficients are only
	// recomputed once the smoothed ratio has moved noticeably.
	shiftSmoothingMs = 10.0
	ratioUpdateEps   = 0.001

	envelopeSmoothingMs = 5.0
)

// Band centers spaced across the vocal formant regions, F1 through the
// presence band.
var bandCenters = [numBands]float64{250, 500, 1000, 1500, 2500, 3500, 5000, 7000}

// Filter shifts the spectral envelope of a mono signal by passing it
// through a bank of bandpass filters whose center frequencies are
// scaled by the shift ratio. Two controls combine into that ratio: a
// user shift in semitones, and a pitch-compensation ratio that moves
// formants opposite to a pitch shifter so timbre survives retuning.
type Filter struct {
	sampleRate float64

	shiftSemitones    float64
	pitchCompensation float64

	targetRatio      float64
	currentRatio     float64
	lastAppliedRatio float64
	smoothing        float64

	// The analysis bank stays at the unshifted centers and tracks the
	// per-band energy envelope of the incoming signal.
	analysis     [numBands]biquad.Section
	envelopes    [numBands]float64
	envSmoothing float64

	bank    [numBands]biquad.Section
	scratch []float64
	mix     []float64
}

// NewFilter constructs a formant shift filter prepared for the given
// sample rate and maximum block size.
func NewFilter(sampleRate float64, maxBlockSize int) (*Filter, error) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("formant filter sample rate must be positive and finite: %f", sampleRate)
	}
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("formant filter max block size must be positive: %d", maxBlockSize)
	}

	f := &Filter{
		sampleRate:        sampleRate,
		pitchCompensation: 1,
		targetRatio:       1,
		currentRatio:      1,
		smoothing:         core.SmoothingCoeff(shiftSmoothingMs, sampleRate),
		envSmoothing:      core.SmoothingCoeff(envelopeSmoothingMs, sampleRate),
		scratch:           make([]float64, maxBlockSize),
		mix:               make([]float64, maxBlockSize),
	}

	maxFreq := sampleRate * maxBandFreqRatio
	for i := range f.analysis {
		center := core.Clamp(bandCenters[i], minBandFreq, maxFreq)
		f.analysis[i].SetCoefficients(design.Bandpass(center, bandQ, sampleRate))
	}
	f.updateBank()

	return f, nil
}

// BandEnvelopes returns the smoothed per-band magnitude envelopes of
// the most recent non-bypassed input, low band first.
func (f *Filter) BandEnvelopes() [8]float64 {
	return f.envelopes
}

// ShiftSemitones returns the user formant shift.
func (f *Filter) ShiftSemitones() float64 { return f.shiftSemitones }

// SetShiftSemitones sets the user formant shift, clamped to one
// tritone in either direction.
func (f *Filter) SetShiftSemitones(semitones float64) {
	if math.IsNaN(semitones) || math.IsInf(semitones, 0) {
		return
	}
	f.shiftSemitones = core.Clamp(semitones, minShiftSemitones, maxShiftSemitones)
	f.targetRatio = f.effectiveRatio()
}

// SetPitchCompensation tells the filter how much the signal has been
// pitch shifted so the formants can be moved back. A ratio of 2 (one
// octave up) moves the bank down an octave.
func (f *Filter) SetPitchCompensation(pitchRatio float64) {
	if pitchRatio <= 0 || math.IsNaN(pitchRatio) || math.IsInf(pitchRatio, 0) {
		return
	}
	f.pitchCompensation = pitchRatio
	f.targetRatio = f.effectiveRatio()
}

// ShiftRatio returns the combined target ratio the bank is moving
// toward.
func (f *Filter) ShiftRatio() float64 { return f.targetRatio }

func (f *Filter) effectiveRatio() float64 {
	combined := music.SemitonesToRatio(f.shiftSemitones) / f.pitchCompensation
	return core.Clamp(combined, minShiftRatio, maxShiftRatio)
}

// Reset clears all filter state. The smoothed ratio jumps to the
// target immediately.
func (f *Filter) Reset() {
	for i := range f.bank {
		f.bank[i].Reset()
		f.analysis[i].Reset()
		f.envelopes[i] = 0
	}
	f.currentRatio = f.targetRatio
	f.updateBank()
}

func (f *Filter) updateBank() {
	maxFreq := f.sampleRate * maxBandFreqRatio
	for i := range f.bank {
		center := core.Clamp(bandCenters[i]*f.currentRatio, minBandFreq, maxFreq)
		f.bank[i].SetCoefficients(design.Bandpass(center, bandQ, f.sampleRate))
	}
	f.lastAppliedRatio = f.currentRatio
}

// Process shifts the formants of input into output. The slices must
// have equal length and may alias. At a ratio of 1 the signal passes
// through untouched.
func (f *Filter) Process(input, output []float64) {
	if len(input) == 0 {
		return
	}

	if math.Abs(f.currentRatio-1) < ratioUpdateEps && math.Abs(f.targetRatio-1) < ratioUpdateEps {
		copy(output, input)
		return
	}

	for range input {
		f.currentRatio = core.Smooth(f.currentRatio, f.targetRatio, f.smoothing)
	}
	if math.Abs(f.currentRatio-f.lastAppliedRatio) > ratioUpdateEps {
		f.updateBank()
	}

	f.mix = core.EnsureLen(f.mix, len(input))
	f.scratch = core.EnsureLen(f.scratch, len(input))
	core.Zero(f.mix)

	for i := range f.bank {
		f.analysis[i].ProcessBlockTo(f.scratch, input)
		env := f.envelopes[i]
		for _, v := range f.scratch {
			env = core.Smooth(env, math.Abs(v), f.envSmoothing)
		}
		f.envelopes[i] = env

		f.bank[i].ProcessBlockTo(f.scratch, input)
		vecmath.AddBlockInPlace(f.mix, f.scratch)
	}

	copy(output, f.mix)
}

// ProcessInPlace shifts buf in place.
func (f *Filter) ProcessInPlace(buf []float64) {
	f.Process(buf, buf)
}
