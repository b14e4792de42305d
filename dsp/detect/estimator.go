package detect

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-tune/dsp/buffer"
	"github.com/cwbudde/algo-tune/music"
)

const (
	// yinThreshold is the absolute threshold on the normalized
	// difference function. Lower is stricter.
	yinThreshold = 0.15

	// fallbackThreshold accepts the global minimum when no dip
	// crosses yinThreshold.
	fallbackThreshold = 0.5

	// frameDurationSec gives roughly the same analysis window at any
	// sample rate (~2048 samples at 44.1 kHz).
	frameDurationSec = 0.046

	maxFrameSize = 4096

	minRingSize = 8192
)

// VoiceRange restricts the period search to a plausible fundamental
// range, which is the main defense against octave errors.
type VoiceRange int

const (
	RangeSoprano VoiceRange = iota
	RangeAltoTenor
	RangeLowMale
	RangeInstrument
)

func (v VoiceRange) String() string {
	switch v {
	case RangeSoprano:
		return "Soprano"
	case RangeAltoTenor:
		return "Alto/Tenor"
	case RangeLowMale:
		return "Low Male"
	default:
		return "Instrument"
	}
}

// Bounds returns the fundamental search range in Hz.
func (v VoiceRange) Bounds() (minHz, maxHz float64) {
	switch v {
	case RangeSoprano:
		return 220, 1200
	case RangeAltoTenor:
		return 110, 750
	case RangeLowMale:
		return 65, 450
	default:
		return 50, 2000
	}
}

// Result is the outcome of the most recent completed analysis.
type Result struct {
	Voiced        bool
	FrequencyHz   float64
	MidiNote      float64
	PeriodSamples float64
	// Confidence is 1 minus the normalized difference at the detected
	// period, clamped to [0, 1].
	Confidence float64
}

// Estimator is a streaming YIN pitch estimator.
type Estimator struct {
	sampleRate float64
	frameSize  int
	hopSize    int

	voiceRange VoiceRange
	minFreqHz  float64
	maxFreqHz  float64

	ring     *buffer.Ring
	writePos int

	samplesUntilAnalysis int

	mono  []float64
	frame []float64
	diff  []float64

	result Result
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithVoiceRange sets the fundamental search range. Default is RangeAltoTenor.
func WithVoiceRange(v VoiceRange) Option {
	return func(e *Estimator) {
		e.voiceRange = v
	}
}

// NewEstimator returns an estimator prepared for the given sample rate
// and maximum block size.
func NewEstimator(sampleRate float64, maxBlockSize int, opts ...Option) (*Estimator, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("pitch estimator sample rate must be positive: %f", sampleRate)
	}
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("pitch estimator max block size must be positive: %d", maxBlockSize)
	}

	e := &Estimator{
		sampleRate: sampleRate,
		voiceRange: RangeAltoTenor,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.frameSize = buffer.NextPowerOfTwo(int(frameDurationSec * sampleRate))
	if e.frameSize > maxFrameSize {
		e.frameSize = maxFrameSize
	}
	e.hopSize = e.frameSize / 8

	ringSize := minRingSize
	if need := 2 * e.frameSize; need > ringSize {
		ringSize = need
	}

	ring, err := buffer.NewRing(ringSize)
	if err != nil {
		return nil, err
	}
	e.ring = ring

	e.mono = make([]float64, maxBlockSize)
	e.frame = make([]float64, e.frameSize)
	e.diff = make([]float64, e.frameSize/2)

	e.minFreqHz, e.maxFreqHz = e.voiceRange.Bounds()
	e.Reset()

	return e, nil
}

// FrameSize returns the analysis frame length in samples.
func (e *Estimator) FrameSize() int { return e.frameSize }

// HopSize returns the interval between analyses in samples.
func (e *Estimator) HopSize() int { return e.hopSize }

// SetVoiceRange changes the fundamental search range. The current
// result is kept; the new range applies from the next analysis.
func (e *Estimator) SetVoiceRange(v VoiceRange) {
	e.voiceRange = v
	e.minFreqHz, e.maxFreqHz = v.Bounds()
}

// VoiceRange returns the active search range.
func (e *Estimator) VoiceRange() VoiceRange { return e.voiceRange }

// Reset clears all accumulated audio and the detection result.
func (e *Estimator) Reset() {
	e.ring.Reset()
	e.writePos = 0
	e.samplesUntilAnalysis = 0
	e.result = Result{}
}

// Result returns the outcome of the most recent analysis.
func (e *Estimator) Result() Result { return e.result }

// Process feeds one block of audio. Multiple channels are averaged to
// mono before accumulation. An analysis runs every hop; the final
// completed analysis within the block becomes the current Result.
func (e *Estimator) Process(channels [][]float64) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return
	}

	numSamples := len(channels[0])
	if numSamples > len(e.mono) {
		e.mono = make([]float64, numSamples)
	}
	mono := e.mono[:numSamples]

	copy(mono, channels[0])
	for _, ch := range channels[1:] {
		vecmath.AddBlockInPlace(mono, ch)
	}
	if len(channels) > 1 {
		vecmath.ScaleBlockInPlace(mono, 1/float64(len(channels)))
	}

	for _, sample := range mono {
		e.ring.Set(e.writePos, sample)
		e.writePos++

		e.samplesUntilAnalysis--
		if e.samplesUntilAnalysis <= 0 {
			e.samplesUntilAnalysis = e.hopSize
			e.analyze()
		}
	}
}

// analyze extracts the newest frame from the ring and runs YIN on it.
func (e *Estimator) analyze() {
	e.ring.Read(e.writePos-e.frameSize, e.frame)

	e.computeDifference()
	e.normalizeDifference()

	tau := e.absoluteThreshold()
	if tau <= 0 {
		e.result = Result{}
		return
	}

	period := e.parabolicInterpolation(tau)
	freq := e.sampleRate / period

	if freq < e.minFreqHz || freq > e.maxFreqHz {
		e.result = Result{}
		return
	}

	confidence := 0.0
	if tau < len(e.diff) {
		confidence = 1 - e.diff[tau]
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	e.result = Result{
		Voiced:        true,
		FrequencyHz:   freq,
		MidiNote:      music.FrequencyToMidi(freq),
		PeriodSamples: period,
		Confidence:    confidence,
	}
}

// computeDifference fills e.diff with the YIN difference function
// d(tau) = sum_j (x[j] - x[j+tau])^2 over the first half-frame,
// expanded to E0 + Etau - 2*dot(x, x>>tau) so the inner sum is a
// single dot product.
func (e *Estimator) computeDifference() {
	w := len(e.diff)

	energy0 := vecmath.DotProduct(e.frame[:w], e.frame[:w])

	e.diff[0] = 0
	energyTau := energy0
	for tau := 1; tau < w; tau++ {
		// Slide the lagged window by one sample.
		energyTau += e.frame[tau+w-1]*e.frame[tau+w-1] - e.frame[tau-1]*e.frame[tau-1]

		dot := vecmath.DotProduct(e.frame[:w], e.frame[tau:tau+w])
		d := energy0 + energyTau - 2*dot
		if d < 0 {
			d = 0
		}
		e.diff[tau] = d
	}
}

// normalizeDifference converts e.diff to the cumulative-mean normalized
// form. d'(0) is 1 by definition; the normalization makes the
// threshold amplitude independent and suppresses harmonics.
func (e *Estimator) normalizeDifference() {
	e.diff[0] = 1

	cumulative := 0.0
	for tau := 1; tau < len(e.diff); tau++ {
		cumulative += e.diff[tau]
		if cumulative > 0 {
			e.diff[tau] *= float64(tau) / cumulative
		} else {
			e.diff[tau] = 1
		}
	}
}

// absoluteThreshold finds the period candidate: the local minimum after
// the first dip below yinThreshold, or the global minimum if it is
// convincing enough. Returns 0 when unvoiced.
func (e *Estimator) absoluteThreshold() int {
	minTau := int(e.sampleRate / e.maxFreqHz)
	if minTau < 2 {
		minTau = 2
	}
	maxTau := int(e.sampleRate / e.minFreqHz)
	if maxTau > len(e.diff)-1 {
		maxTau = len(e.diff) - 1
	}

	for tau := minTau; tau < maxTau; tau++ {
		if e.diff[tau] < yinThreshold {
			for tau+1 < maxTau && e.diff[tau+1] < e.diff[tau] {
				tau++
			}
			return tau
		}
	}

	if minTau >= maxTau {
		return 0
	}

	minValue := e.diff[minTau]
	minIndex := minTau
	for tau := minTau + 1; tau < maxTau; tau++ {
		if e.diff[tau] < minValue {
			minValue = e.diff[tau]
			minIndex = tau
		}
	}

	if minValue < fallbackThreshold {
		return minIndex
	}
	return 0
}

// parabolicInterpolation refines an integer period estimate to
// sub-sample accuracy by fitting a parabola through the neighbors.
func (e *Estimator) parabolicInterpolation(tau int) float64 {
	if tau < 1 || tau >= len(e.diff)-1 {
		return float64(tau)
	}

	y0 := e.diff[tau-1]
	y1 := e.diff[tau]
	y2 := e.diff[tau+1]

	den := 2 * (y0 - 2*y1 + y2)
	if math.Abs(den) < 1e-10 {
		return float64(tau)
	}

	return float64(tau) + (y0-y2)/den
}
