package tuner

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-tune/dsp/core"
	"github.com/cwbudde/algo-tune/dsp/effects/pitch"
	"github.com/cwbudde/algo-tune/dsp/interp"
	"github.com/cwbudde/algo-tune/music"
)

const (
	// Retune speed maps exponentially onto a smoothing time constant:
	// speed 0 corrects over 400 ms, speed 100 is effectively instant.
	retuneMaxTimeMs = 400.0
	retuneMinTimeMs = 0.5

	// Humanize at full strength halves the correction and allows up
	// to 8 cents of slow drift.
	humanizeMaxReduction  = 0.5
	humanizeMaxDriftCents = 8.0
	humanizePhaseStep     = 0.00005
)

// LeadCorrector retunes the lead vocal: it derives a pitch ratio from
// the detected and target frequencies, humanizes it, smooths it at
// the configured retune speed, and drives one pitch shifter per
// channel. Dry/wet mixing blends against the unshifted input.
type LeadCorrector struct {
	sampleRate float64

	retuneSpeed   float64
	humanize      float64
	vibratoAmount float64
	mix           float64

	smoothing    float64
	targetRatio  float64
	currentRatio float64

	// Correction currently applied, in semitones, for display.
	correction float64

	humanizePhase float64

	shifters []*pitch.Shifter
	dry      [][]float64
}

// NewLeadCorrector constructs a corrector for the given channel
// count.
func NewLeadCorrector(sampleRate float64, maxBlockSize, channels int) (*LeadCorrector, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("lead corrector channel count must be positive: %d", channels)
	}

	c := &LeadCorrector{
		sampleRate:   sampleRate,
		retuneSpeed:  50,
		mix:          1,
		targetRatio:  1,
		currentRatio: 1,
		shifters:     make([]*pitch.Shifter, channels),
		dry:          make([][]float64, channels),
	}
	for ch := range c.shifters {
		s, err := pitch.NewShifter(sampleRate, maxBlockSize)
		if err != nil {
			return nil, err
		}
		c.shifters[ch] = s
		c.dry[ch] = make([]float64, maxBlockSize)
	}
	c.SetRetuneSpeed(c.retuneSpeed)

	return c, nil
}

// Reset clears all correction state.
func (c *LeadCorrector) Reset() {
	for _, s := range c.shifters {
		s.Reset()
	}
	c.targetRatio = 1
	c.currentRatio = 1
	c.correction = 0
	c.humanizePhase = 0
}

// SetRetuneSpeed sets how fast the correction pulls toward the target
// note, 0 (slow, natural) to 100 (instant, robotic).
func (c *LeadCorrector) SetRetuneSpeed(speed float64) {
	c.retuneSpeed = clampFinite(speed, 0, 100)
	c.smoothing = core.SmoothingCoeff(retuneTimeConstantMs(c.retuneSpeed), c.sampleRate)
}

// SetHumanize sets how much natural variation to keep, 0..100.
func (c *LeadCorrector) SetHumanize(amount float64) {
	c.humanize = clampFinite(amount, 0, 100)
}

// SetVibratoAmount stores the vibrato preservation amount, 0..100.
func (c *LeadCorrector) SetVibratoAmount(amount float64) {
	c.vibratoAmount = clampFinite(amount, 0, 100)
}

// SetMix sets the wet fraction of the output, 0..1.
func (c *LeadCorrector) SetMix(wet float64) {
	c.mix = clampFinite(wet, 0, 1)
}

// Configure applies the lead-related fields of a parameter snapshot.
func (c *LeadCorrector) Configure(snap Snapshot) {
	c.SetRetuneSpeed(snap.RetuneSpeed)
	c.SetHumanize(snap.Humanize)
	c.SetVibratoAmount(snap.VibratoAmount)
	c.SetMix(snap.Mix)
}

// CorrectionSemitones returns the correction currently applied, for
// display.
func (c *LeadCorrector) CorrectionSemitones() float64 { return c.correction }

// Latency returns the delay of the correction path in samples.
func (c *LeadCorrector) Latency() int {
	return c.shifters[0].Latency()
}

// retuneTimeConstantMs maps speed 0..100 exponentially onto
// 400..0.5 ms. Perception of correction speed is logarithmic, so a
// linear map would cram all the useful settings into one end.
func retuneTimeConstantMs(speed float64) float64 {
	return retuneMaxTimeMs * math.Pow(retuneMinTimeMs/retuneMaxTimeMs, speed/100)
}

// targetRatioFor derives the correction ratio from a mapping result.
// Unvoiced input or missing frequencies mean no correction.
func (c *LeadCorrector) targetRatioFor(res MappingResult) float64 {
	if !res.Detected.Voiced || res.LeadTargetHz <= 0 || res.Detected.FrequencyHz <= 0 {
		return 1
	}
	ratio := res.LeadTargetHz / res.Detected.FrequencyHz
	return core.Clamp(ratio, 0.5, 2.0)
}

// applyHumanize tempers the correction: it blends the ratio partway
// back toward 1 and multiplies in a slow three-sine drift, both
// scaled by the humanize amount.
func (c *LeadCorrector) applyHumanize(ratio float64) float64 {
	factor := c.humanize / 100

	blended := interp.Lerp(factor*humanizeMaxReduction, ratio, 1)

	c.humanizePhase += humanizePhaseStep
	if c.humanizePhase > 2*math.Pi {
		c.humanizePhase -= 2 * math.Pi
	}

	drift := math.Sin(c.humanizePhase)*0.5 +
		math.Sin(c.humanizePhase*2.7)*0.3 +
		math.Sin(c.humanizePhase*4.1)*0.2

	driftCents := drift * humanizeMaxDriftCents * factor

	return blended * music.CentsToRatioFast(driftCents)
}

// Process retunes the block in place using the given mapping result.
// All channels receive the identical smoothed ratio.
func (c *LeadCorrector) Process(block [][]float64, res MappingResult) {
	if len(block) == 0 || len(block[0]) == 0 {
		return
	}
	n := len(block[0])

	for ch := range block {
		if ch >= len(c.dry) {
			break
		}
		c.dry[ch] = core.EnsureLen(c.dry[ch], n)
		copy(c.dry[ch], block[ch])
	}

	c.targetRatio = c.targetRatioFor(res)
	if c.humanize > 0 && res.Detected.Voiced {
		c.targetRatio = c.applyHumanize(c.targetRatio)
	}

	for i := 0; i < n; i++ {
		c.currentRatio = core.Smooth(c.currentRatio, c.targetRatio, c.smoothing)
	}
	c.correction = music.RatioToSemitones(c.currentRatio)

	for ch, s := range c.shifters {
		if ch >= len(block) {
			break
		}
		s.SetRatio(c.currentRatio)
		s.ProcessInPlace(block[ch])
	}

	if c.mix < 1 {
		dryGain := 1 - c.mix
		for ch := range block {
			if ch >= len(c.dry) {
				break
			}
			vecmath.ScaleBlockInPlace(block[ch], c.mix)
			vecmath.ScaleBlockInPlace(c.dry[ch], dryGain)
			vecmath.AddBlockInPlace(block[ch], c.dry[ch])
		}
	}
}
