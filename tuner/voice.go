package tuner

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-tune/dsp/core"
	"github.com/cwbudde/algo-tune/dsp/delay"
	"github.com/cwbudde/algo-tune/dsp/effects/pitch"
	"github.com/cwbudde/algo-tune/dsp/filter/formant"
	"github.com/cwbudde/algo-tune/music"
)

const (
	voicePitchSmoothingMs = 5.0
	voiceGainSmoothingMs  = 10.0

	// Humanize targets are re-rolled about every 100 ms; the pitch
	// offset eases toward each new draw instead of jumping.
	humanizeUpdateSec   = 0.1
	humanizeOffsetEase  = 0.1
	maxTimingHumanizeMs = 50.0

	// Delay reads chase the timing target slowly so the wobble stays
	// inaudible as pitch modulation.
	delaySmoothingPerSample = 0.001

	// Below this gain a fading disabled voice goes fully silent and
	// stops rendering.
	voiceFadeFloor = 1e-3
)

// Voice renders one harmony line from the corrected lead: pitch shift
// to the harmony target, formant compensation, timing and pitch
// humanization, then smoothed gain and constant-power pan. Each voice
// owns its own seeded random source so renders are deterministic.
type Voice struct {
	index      int
	sampleRate float64

	cfg VoiceConfig
	rng *rand.Rand

	shifters []*pitch.Shifter
	formants []*formant.Filter
	delays   []*delay.Line
	buf      [][]float64

	targetRatio  float64
	currentRatio float64
	targetGain   float64
	currentGain  float64
	panL, panR   float64

	pitchSmoothing float64
	gainSmoothing  float64

	pitchOffsetCents float64
	timingTarget     float64
	currentDelay     float64

	humanizeInterval int
	sinceHumanize    int

	harmonyMidi float64
}

// NewVoice constructs harmony voice number index (0-based) with its
// own random seed.
func NewVoice(index int, sampleRate float64, maxBlockSize, channels int, seed int64) (*Voice, error) {
	if index < 0 || index >= NumVoices {
		return nil, fmt.Errorf("harmony voice index out of range: %d", index)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("harmony voice channel count must be positive: %d", channels)
	}

	v := &Voice{
		index:            index,
		sampleRate:       sampleRate,
		rng:              rand.New(rand.NewSource(seed)),
		shifters:         make([]*pitch.Shifter, channels),
		formants:         make([]*formant.Filter, channels),
		delays:           make([]*delay.Line, channels),
		buf:              make([][]float64, channels),
		targetRatio:      1,
		currentRatio:     1,
		panL:             math.Sqrt2 / 2,
		panR:             math.Sqrt2 / 2,
		pitchSmoothing:   core.SmoothingCoeff(voicePitchSmoothingMs, sampleRate),
		gainSmoothing:    core.SmoothingCoeff(voiceGainSmoothingMs, sampleRate),
		humanizeInterval: int(humanizeUpdateSec * sampleRate),
	}

	delayLen := int(maxTimingHumanizeMs/1000*sampleRate) + 2
	for ch := 0; ch < channels; ch++ {
		s, err := pitch.NewShifter(sampleRate, maxBlockSize)
		if err != nil {
			return nil, err
		}
		f, err := formant.NewFilter(sampleRate, maxBlockSize)
		if err != nil {
			return nil, err
		}
		d, err := delay.New(delayLen)
		if err != nil {
			return nil, err
		}
		v.shifters[ch] = s
		v.formants[ch] = f
		v.delays[ch] = d
		v.buf[ch] = make([]float64, maxBlockSize)
	}

	return v, nil
}

// Reset clears all render state.
func (v *Voice) Reset() {
	for ch := range v.shifters {
		v.shifters[ch].Reset()
		v.formants[ch].Reset()
		v.delays[ch].Reset()
	}
	v.targetRatio = 1
	v.currentRatio = 1
	v.targetGain = 0
	v.currentGain = 0
	v.pitchOffsetCents = 0
	v.timingTarget = 0
	v.currentDelay = 0
	v.sinceHumanize = 0
	v.harmonyMidi = 0
}

// Configure applies one voice's settings from a parameter snapshot.
func (v *Voice) Configure(cfg VoiceConfig) {
	v.cfg = cfg

	if cfg.Enabled {
		v.targetGain = core.DBToLinear(cfg.LevelDb)
	} else {
		v.targetGain = 0
	}

	theta := (cfg.Pan + 1) * math.Pi / 4
	v.panL = math.Cos(theta)
	v.panR = math.Sin(theta)

	for _, f := range v.formants {
		f.SetShiftSemitones(cfg.FormantShift)
	}
}

// HarmonyMidi returns the voice's current target note, for display.
func (v *Voice) HarmonyMidi() float64 { return v.harmonyMidi }

// Latency returns the voice's render delay in samples. The timing
// humanization delay is intentional and not counted.
func (v *Voice) Latency() int {
	return v.shifters[0].Latency()
}

// updateHumanize re-rolls the slowly varying humanize targets.
func (v *Voice) updateHumanize() {
	cents := v.cfg.HumanizePitchCents
	draw := (v.rng.Float64()*2 - 1) * cents
	v.pitchOffsetCents += humanizeOffsetEase * (draw - v.pitchOffsetCents)

	maxMs := v.cfg.HumanizeTimingMs
	v.timingTarget = v.rng.Float64() * maxMs / 1000 * v.sampleRate
}

// ratioFor derives the shift ratio from the detected lead pitch to
// this voice's humanized harmony target.
func (v *Voice) ratioFor(res MappingResult) float64 {
	if !res.Detected.Voiced || res.Detected.MidiNote <= 0 {
		return 1
	}
	target := res.HarmonyTargetMidi[v.index]
	if target <= 0 {
		return 1
	}

	target += v.pitchOffsetCents / 100
	v.harmonyMidi = target

	ratio := music.PitchRatio(target, res.Detected.MidiNote)
	return core.Clamp(ratio, 0.5, 2.0)
}

// Process renders the voice from the corrected lead and accumulates
// it into dst. Returns false when the voice is silent and nothing was
// rendered.
func (v *Voice) Process(dst, lead [][]float64, res MappingResult) bool {
	if !v.cfg.Enabled && v.currentGain <= voiceFadeFloor {
		v.currentGain = 0
		return false
	}
	if len(lead) == 0 || len(lead[0]) == 0 {
		return false
	}

	n := len(lead[0])
	channels := len(v.shifters)
	if len(lead) < channels {
		channels = len(lead)
	}

	for ch := 0; ch < channels; ch++ {
		v.buf[ch] = core.EnsureLen(v.buf[ch], n)
		copy(v.buf[ch], lead[ch])
	}

	v.sinceHumanize += n
	if v.sinceHumanize >= v.humanizeInterval {
		v.updateHumanize()
		v.sinceHumanize = 0
	}

	v.targetRatio = v.ratioFor(res)
	for i := 0; i < n; i++ {
		v.currentRatio = core.Smooth(v.currentRatio, v.targetRatio, v.pitchSmoothing)
	}

	for ch := 0; ch < channels; ch++ {
		v.shifters[ch].SetRatio(v.currentRatio)
		v.shifters[ch].ProcessInPlace(v.buf[ch])

		v.formants[ch].SetPitchCompensation(v.currentRatio)
		v.formants[ch].ProcessInPlace(v.buf[ch])
	}

	if v.cfg.HumanizeTimingMs > 0 {
		for i := 0; i < n; i++ {
			v.currentDelay += delaySmoothingPerSample * (v.timingTarget - v.currentDelay)
			for ch := 0; ch < channels; ch++ {
				v.delays[ch].Write(v.buf[ch][i])
				v.buf[ch][i] = v.delays[ch].ReadFractional(v.currentDelay + 1)
			}
		}
	}

	// Gain is smoothed per sample so enable/disable fades instead of
	// clicking; pan is constant power.
	for i := 0; i < n; i++ {
		v.currentGain = core.Smooth(v.currentGain, v.targetGain, v.gainSmoothing)
		if channels >= 1 {
			v.buf[0][i] *= v.currentGain * v.panL
		}
		if channels >= 2 {
			v.buf[1][i] *= v.currentGain * v.panR
		}
	}

	for ch := 0; ch < channels && ch < len(dst); ch++ {
		vecmath.AddBlockInPlace(dst[ch], v.buf[ch])
	}

	return true
}
