package tuner

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-tune/dsp/core"
	"github.com/cwbudde/algo-tune/dsp/detect"
	"github.com/cwbudde/algo-tune/music"
)

// NumVoices is the number of harmony voices the engine renders.
const NumVoices = 3

// HarmonyMode selects how a voice's interval is interpreted.
type HarmonyMode int

const (
	// ModeDiatonic moves by scale degrees, so the semitone distance
	// depends on where in the scale the lead note sits.
	ModeDiatonic HarmonyMode = iota
	// ModeSemitone moves by a fixed semitone offset regardless of
	// scale.
	ModeSemitone
)

func (m HarmonyMode) String() string {
	if m == ModeSemitone {
		return "Semitone"
	}
	return "Diatonic"
}

// VoiceConfig holds the settings of one harmony voice.
type VoiceConfig struct {
	Enabled            bool
	Mode               HarmonyMode
	DiatonicDegree     int     // -7..+7 scale degrees
	SemitoneOffset     int     // -12..+12 semitones
	LevelDb            float64 // -48..+6 dB
	Pan                float64 // -1 (left) .. +1 (right)
	FormantShift       float64 // -6..+6 semitones
	HumanizeTimingMs   float64 // 0..30 ms
	HumanizePitchCents float64 // 0..15 cents
}

// Snapshot is an immutable read of every engine parameter, taken once
// per process call so a block never observes a mid-block change.
type Snapshot struct {
	Key        music.Key
	Scale      music.Scale
	VoiceRange detect.VoiceRange

	RetuneSpeed   float64 // 0..100
	Humanize      float64 // 0..100
	VibratoAmount float64 // 0..100
	Mix           float64 // 0..1 wet fraction
	Bypass        bool

	Voices [NumVoices]VoiceConfig
}

// atomicFloat is a float64 stored as raw bits in an atomic word.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }

type voiceAtomics struct {
	enabled            atomic.Bool
	mode               atomic.Int32
	diatonicDegree     atomic.Int32
	semitoneOffset     atomic.Int32
	levelDb            atomicFloat
	pan                atomicFloat
	formantShift       atomicFloat
	humanizeTimingMs   atomicFloat
	humanizePitchCents atomicFloat
}

// Params is a lock-free parameter store between a control context and
// the audio thread. Writers clamp values into range; the audio thread
// reads everything at once with Snapshot. Single writer, single
// reader, wait-free on both sides.
type Params struct {
	key        atomic.Int32
	scale      atomic.Int32
	voiceRange atomic.Int32

	retuneSpeed   atomicFloat
	humanize      atomicFloat
	vibratoAmount atomicFloat
	mix           atomicFloat
	bypass        atomic.Bool

	voices [NumVoices]voiceAtomics
}

// NewParams returns a parameter store with sensible defaults: C major,
// alto/tenor range, medium retune speed, light humanization, fully
// wet, all harmony voices off.
func NewParams() *Params {
	p := &Params{}
	p.SetKey(music.KeyC)
	p.SetScale(music.ScaleMajor)
	p.SetVoiceRange(detect.RangeAltoTenor)
	p.SetRetuneSpeed(50)
	p.SetHumanize(25)
	p.SetVibratoAmount(0)
	p.SetMix(1)
	p.SetBypass(false)
	for i := 0; i < NumVoices; i++ {
		p.SetVoice(i, VoiceConfig{LevelDb: -6})
	}
	return p
}

func (p *Params) SetKey(k music.Key) {
	if k < music.KeyC || k > music.KeyB {
		k = music.KeyC
	}
	p.key.Store(int32(k))
}

func (p *Params) SetScale(s music.Scale) {
	if s < music.ScaleMajor || s > music.ScaleChromatic {
		s = music.ScaleChromatic
	}
	p.scale.Store(int32(s))
}

func (p *Params) SetVoiceRange(v detect.VoiceRange) {
	if v < detect.RangeSoprano || v > detect.RangeInstrument {
		v = detect.RangeAltoTenor
	}
	p.voiceRange.Store(int32(v))
}

func (p *Params) SetRetuneSpeed(speed float64) {
	p.retuneSpeed.Store(clampFinite(speed, 0, 100))
}

func (p *Params) SetHumanize(amount float64) {
	p.humanize.Store(clampFinite(amount, 0, 100))
}

func (p *Params) SetVibratoAmount(amount float64) {
	p.vibratoAmount.Store(clampFinite(amount, 0, 100))
}

func (p *Params) SetMix(wet float64) {
	p.mix.Store(clampFinite(wet, 0, 1))
}

func (p *Params) SetBypass(bypass bool) {
	p.bypass.Store(bypass)
}

// SetVoice stores the configuration for one harmony voice, clamping
// each field into range. Out-of-range voice indices are ignored.
func (p *Params) SetVoice(index int, cfg VoiceConfig) {
	if index < 0 || index >= NumVoices {
		return
	}
	v := &p.voices[index]

	v.enabled.Store(cfg.Enabled)
	if cfg.Mode == ModeSemitone {
		v.mode.Store(int32(ModeSemitone))
	} else {
		v.mode.Store(int32(ModeDiatonic))
	}
	v.diatonicDegree.Store(int32(clampInt(cfg.DiatonicDegree, -7, 7)))
	v.semitoneOffset.Store(int32(clampInt(cfg.SemitoneOffset, -12, 12)))
	v.levelDb.Store(clampFinite(cfg.LevelDb, -48, 6))
	v.pan.Store(clampFinite(cfg.Pan, -1, 1))
	v.formantShift.Store(clampFinite(cfg.FormantShift, -6, 6))
	v.humanizeTimingMs.Store(clampFinite(cfg.HumanizeTimingMs, 0, 30))
	v.humanizePitchCents.Store(clampFinite(cfg.HumanizePitchCents, 0, 15))
}

// Snapshot reads every parameter. Each field is individually atomic;
// the snapshot as a whole is the freshest consistent-enough view for
// one audio block.
func (p *Params) Snapshot() Snapshot {
	s := Snapshot{
		Key:           music.Key(p.key.Load()),
		Scale:         music.Scale(p.scale.Load()),
		VoiceRange:    detect.VoiceRange(p.voiceRange.Load()),
		RetuneSpeed:   p.retuneSpeed.Load(),
		Humanize:      p.humanize.Load(),
		VibratoAmount: p.vibratoAmount.Load(),
		Mix:           p.mix.Load(),
		Bypass:        p.bypass.Load(),
	}
	for i := range s.Voices {
		v := &p.voices[i]
		s.Voices[i] = VoiceConfig{
			Enabled:            v.enabled.Load(),
			Mode:               HarmonyMode(v.mode.Load()),
			DiatonicDegree:     int(v.diatonicDegree.Load()),
			SemitoneOffset:     int(v.semitoneOffset.Load()),
			LevelDb:            v.levelDb.Load(),
			Pan:                v.pan.Load(),
			FormantShift:       v.formantShift.Load(),
			HumanizeTimingMs:   v.humanizeTimingMs.Load(),
			HumanizePitchCents: v.humanizePitchCents.Load(),
		}
	}
	return s
}

func clampFinite(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return lo
	}
	return core.Clamp(v, lo, hi)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
