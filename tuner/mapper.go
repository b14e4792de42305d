package tuner

import (
	"github.com/cwbudde/algo-tune/dsp/detect"
	"github.com/cwbudde/algo-tune/music"
)

// MappingResult is the musical decision for one block: what was sung,
// what the lead should be corrected to, how far off the singer was,
// and where each harmony voice belongs.
type MappingResult struct {
	Detected detect.Result

	LeadTargetMidi float64
	LeadTargetHz   float64

	// CentsOff is how far the detected pitch sits from the lead
	// target, positive when sharp.
	CentsOff float64

	// HarmonyTargetMidi is 0 for disabled voices; 0 means "do not
	// shift", never MIDI note zero.
	HarmonyTargetMidi [NumVoices]float64
}

// Mapper turns pitch estimates into correction and harmony targets
// for the configured key and scale.
type Mapper struct {
	ctx    music.Context
	voices [NumVoices]VoiceConfig
	last   MappingResult
}

// Configure applies the key, scale, and per-voice interval settings
// from a parameter snapshot.
func (m *Mapper) Configure(snap Snapshot) {
	m.ctx = music.Context{Key: snap.Key, Scale: snap.Scale}
	m.voices = snap.Voices
}

// Context returns the active key/scale context.
func (m *Mapper) Context() music.Context { return m.ctx }

// Reset clears the last mapping result.
func (m *Mapper) Reset() {
	m.last = MappingResult{}
}

// Last returns the result of the most recent Map call.
func (m *Mapper) Last() MappingResult { return m.last }

// Map computes the lead and harmony targets for one pitch estimate.
// Unvoiced input yields a result with zero targets.
func (m *Mapper) Map(est detect.Result) MappingResult {
	result := MappingResult{Detected: est}

	if est.Voiced && est.MidiNote > 0 {
		result.LeadTargetMidi = m.ctx.Quantize(est.MidiNote)
		result.LeadTargetHz = music.MidiToFrequency(result.LeadTargetMidi)
		result.CentsOff = (est.MidiNote - result.LeadTargetMidi) * 100

		for i := range result.HarmonyTargetMidi {
			result.HarmonyTargetMidi[i] = m.HarmonyTarget(i, result.LeadTargetMidi)
		}
	}

	m.last = result
	return result
}

// HarmonyTarget computes the target MIDI note for one voice relative
// to a base note. Disabled voices return 0.
func (m *Mapper) HarmonyTarget(voice int, baseMidi float64) float64 {
	if voice < 0 || voice >= NumVoices || baseMidi <= 0 {
		return 0
	}
	cfg := m.voices[voice]
	if !cfg.Enabled {
		return 0
	}

	switch cfg.Mode {
	case ModeSemitone:
		return baseMidi + float64(cfg.SemitoneOffset)
	default:
		return baseMidi + float64(m.ctx.DiatonicSemitones(cfg.DiatonicDegree, baseMidi))
	}
}
