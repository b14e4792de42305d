// Package music provides the musical foundation of the tuner: keys,
// scales, note conversions, and scale-aware pitch quantization.
//
// MIDI note numbers are float64 throughout so a value can carry cents
// precision (69.5 is a quarter tone above concert A).
package music

import (
	"math"
	"strconv"
)

const (
	// ConcertPitchHz is the reference frequency of A4.
	ConcertPitchHz = 440.0
	// MidiNoteA4 is the MIDI note number of A4.
	MidiNoteA4 = 69.0
)

// Key is the root note of a scale, one of the 12 pitch classes.
type Key int

const (
	KeyC Key = iota
	KeyCs
	KeyD
	KeyDs
	KeyE
	KeyF
	KeyFs
	KeyG
	KeyGs
	KeyA
	KeyAs
	KeyB
)

var keyNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// String returns the pitch class name ("C", "C#", ...).
func (k Key) String() string {
	if k < 0 || int(k) >= len(keyNames) {
		return "?"
	}
	return keyNames[k]
}

// Scale selects which pitch classes are allowed relative to the key root.
type Scale int

const (
	ScaleMajor Scale = iota
	ScaleNaturalMinor
	ScaleHarmonicMinor
	ScaleMelodicMinor
	ScaleChromatic
)

var (
	majorIntervals         = []int{0, 2, 4, 5, 7, 9, 11}
	naturalMinorIntervals  = []int{0, 2, 3, 5, 7, 8, 10}
	harmonicMinorIntervals = []int{0, 2, 3, 5, 7, 8, 11}
	melodicMinorIntervals  = []int{0, 2, 3, 5, 7, 9, 11}
	chromaticIntervals     = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
)

var scaleNames = map[Scale]string{
	ScaleMajor:         "Major",
	ScaleNaturalMinor:  "Natural Minor",
	ScaleHarmonicMinor: "Harmonic Minor",
	ScaleMelodicMinor:  "Melodic Minor",
	ScaleChromatic:     "Chromatic",
}

func (s Scale) String() string {
	if name, ok := scaleNames[s]; ok {
		return name
	}
	return "Chromatic"
}

// Intervals returns the semitone offsets from the root that belong to
// the scale. The slice is shared; callers must not modify it.
func (s Scale) Intervals() []int {
	switch s {
	case ScaleMajor:
		return majorIntervals
	case ScaleNaturalMinor:
		return naturalMinorIntervals
	case ScaleHarmonicMinor:
		return harmonicMinorIntervals
	case ScaleMelodicMinor:
		return melodicMinorIntervals
	default:
		return chromaticIntervals
	}
}

// FrequencyToMidi converts a frequency in Hz to a fractional MIDI note.
// Non-positive frequencies return 0.
func FrequencyToMidi(frequencyHz float64) float64 {
	if frequencyHz <= 0 {
		return 0
	}
	return MidiNoteA4 + 12*math.Log2(frequencyHz/ConcertPitchHz)
}

// MidiToFrequency converts a fractional MIDI note to a frequency in Hz.
func MidiToFrequency(midiNote float64) float64 {
	return ConcertPitchHz * math.Pow(2, (midiNote-MidiNoteA4)/12)
}

// PitchRatio returns the frequency ratio that shifts sourceMidi to targetMidi.
func PitchRatio(targetMidi, sourceMidi float64) float64 {
	return math.Pow(2, (targetMidi-sourceMidi)/12)
}

// SemitonesToRatio converts a semitone offset to a frequency ratio.
func SemitonesToRatio(semitones float64) float64 {
	return math.Pow(2, semitones/12)
}

// RatioToSemitones converts a frequency ratio to semitones.
// Non-positive ratios return 0.
func RatioToSemitones(ratio float64) float64 {
	if ratio <= 0 {
		return 0
	}
	return 12 * math.Log2(ratio)
}

// CentsToRatio converts a cents offset to a frequency ratio (100 cents
// per semitone).
func CentsToRatio(cents float64) float64 {
	return math.Pow(2, cents/1200)
}

// CentsOffset returns how far midiNote sits from its nearest integer
// note, in cents. The result is in [-50, +50].
func CentsOffset(midiNote float64) float64 {
	return (midiNote - math.Round(midiNote)) * 100
}

// NoteName returns a name like "A4" or "F#3" for an integer MIDI note.
// Octaves follow the MIDI convention where note 60 is C4.
func NoteName(midiNote int) string {
	octave := midiNote/12 - 1
	note := midiNote % 12
	if note < 0 {
		note += 12
		octave--
	}
	return keyNames[note] + strconv.Itoa(octave)
}
