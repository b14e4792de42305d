package music

import "math"

// Context pairs a key with a scale and answers quantization queries
// against that pitch grid.
type Context struct {
	Key   Key
	Scale Scale
}

// Quantize snaps a fractional MIDI note to the nearest note of the
// scale. The chromatic scale degenerates to rounding. Ties between two
// equally distant scale notes resolve to the one listed first in the
// interval table.
func (c Context) Quantize(midiNote float64) float64 {
	if c.Scale == ScaleChromatic {
		return math.Round(midiNote)
	}

	roundedNote := int(math.Round(midiNote))
	relative := relativePitchClass(roundedNote, c.Key)

	intervals := c.Scale.Intervals()
	for _, interval := range intervals {
		if interval == relative {
			return float64(roundedNote)
		}
	}

	nearest := 0
	minDistance := 12
	for _, interval := range intervals {
		dist := relative - interval
		if dist < 0 {
			dist = -dist
		}
		if wrapped := 12 - dist; wrapped < dist {
			dist = wrapped
		}
		if dist < minDistance {
			minDistance = dist
			nearest = interval
		}
	}

	adjustment := nearest - relative
	if adjustment > 6 {
		adjustment -= 12
	}
	if adjustment < -6 {
		adjustment += 12
	}

	return float64(roundedNote + adjustment)
}

// IsInScale reports whether an integer MIDI note lies on the scale.
func (c Context) IsInScale(midiNote int) bool {
	relative := relativePitchClass(midiNote, c.Key)
	for _, interval := range c.Scale.Intervals() {
		if interval == relative {
			return true
		}
	}
	return false
}

// DiatonicSemitones converts a scale-degree offset (-7..+7 for the
// seven-note scales) into a semitone offset relative to fromMidiNote.
// The distance depends on where in the scale the note sits: a third up
// from C in C major is four semitones, from D it is three.
//
// When fromMidiNote is not exactly on a scale note, the nearest scale
// degree at or below it is used as the starting point.
func (c Context) DiatonicSemitones(scaleDegrees int, fromMidiNote float64) int {
	if scaleDegrees == 0 {
		return 0
	}

	intervals := c.Scale.Intervals()
	numNotes := len(intervals)

	startRelative := relativePitchClass(int(math.Round(fromMidiNote)), c.Key)

	startDegree := 0
	for i, interval := range intervals {
		if interval == startRelative {
			startDegree = i
			break
		}
		if interval < startRelative {
			startDegree = i
		}
	}

	targetDegree := startDegree + scaleDegrees

	octaveShift := 0
	for targetDegree >= numNotes {
		targetDegree -= numNotes
		octaveShift += 12
	}
	for targetDegree < 0 {
		targetDegree += numNotes
		octaveShift -= 12
	}

	return intervals[targetDegree] - intervals[startDegree] + octaveShift
}

func relativePitchClass(midiNote int, key Key) int {
	pc := midiNote % 12
	if pc < 0 {
		pc += 12
	}
	return (pc - int(key) + 12) % 12
}
