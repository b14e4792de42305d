package tuner

// Preset selects a ready-made harmony voicing. Applying one rewrites
// the three voice configurations; it does not touch key, scale or the
// lead settings.
type Preset int

const (
	PresetNone Preset = iota
	PresetPop3rdUp
	PresetPop3rdAnd5th
	PresetThirdsAboveBelow
	PresetFifthsWide
	PresetOctaveDouble
	PresetOctavePlus3rd
	PresetChoirStack
	numPresets
)

func (p Preset) String() string {
	switch p {
	case PresetNone:
		return "None"
	case PresetPop3rdUp:
		return "Pop 3rd Up"
	case PresetPop3rdAnd5th:
		return "Pop 3rd & 5th"
	case PresetThirdsAboveBelow:
		return "Thirds Above & Below"
	case PresetFifthsWide:
		return "Fifths Wide"
	case PresetOctaveDouble:
		return "Octave Double"
	case PresetOctavePlus3rd:
		return "Octave + 3rd"
	case PresetChoirStack:
		return "Choir Stack"
	default:
		return "Unknown"
	}
}

// PresetNames lists the presets in selection order.
func PresetNames() []string {
	names := make([]string, numPresets)
	for i := Preset(0); i < numPresets; i++ {
		names[i] = i.String()
	}
	return names
}

// ParsePreset matches a preset by its display name. Unknown names
// return PresetNone.
func ParsePreset(name string) Preset {
	for i := Preset(0); i < numPresets; i++ {
		if i.String() == name {
			return i
		}
	}
	return PresetNone
}

// presetVoice builds one enabled diatonic voice at the default level.
func presetVoice(degree int, pan float64) VoiceConfig {
	return VoiceConfig{
		Enabled:        true,
		Mode:           ModeDiatonic,
		DiatonicDegree: degree,
		LevelDb:        -6,
		Pan:            pan,
	}
}

// ApplyPreset writes a preset's voicing into the parameter store.
// Degrees are scale steps: 2 is a third, 4 a fifth, 7 the octave.
func ApplyPreset(p *Params, preset Preset) {
	var voices [NumVoices]VoiceConfig
	for i := range voices {
		voices[i] = VoiceConfig{LevelDb: -6}
	}

	switch preset {
	case PresetPop3rdUp:
		voices[0] = presetVoice(2, 0)
	case PresetPop3rdAnd5th:
		voices[0] = presetVoice(2, 0)
		voices[1] = presetVoice(4, 0)
	case PresetThirdsAboveBelow:
		voices[0] = presetVoice(2, 0)
		voices[1] = presetVoice(-2, 0)
	case PresetFifthsWide:
		voices[0] = presetVoice(4, -0.7)
		voices[1] = presetVoice(-4, 0.7)
	case PresetOctaveDouble:
		voices[0] = presetVoice(7, 0)
	case PresetOctavePlus3rd:
		voices[0] = presetVoice(7, 0)
		voices[1] = presetVoice(2, 0)
	case PresetChoirStack:
		voices[0] = presetVoice(2, -0.4)
		voices[1] = presetVoice(-2, 0.4)
		voices[2] = presetVoice(4, 0)
	}

	for i, cfg := range voices {
		p.SetVoice(i, cfg)
	}
}
