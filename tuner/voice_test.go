package tuner

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-tune/internal/testutil"
	"github.com/cwbudde/algo-tune/music"
)

func harmonyMapping(detectedMidi float64, targets [NumVoices]float64) MappingResult {
	res := MappingResult{
		LeadTargetMidi:    math.Round(detectedMidi),
		HarmonyTargetMidi: targets,
	}
	res.LeadTargetHz = music.MidiToFrequency(res.LeadTargetMidi)
	res.Detected.Voiced = true
	res.Detected.MidiNote = detectedMidi
	res.Detected.FrequencyHz = music.MidiToFrequency(detectedMidi)
	return res
}

func TestNewVoiceValidation(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		channels int
	}{
		{"negative index", -1, 1},
		{"index past end", NumVoices, 1},
		{"zero channels", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewVoice(tt.index, 48000, 512, tt.channels, 1); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestVoiceDisabledRendersNothing(t *testing.T) {
	v, err := NewVoice(0, 48000, 512, 1, 1)
	if err != nil {
		t.Fatalf("NewVoice: %v", err)
	}
	v.Configure(VoiceConfig{Enabled: false, LevelDb: -6})

	dst := [][]float64{make([]float64, 512)}
	lead := [][]float64{testutil.DeterministicSine(440, 48000, 0.5, 512)}

	if v.Process(dst, lead, harmonyMapping(69, [NumVoices]float64{})) {
		t.Fatalf("disabled voice reported rendering")
	}
	for i, s := range dst[0] {
		if s != 0 {
			t.Fatalf("disabled voice wrote sample %d = %v", i, s)
		}
	}
}

func TestVoiceRatioFromTargets(t *testing.T) {
	tests := []struct {
		name    string
		res     MappingResult
		want    float64
	}{
		{"third above", harmonyMapping(69, [NumVoices]float64{0: 73}), math.Pow(2, 4.0/12)},
		{"octave below clamps at half", harmonyMapping(69, [NumVoices]float64{0: 50}), 0.5},
		{"no target", harmonyMapping(69, [NumVoices]float64{}), 1},
		{"unvoiced", MappingResult{}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVoice(0, 48000, 512, 1, 1)
			if err != nil {
				t.Fatalf("NewVoice: %v", err)
			}
			v.Configure(VoiceConfig{Enabled: true, LevelDb: 0})

			if got := v.ratioFor(tt.res); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVoiceShiftsLeadUp(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)
	v, err := NewVoice(0, rate, block, 1, 1)
	if err != nil {
		t.Fatalf("NewVoice: %v", err)
	}
	// Formant shift forced neutral so only the pitch path moves the
	// spectrum.
	v.Configure(VoiceConfig{Enabled: true, LevelDb: 0})

	// A4 lead, harmony a fifth above.
	res := harmonyMapping(69, [NumVoices]float64{0: 76})

	out := make([]float64, 0, int(rate))
	for start := 0; start+block <= int(rate); start += block {
		lead := [][]float64{testutil.DeterministicSine(440, rate, 0.4, block)}
		dst := [][]float64{make([]float64, block)}
		if !v.Process(dst, lead, res) {
			t.Fatalf("enabled voice did not render")
		}
		out = append(out, dst[0]...)
	}

	steady := out[len(out)/2:]
	testutil.RequireFinite(t, steady)

	wantHz := 440 * math.Pow(2, 7.0/12)
	got := testutil.DominantFrequency(t, steady, rate, 8192)
	if math.Abs(got-wantHz) > wantHz*0.03 {
		t.Fatalf("dominant frequency = %v Hz, want %v within 3%%", got, wantHz)
	}
}

func TestVoiceLevelScalesOutput(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)

	render := func(levelDb float64) []float64 {
		v, err := NewVoice(0, rate, block, 1, 1)
		if err != nil {
			t.Fatalf("NewVoice: %v", err)
		}
		v.Configure(VoiceConfig{Enabled: true, LevelDb: levelDb})

		res := harmonyMapping(69, [NumVoices]float64{0: 69})
		out := make([]float64, 0, block*60)
		for i := 0; i < 60; i++ {
			lead := [][]float64{testutil.DeterministicSine(440, rate, 0.4, block)}
			dst := [][]float64{make([]float64, block)}
			v.Process(dst, lead, res)
			out = append(out, dst[0]...)
		}
		return out[len(out)/2:]
	}

	full := testutil.RMS(render(0))
	quiet := testutil.RMS(render(-12))

	wantRatio := math.Pow(10, -12.0/20)
	gotRatio := quiet / full
	if math.Abs(gotRatio-wantRatio) > wantRatio*0.1 {
		t.Fatalf("level ratio = %v, want %v within 10%%", gotRatio, wantRatio)
	}
}

func TestVoicePanDistributesStereo(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)

	render := func(pan float64) (left, right float64) {
		v, err := NewVoice(0, rate, block, 2, 1)
		if err != nil {
			t.Fatalf("NewVoice: %v", err)
		}
		v.Configure(VoiceConfig{Enabled: true, LevelDb: 0, Pan: pan})

		res := harmonyMapping(69, [NumVoices]float64{0: 69})
		var outL, outR []float64
		for i := 0; i < 60; i++ {
			sine := testutil.DeterministicSine(440, rate, 0.4, block)
			lead := [][]float64{sine, append([]float64(nil), sine...)}
			dst := [][]float64{make([]float64, block), make([]float64, block)}
			v.Process(dst, lead, res)
			outL = append(outL, dst[0]...)
			outR = append(outR, dst[1]...)
		}
		return testutil.RMS(outL[len(outL)/2:]), testutil.RMS(outR[len(outR)/2:])
	}

	l, r := render(-1)
	if l <= 0 {
		t.Fatalf("hard-left pan produced silent left channel")
	}
	if r > l*0.01 {
		t.Fatalf("hard-left pan leaked right: left %v right %v", l, r)
	}

	l, r = render(0)
	if math.Abs(l-r) > l*0.05 {
		t.Fatalf("center pan unbalanced: left %v right %v", l, r)
	}

	l, r = render(1)
	if l > r*0.01 {
		t.Fatalf("hard-right pan leaked left: left %v right %v", l, r)
	}
}

func TestVoiceDisableFadesOut(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)
	v, err := NewVoice(0, rate, block, 1, 1)
	if err != nil {
		t.Fatalf("NewVoice: %v", err)
	}
	v.Configure(VoiceConfig{Enabled: true, LevelDb: 0})

	res := harmonyMapping(69, [NumVoices]float64{0: 69})
	for i := 0; i < 40; i++ {
		lead := [][]float64{testutil.DeterministicSine(440, rate, 0.4, block)}
		dst := [][]float64{make([]float64, block)}
		v.Process(dst, lead, res)
	}

	// After disabling, the gain decays toward zero and the voice
	// eventually stops rendering entirely.
	v.Configure(VoiceConfig{Enabled: false, LevelDb: 0})
	rendered := true
	for i := 0; i < 200 && rendered; i++ {
		lead := [][]float64{testutil.DeterministicSine(440, rate, 0.4, block)}
		dst := [][]float64{make([]float64, block)}
		rendered = v.Process(dst, lead, res)
	}
	if rendered {
		t.Fatalf("disabled voice still rendering after fade-out horizon")
	}
}

func TestVoiceHumanizeIsReproducible(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)

	render := func(seed int64) []float64 {
		v, err := NewVoice(0, rate, block, 1, seed)
		if err != nil {
			t.Fatalf("NewVoice: %v", err)
		}
		v.Configure(VoiceConfig{
			Enabled:            true,
			LevelDb:            0,
			HumanizeTimingMs:   20,
			HumanizePitchCents: 10,
		})

		res := harmonyMapping(69, [NumVoices]float64{0: 73})
		out := make([]float64, 0, block*30)
		for i := 0; i < 30; i++ {
			lead := [][]float64{testutil.DeterministicSine(440, rate, 0.4, block)}
			dst := [][]float64{make([]float64, block)}
			v.Process(dst, lead, res)
			out = append(out, dst[0]...)
		}
		return out
	}

	a := render(42)
	b := render(42)
	testutil.RequireSliceNearlyEqual(t, a, b, 0)

	c := render(43)
	diff := 0.0
	for i := range a {
		diff += math.Abs(a[i] - c[i])
	}
	if diff == 0 {
		t.Fatalf("different seeds produced identical humanized output")
	}
}

func TestVoiceResetClearsState(t *testing.T) {
	v, err := NewVoice(0, 48000, 512, 1, 1)
	if err != nil {
		t.Fatalf("NewVoice: %v", err)
	}
	v.Configure(VoiceConfig{Enabled: true, LevelDb: 0, HumanizePitchCents: 10})

	res := harmonyMapping(69, [NumVoices]float64{0: 73})
	for i := 0; i < 20; i++ {
		lead := [][]float64{testutil.DeterministicSine(440, 48000, 0.4, 512)}
		dst := [][]float64{make([]float64, 512)}
		v.Process(dst, lead, res)
	}

	v.Reset()
	if v.currentRatio != 1 || v.currentGain != 0 {
		t.Fatalf("state after reset: ratio %v gain %v", v.currentRatio, v.currentGain)
	}
	if v.HarmonyMidi() != 0 {
		t.Fatalf("harmony midi after reset = %v, want 0", v.HarmonyMidi())
	}
}
