package tuner

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-tune/internal/testutil"
	"github.com/cwbudde/algo-tune/music"
)

func preparedEngine(t *testing.T, rate float64, block, channels int) *Engine {
	t.Helper()
	e := NewEngine()
	if err := e.Prepare(rate, block, channels); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return e
}

func TestEnginePrepareValidation(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		block    int
		channels int
	}{
		{"zero block", 48000, 0, 1},
		{"negative block", 48000, -1, 1},
		{"zero channels", 48000, 512, 0},
		{"zero rate", 0, 512, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := NewEngine().Prepare(tt.rate, tt.block, tt.channels); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestEngineUnpreparedProcessFails(t *testing.T) {
	e := NewEngine()
	block := [][]float64{make([]float64, 64)}
	if err := e.Process(block, NewParams().Snapshot()); err == nil {
		t.Fatalf("expected error from unprepared engine")
	}
	if e.LatencySamples() != 0 {
		t.Fatalf("unprepared latency = %d, want 0", e.LatencySamples())
	}
}

func TestEngineMismatchedChannelLengths(t *testing.T) {
	e := preparedEngine(t, 48000, 512, 2)
	block := [][]float64{make([]float64, 512), make([]float64, 256)}
	if err := e.Process(block, NewParams().Snapshot()); err == nil {
		t.Fatalf("expected error for mismatched channel lengths")
	}
}

func TestEngineSilenceReportsUnvoiced(t *testing.T) {
	e := preparedEngine(t, 48000, 512, 1)
	snap := NewParams().Snapshot()

	block := [][]float64{make([]float64, 512)}
	for i := 0; i < 20; i++ {
		for j := range block[0] {
			block[0][j] = 0
		}
		if err := e.Process(block, snap); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}

	est, ok := e.LastEstimate()
	if !ok {
		t.Fatalf("no estimate published")
	}
	if est.Voiced {
		t.Fatalf("silence detected as voiced: %+v", est)
	}
	if est.Confidence != 0 {
		t.Fatalf("silence confidence = %v, want 0", est.Confidence)
	}
	testutil.RequireFinite(t, block[0])
}

func TestEngineBypassPassesThrough(t *testing.T) {
	e := preparedEngine(t, 48000, 512, 1)
	snap := NewParams().Snapshot()
	snap.Bypass = true

	input := testutil.DeterministicSine(450, 48000, 0.5, 512)
	block := [][]float64{append([]float64(nil), input...)}
	if err := e.Process(block, snap); err != nil {
		t.Fatalf("Process: %v", err)
	}
	testutil.RequireSliceNearlyEqual(t, block[0], input, 0)

	// Detection still runs under bypass so a tuner display keeps
	// working.
	if _, ok := e.LastEstimate(); !ok {
		t.Fatalf("bypassed engine published no estimate")
	}
}

func TestEngineCorrectsFlatSineToScale(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)
	e := preparedEngine(t, rate, block, 1)

	p := NewParams()
	p.SetRetuneSpeed(100)
	p.SetHumanize(0)
	snap := p.Snapshot()

	// 450 Hz sits between A4 and A#4; in C major it must land on
	// A4 = 440 Hz.
	input := testutil.DeterministicSine(450, rate, 0.4, int(2*rate))
	output := make([]float64, 0, len(input))

	for start := 0; start+block <= len(input); start += block {
		blk := make([]float64, block)
		copy(blk, input[start:start+block])
		if err := e.Process([][]float64{blk}, snap); err != nil {
			t.Fatalf("Process: %v", err)
		}
		output = append(output, blk...)
	}

	est, ok := e.LastEstimate()
	if !ok || !est.Voiced {
		t.Fatalf("engine did not detect the sine: %+v", est)
	}
	if math.Abs(est.FrequencyHz-450) > 450*0.02 {
		t.Fatalf("detected %v Hz, want 450 within 2%%", est.FrequencyHz)
	}

	mapping, ok := e.LastMapping()
	if !ok {
		t.Fatalf("no mapping published")
	}
	if mapping.LeadTargetMidi != 69 {
		t.Fatalf("lead target = %v, want A4 (69)", mapping.LeadTargetMidi)
	}

	steady := output[len(output)/2:]
	testutil.RequireFinite(t, steady)
	got := testutil.DominantFrequency(t, steady, rate, 8192)
	if math.Abs(got-440) > 440*0.02 {
		t.Fatalf("corrected output = %v Hz, want 440 within 2%%", got)
	}
}

func TestEngineHarmonyAddsVoice(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)

	render := func(withHarmony bool) []float64 {
		e := preparedEngine(t, rate, block, 1)
		p := NewParams()
		p.SetRetuneSpeed(100)
		p.SetHumanize(0)
		if withHarmony {
			p.SetVoice(0, VoiceConfig{Enabled: true, Mode: ModeDiatonic, DiatonicDegree: 2, LevelDb: 0})
		}
		snap := p.Snapshot()

		input := testutil.DeterministicSine(440, rate, 0.3, int(2*rate))
		out := make([]float64, 0, len(input))
		for start := 0; start+block <= len(input); start += block {
			blk := make([]float64, block)
			copy(blk, input[start:start+block])
			if err := e.Process([][]float64{blk}, snap); err != nil {
				t.Fatalf("Process: %v", err)
			}
			out = append(out, blk...)
		}
		return out[len(out)/2:]
	}

	plain := render(false)
	harmonized := render(true)

	// A third above A4 in C major is C5.
	thirdHz := music.MidiToFrequency(72)
	plainSNR := testutil.SNRAround(t, plain, thirdHz, rate, 8192)
	harmSNR := testutil.SNRAround(t, harmonized, thirdHz, rate, 8192)

	if harmSNR < plainSNR+6 {
		t.Fatalf("harmony band gained only %.1f dB over plain (%.1f vs %.1f)",
			harmSNR-plainSNR, harmSNR, plainSNR)
	}
}

func TestEngineOutputStaysBounded(t *testing.T) {
	const (
		rate  = 48000.0
		block = 512
	)
	e := preparedEngine(t, rate, block, 1)

	p := NewParams()
	for i := 0; i < NumVoices; i++ {
		p.SetVoice(i, VoiceConfig{Enabled: true, Mode: ModeDiatonic, DiatonicDegree: i + 2, LevelDb: 6})
	}
	snap := p.Snapshot()

	for i := 0; i < 100; i++ {
		blk := testutil.DeterministicSine(440, rate, 0.95, block)
		if err := e.Process([][]float64{blk}, snap); err != nil {
			t.Fatalf("Process: %v", err)
		}
		testutil.RequireFinite(t, blk)
		for j, s := range blk {
			if math.Abs(s) > 1.2 {
				t.Fatalf("block %d sample %d = %v exceeds soft clip ceiling", i, j, s)
			}
		}
	}
}

func TestEngineGrowingBlockReprepares(t *testing.T) {
	e := preparedEngine(t, 48000, 256, 1)
	snap := NewParams().Snapshot()

	small := [][]float64{testutil.DeterministicSine(440, 48000, 0.4, 256)}
	if err := e.Process(small, snap); err != nil {
		t.Fatalf("Process small: %v", err)
	}
	if e.BlockResizes() != 0 {
		t.Fatalf("resizes after small block = %d, want 0", e.BlockResizes())
	}

	big := [][]float64{testutil.DeterministicSine(440, 48000, 0.4, 1024)}
	if err := e.Process(big, snap); err != nil {
		t.Fatalf("Process big: %v", err)
	}
	if e.BlockResizes() != 1 {
		t.Fatalf("resizes after big block = %d, want 1", e.BlockResizes())
	}
	testutil.RequireFinite(t, big[0])

	// The grown size is the new maximum; processing it again must not
	// re-prepare.
	if err := e.Process(big, snap); err != nil {
		t.Fatalf("Process big again: %v", err)
	}
	if e.BlockResizes() != 1 {
		t.Fatalf("resizes after repeat = %d, want 1", e.BlockResizes())
	}
}

func TestEngineLatencyMatchesLead(t *testing.T) {
	e := preparedEngine(t, 48000, 512, 1)
	if got, want := e.LatencySamples(), e.lead.Latency(); got != want {
		t.Fatalf("latency = %d, want %d", got, want)
	}
	if e.LatencySamples() <= 0 {
		t.Fatalf("latency = %d, want positive", e.LatencySamples())
	}
}

func TestEngineResetClearsPublishedState(t *testing.T) {
	e := preparedEngine(t, 48000, 512, 1)
	snap := NewParams().Snapshot()

	blk := [][]float64{testutil.DeterministicSine(440, 48000, 0.4, 512)}
	if err := e.Process(blk, snap); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, ok := e.LastEstimate(); !ok {
		t.Fatalf("no estimate after processing")
	}

	e.Reset()
	if _, ok := e.LastEstimate(); ok {
		t.Fatalf("estimate survived reset")
	}
	if _, ok := e.LastMapping(); ok {
		t.Fatalf("mapping survived reset")
	}
}
