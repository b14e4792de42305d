package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-tune/dsp/buffer"
	"github.com/cwbudde/algo-tune/dsp/core"
	"github.com/cwbudde/algo-tune/dsp/window"
)

const (
	defaultShifterRatio = 1.0

	// Grain window of 25 ms balances quality against latency for vocals.
	shifterWindowMs = 25.0

	minShifterWindow = 256
	maxShifterWindow = 2048

	minShifterRatio = 0.5
	maxShifterRatio = 2.0

	// Ratio changes are smoothed over 5 ms to avoid zipper noise.
	shifterSmoothingMs = 5.0

	shifterTiny = 1e-10
)

// Shifter performs streaming time-domain pitch shifting using WSOLA
// (waveform-similarity overlap-add). Input accumulates in a ring
// buffer; windowed grains are extracted at the analysis hop, aligned
// against the already-written output by a similarity search, and
// overlap-added at the synthesis hop. The synthesis/analysis hop ratio
// realizes the pitch ratio.
//
// Pitch ratio:
//   - 1.0 = unchanged
//   - 2.0 = one octave up
//   - 0.5 = one octave down
//
// This processor is mono and streaming: every Process call consumes
// and produces exactly len(input) samples, with a fixed latency of
// Latency() samples.
type Shifter struct {
	sampleRate float64

	windowSize  int
	analysisHop int

	targetRatio    float64
	currentRatio   float64
	ratioSmoothing float64

	input  *buffer.Ring
	output *buffer.Ring

	inputWritePos   int
	samplesBuffered int
	outputReadPos   int
	outputWritePos  int
	outputPhase     float64

	lastGrainStart int
	firstGrain     bool

	grain      []float64
	rawGrain   []float64
	windowFunc []float64
}

// NewShifter constructs a streaming pitch shifter prepared for the
// given sample rate and maximum block size.
func NewShifter(sampleRate float64, maxBlockSize int) (*Shifter, error) {
	if !isFinitePositive(sampleRate) {
		return nil, fmt.Errorf("pitch shifter sample rate must be positive and finite: %f", sampleRate)
	}
	if maxBlockSize <= 0 {
		return nil, fmt.Errorf("pitch shifter max block size must be positive: %d", maxBlockSize)
	}

	windowSize := int(shifterWindowMs * sampleRate / 1000)
	windowSize = int(core.Clamp(float64(windowSize), minShifterWindow, maxShifterWindow))

	bufSize := windowSize*4 + maxBlockSize

	input, err := buffer.NewRing(bufSize)
	if err != nil {
		return nil, err
	}
	output, err := buffer.NewRing(bufSize)
	if err != nil {
		return nil, err
	}

	windowFunc, err := window.Hann(windowSize, window.WithPeriodic())
	if err != nil {
		return nil, err
	}
	// Hann windows at 75% overlap sum to 2.0; halve the window so the
	// overlap-add reconstructs at unity gain.
	vecmath.ScaleBlockInPlace(windowFunc, 0.5)

	s := &Shifter{
		sampleRate:     sampleRate,
		windowSize:     windowSize,
		analysisHop:    windowSize / 4,
		targetRatio:    defaultShifterRatio,
		ratioSmoothing: core.SmoothingCoeff(shifterSmoothingMs, sampleRate),
		input:          input,
		output:         output,
		grain:          make([]float64, windowSize),
		rawGrain:       make([]float64, windowSize),
		windowFunc:     windowFunc,
	}
	s.Reset()

	return s, nil
}

// SampleRate returns the sample rate in Hz.
func (s *Shifter) SampleRate() float64 { return s.sampleRate }

// WindowSize returns the grain length in samples.
func (s *Shifter) WindowSize() int { return s.windowSize }

// Latency returns the processing delay in samples, one grain window.
func (s *Shifter) Latency() int { return s.windowSize }

// Ratio returns the target pitch ratio.
func (s *Shifter) Ratio() float64 { return s.targetRatio }

// SetRatio updates the pitch ratio. Values are clamped to the
// supported range rather than rejected so a modulation source can
// drive this without error handling per sample.
func (s *Shifter) SetRatio(ratio float64) {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return
	}
	s.targetRatio = core.Clamp(ratio, minShifterRatio, maxShifterRatio)
}

// SetSemitones updates the pitch shift in semitones.
func (s *Shifter) SetSemitones(semitones float64) {
	if math.IsNaN(semitones) || math.IsInf(semitones, 0) {
		return
	}
	s.SetRatio(math.Pow(2, semitones/12))
}

// Reset clears all buffered audio and restarts the grain scheduler.
// The smoothed ratio jumps to the target immediately.
func (s *Shifter) Reset() {
	s.input.Reset()
	s.output.Reset()

	s.inputWritePos = 0
	s.samplesBuffered = 0
	s.outputReadPos = 0
	s.outputWritePos = s.windowSize
	s.outputPhase = 0
	// First grain must start at input position 0, otherwise every grain
	// lands one analysis hop behind the read cursor and its fade-in
	// quarter is lost.
	s.lastGrainStart = -s.analysisHop
	s.firstGrain = true

	s.currentRatio = s.targetRatio
}

// synthesisHop is where consecutive grains land in the output.
// Shifting up packs grains closer together; shifting down spreads
// them apart.
func (s *Shifter) synthesisHop() float64 {
	if s.currentRatio <= 0 {
		return float64(s.analysisHop)
	}
	return float64(s.analysisHop) / s.currentRatio
}

// Process shifts input into output sample by sample. The slices must
// have equal length and may alias.
func (s *Shifter) Process(input, output []float64) {
	for i, x := range input {
		s.currentRatio = core.Smooth(s.currentRatio, s.targetRatio, s.ratioSmoothing)

		s.input.Set(s.inputWritePos, x)
		s.inputWritePos++
		s.samplesBuffered++

		synthHop := s.synthesisHop()
		for s.samplesBuffered >= s.windowSize && s.outputPhase >= synthHop {
			s.produceGrain()
			s.outputPhase -= synthHop
		}
		s.outputPhase++

		// Consume one output sample and clear its slot so future
		// grains can accumulate into it.
		output[i] = s.output.At(s.outputReadPos)
		s.output.ZeroAt(s.outputReadPos)
		s.outputReadPos++
	}
}

// ProcessInPlace shifts buf in place.
func (s *Shifter) ProcessInPlace(buf []float64) {
	s.Process(buf, buf)
}

// produceGrain extracts the next analysis grain, finds its best
// output alignment, and overlap-adds it.
func (s *Shifter) produceGrain() {
	grainStart := s.lastGrainStart + s.analysisHop

	if s.inputWritePos-grainStart < s.windowSize {
		return
	}

	s.input.Read(grainStart, s.rawGrain)
	vecmath.MulBlock(s.grain, s.rawGrain, s.windowFunc)

	s.lastGrainStart = grainStart
	s.samplesBuffered -= s.analysisHop

	bestPos := s.findBestGrainPosition(s.outputWritePos, s.analysisHop/2)

	for i, v := range s.grain {
		s.output.Add(bestPos+i, v)
	}

	s.outputWritePos += int(s.synthesisHop())
	s.firstGrain = false
}

// findBestGrainPosition searches around the nominal output position
// for the offset where the grain best matches the audio already in the
// output buffer, scored by normalized cross-correlation over the first
// half of the grain. The first grain has nothing to align against and
// is placed at the nominal position.
func (s *Shifter) findBestGrainPosition(nominalPos, searchRange int) int {
	if s.firstGrain {
		return nominalPos
	}

	overlapLen := s.windowSize / 2
	grainHead := s.grain[:overlapLen]
	grainEnergy := vecmath.DotProduct(grainHead, grainHead)

	bestPos := nominalPos
	bestScore := -1.0

	for pos := nominalPos - searchRange; pos <= nominalPos+searchRange; pos++ {
		dot := 0.0
		outEnergy := 0.0
		for i, g := range grainHead {
			o := s.output.At(pos + i)
			dot += g * o
			outEnergy += o * o
		}

		score := 0.0
		if norm := math.Sqrt(grainEnergy * outEnergy); norm > shifterTiny {
			score = dot / norm
		}

		if score > bestScore {
			bestScore = score
			bestPos = pos
		}
	}

	return bestPos
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
