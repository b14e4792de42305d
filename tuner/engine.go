package tuner

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-tune/dsp/core"
	"github.com/cwbudde/algo-tune/dsp/detect"
)

// Soft clip drive on the summed output. tanh(x*0.9)/0.9 is transparent
// below roughly -3 dBFS and rounds off inter-voice peaks above it.
const softClipDrive = 0.9

// Voice seeds are fixed so harmony renders are reproducible run to run.
const voiceSeedBase int64 = 0x5eed

// Engine is the full correction chain: pitch detection, scale mapping,
// lead correction and harmony voices, summed with a soft clip. One
// Engine processes one audio stream; Process is not safe for
// concurrent use.
type Engine struct {
	sampleRate float64
	maxBlock   int
	channels   int

	estimator *detect.Estimator
	mapper    Mapper
	lead      *LeadCorrector
	voices    [NumVoices]*Voice

	leadBuf    [][]float64
	harmonyBuf [][]float64

	blockResizes atomic.Int64
	lastEstimate atomic.Pointer[detect.Result]
	lastMapping  atomic.Pointer[MappingResult]

	prepared bool
}

// NewEngine returns an engine that must be Prepared before use.
func NewEngine() *Engine { return &Engine{} }

// Prepare allocates the chain for the given stream format. It may be
// called again to change format; all state is reset.
func (e *Engine) Prepare(sampleRate float64, maxBlockSize, channels int) error {
	if maxBlockSize <= 0 {
		return fmt.Errorf("engine block size must be positive: %d", maxBlockSize)
	}
	if channels <= 0 {
		return fmt.Errorf("engine channel count must be positive: %d", channels)
	}

	est, err := detect.NewEstimator(sampleRate, maxBlockSize)
	if err != nil {
		return err
	}
	lead, err := NewLeadCorrector(sampleRate, maxBlockSize, channels)
	if err != nil {
		return err
	}
	var voices [NumVoices]*Voice
	for i := range voices {
		v, err := NewVoice(i, sampleRate, maxBlockSize, channels, voiceSeedBase+int64(i))
		if err != nil {
			return err
		}
		voices[i] = v
	}

	e.sampleRate = sampleRate
	e.maxBlock = maxBlockSize
	e.channels = channels
	e.estimator = est
	e.lead = lead
	e.voices = voices
	e.mapper = Mapper{}

	e.leadBuf = make([][]float64, channels)
	e.harmonyBuf = make([][]float64, channels)
	for ch := 0; ch < channels; ch++ {
		e.leadBuf[ch] = make([]float64, maxBlockSize)
		e.harmonyBuf[ch] = make([]float64, maxBlockSize)
	}

	e.lastEstimate.Store(nil)
	e.lastMapping.Store(nil)
	e.prepared = true
	return nil
}

// Reset clears all processing state without changing the format.
func (e *Engine) Reset() {
	if !e.prepared {
		return
	}
	e.estimator.Reset()
	e.mapper.Reset()
	e.lead.Reset()
	for _, v := range e.voices {
		v.Reset()
	}
	e.lastEstimate.Store(nil)
	e.lastMapping.Store(nil)
}

// LatencySamples reports the engine's processing delay. Harmony voices
// run in parallel with the lead and add none of their own.
func (e *Engine) LatencySamples() int {
	if !e.prepared {
		return 0
	}
	return e.lead.Latency()
}

// BlockResizes returns how many times Process re-prepared because a
// block exceeded the prepared maximum.
func (e *Engine) BlockResizes() int64 { return e.blockResizes.Load() }

// LastEstimate returns the most recent pitch estimate, safe to call
// from another goroutine than Process.
func (e *Engine) LastEstimate() (detect.Result, bool) {
	p := e.lastEstimate.Load()
	if p == nil {
		return detect.Result{}, false
	}
	return *p, true
}

// LastMapping returns the most recent scale mapping, safe to call from
// another goroutine than Process.
func (e *Engine) LastMapping() (MappingResult, bool) {
	p := e.lastMapping.Load()
	if p == nil {
		return MappingResult{}, false
	}
	return *p, true
}

// CorrectionSemitones reports the lead's current applied correction.
func (e *Engine) CorrectionSemitones() float64 {
	if !e.prepared {
		return 0
	}
	return e.lead.CorrectionSemitones()
}

// Process runs one block through the chain in place. All channels must
// share the same length. Hosts occasionally deliver a block larger
// than the prepared maximum; the engine re-prepares rather than
// corrupting buffers, at the cost of a state reset.
func (e *Engine) Process(block [][]float64, snap Snapshot) error {
	if !e.prepared {
		return fmt.Errorf("engine not prepared")
	}
	if len(block) == 0 || len(block[0]) == 0 {
		return nil
	}

	n := len(block[0])
	for ch := 1; ch < len(block); ch++ {
		if len(block[ch]) != n {
			return fmt.Errorf("engine channel lengths differ: %d vs %d", len(block[ch]), n)
		}
	}
	if n > e.maxBlock {
		if err := e.Prepare(e.sampleRate, n, e.channels); err != nil {
			return err
		}
		e.blockResizes.Add(1)
	}

	channels := len(block)
	if channels > e.channels {
		channels = e.channels
	}

	e.estimator.SetVoiceRange(snap.VoiceRange)
	e.estimator.Process(block[:channels])
	est := e.estimator.Result()
	e.lastEstimate.Store(&est)

	e.mapper.Configure(snap)
	res := e.mapper.Map(est)
	mapped := res
	e.lastMapping.Store(&mapped)

	if snap.Bypass {
		return nil
	}

	e.lead.Configure(snap)
	for i, v := range e.voices {
		v.Configure(snap.Voices[i])
	}

	for ch := 0; ch < channels; ch++ {
		e.leadBuf[ch] = core.EnsureLen(e.leadBuf[ch], n)
		copy(e.leadBuf[ch], block[ch])
		e.harmonyBuf[ch] = core.EnsureLen(e.harmonyBuf[ch], n)
		core.Zero(e.harmonyBuf[ch])
	}

	e.lead.Process(e.leadBuf[:channels], res)

	for _, v := range e.voices {
		v.Process(e.harmonyBuf[:channels], e.leadBuf[:channels], res)
	}

	for ch := 0; ch < channels; ch++ {
		vecmath.AddMulBlock(block[ch], e.leadBuf[ch], e.harmonyBuf[ch], softClipDrive)
		for i := range block[ch] {
			block[ch][i] = math.Tanh(block[ch][i]) / softClipDrive
		}
	}

	return nil
}
