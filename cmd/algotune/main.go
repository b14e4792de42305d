// Command algotune retunes a vocal WAV file to a musical scale and
// optionally layers harmony voices on top.
//
// Usage:
//
//	algotune -in voice.wav -out tuned.wav [flags]
//
// Examples:
//
//	algotune -in take.wav -out tuned.wav -key A -scale natural-minor
//	algotune -in take.wav -out robot.wav -retune 100 -humanize 0
//	algotune -in take.wav -out stack.wav -preset "Choir Stack"
//	algotune -in take.wav -out tuned.wav -play
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-tune/dsp/detect"
	"github.com/cwbudde/algo-tune/music"
	"github.com/cwbudde/algo-tune/tuner"
)

func main() {
	in := flag.String("in", "", "input WAV file (required)")
	out := flag.String("out", "", "output WAV file")
	keyName := flag.String("key", "C", "key root (C, C#, D, ... B)")
	scaleName := flag.String("scale", "major", "scale: major, natural-minor, harmonic-minor, melodic-minor, chromatic")
	rangeName := flag.String("range", "alto-tenor", "voice range: soprano, alto-tenor, low-male, instrument")
	retune := flag.Float64("retune", 50, "retune speed 0 (slow) to 100 (instant)")
	humanize := flag.Float64("humanize", 25, "humanize amount 0 to 100")
	vibrato := flag.Float64("vibrato", 0, "vibrato preservation 0 to 100")
	mix := flag.Float64("mix", 1, "wet fraction 0 to 1")
	presetName := flag.String("preset", "", "harmony preset name (see -list-presets)")
	listPresets := flag.Bool("list-presets", false, "list harmony preset names")
	blockSize := flag.Int("block", 512, "processing block size in samples")
	play := flag.Bool("play", false, "play the result after processing")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: algotune -in voice.wav -out tuned.wav [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Retunes a vocal WAV to a scale and optionally adds harmonies.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  algotune -in take.wav -out tuned.wav -key A -scale natural-minor\n")
		fmt.Fprintf(os.Stderr, "  algotune -in take.wav -out stack.wav -preset \"Choir Stack\"\n")
	}
	flag.Parse()

	if *listPresets {
		for _, name := range tuner.PresetNames() {
			fmt.Println(name)
		}
		return
	}

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" && !*play {
		fail("nothing to do: need -out, -play, or both")
	}

	params := tuner.NewParams()
	params.SetKey(parseKey(*keyName))
	params.SetScale(parseScale(*scaleName))
	params.SetVoiceRange(parseRange(*rangeName))
	params.SetRetuneSpeed(*retune)
	params.SetHumanize(*humanize)
	params.SetVibratoAmount(*vibrato)
	params.SetMix(*mix)
	if *presetName != "" {
		tuner.ApplyPreset(params, tuner.ParsePreset(*presetName))
	}

	channels, rate, bitDepth, err := readWav(*in)
	if err != nil {
		fail("reading %s: %v", *in, err)
	}
	if len(channels) == 0 || len(channels[0]) == 0 {
		fail("%s contains no audio", *in)
	}

	engine := tuner.NewEngine()
	if err := engine.Prepare(float64(rate), *blockSize, len(channels)); err != nil {
		fail("preparing engine: %v", err)
	}

	snap := params.Snapshot()
	n := len(channels[0])
	block := make([][]float64, len(channels))
	for start := 0; start < n; start += *blockSize {
		end := start + *blockSize
		if end > n {
			end = n
		}
		for ch := range channels {
			block[ch] = channels[ch][start:end]
		}
		if err := engine.Process(block, snap); err != nil {
			fail("processing: %v", err)
		}
	}

	fmt.Fprintf(os.Stderr, "%s: %d ch, %d Hz, %d samples, latency %d samples\n",
		*in, len(channels), rate, n, engine.LatencySamples())
	if resizes := engine.BlockResizes(); resizes > 0 {
		fmt.Fprintf(os.Stderr, "warning: engine re-prepared %d times for oversized blocks\n", resizes)
	}
	if est, ok := engine.LastEstimate(); ok && est.Voiced {
		fmt.Fprintf(os.Stderr, "final pitch: %.1f Hz (%s), correction %+.2f semitones\n",
			est.FrequencyHz, music.NoteName(int(math.Round(est.MidiNote))),
			engine.CorrectionSemitones())
	}

	if *out != "" {
		if err := writeWav(*out, channels, rate, bitDepth); err != nil {
			fail("writing %s: %v", *out, err)
		}
	}
	if *play {
		if err := playback(channels, rate); err != nil {
			fail("playback: %v", err)
		}
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func parseKey(name string) music.Key {
	for k := music.KeyC; k <= music.KeyB; k++ {
		if strings.EqualFold(k.String(), name) {
			return k
		}
	}
	fail("unknown key %q", name)
	return music.KeyC
}

func parseScale(name string) music.Scale {
	switch strings.ToLower(name) {
	case "major":
		return music.ScaleMajor
	case "natural-minor", "minor":
		return music.ScaleNaturalMinor
	case "harmonic-minor":
		return music.ScaleHarmonicMinor
	case "melodic-minor":
		return music.ScaleMelodicMinor
	case "chromatic":
		return music.ScaleChromatic
	}
	fail("unknown scale %q", name)
	return music.ScaleChromatic
}

func parseRange(name string) detect.VoiceRange {
	switch strings.ToLower(name) {
	case "soprano":
		return detect.RangeSoprano
	case "alto-tenor":
		return detect.RangeAltoTenor
	case "low-male":
		return detect.RangeLowMale
	case "instrument":
		return detect.RangeInstrument
	}
	fail("unknown voice range %q", name)
	return detect.RangeAltoTenor
}

// readWav decodes a WAV file into per-channel float64 slices in
// [-1, 1].
func readWav(path string) (channels [][]float64, rate, bitDepth int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, err
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, 0, 0, fmt.Errorf("missing or empty format chunk")
	}

	numCh := buf.Format.NumChannels
	rate = buf.Format.SampleRate
	bitDepth = buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int(1)<<(bitDepth-1))

	frames := len(buf.Data) / numCh
	channels = make([][]float64, numCh)
	for ch := 0; ch < numCh; ch++ {
		channels[ch] = make([]float64, frames)
		for i := 0; i < frames; i++ {
			channels[ch][i] = float64(buf.Data[i*numCh+ch]) * scale
		}
	}
	return channels, rate, bitDepth, nil
}

// writeWav encodes per-channel float64 slices back to an interleaved
// PCM WAV at the source bit depth.
func writeWav(path string, channels [][]float64, rate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	numCh := len(channels)
	frames := len(channels[0])
	full := float64(int(1)<<(bitDepth-1) - 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: numCh, SampleRate: rate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, frames*numCh),
	}
	for ch := 0; ch < numCh; ch++ {
		for i := 0; i < frames; i++ {
			s := channels[ch][i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			buf.Data[i*numCh+ch] = int(math.Round(s * full))
		}
	}

	const pcmFormat = 1
	enc := wav.NewEncoder(f, rate, bitDepth, numCh, pcmFormat)
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// playback plays the processed channels as 16-bit PCM and blocks
// until done.
func playback(channels [][]float64, rate int) error {
	numCh := len(channels)
	frames := len(channels[0])

	pcm := make([]byte, 0, frames*numCh*2)
	var scratch [2]byte
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numCh; ch++ {
			s := channels[ch][i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			binary.LittleEndian.PutUint16(scratch[:], uint16(int16(math.Round(s*32767))))
			pcm = append(pcm, scratch[:]...)
		}
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: numCh,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return err
	}
	<-ready

	player := ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return player.Close()
}
