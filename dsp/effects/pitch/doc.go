// Package pitch provides streaming time-domain pitch shifting.
//
// The shifter uses WSOLA (waveform-similarity overlap-add): input is
// chopped into Hann-windowed grains at a fixed analysis hop, each
// grain is aligned against the synthesized output by a normalized
// cross-correlation search, and grains are overlap-added at a
// synthesis hop scaled by the pitch ratio. Latency is one grain
// window, and the ratio can be modulated per block without clicks.
package pitch
