// Package tuner wires pitch detection, scale mapping, lead correction
// and harmony voices into a real-time vocal processing engine.
//
// The Engine owns the audio-thread chain; Params is the lock-free
// bridge from a control context. A typical caller holds one of each:
//
//	params := tuner.NewParams()
//	engine := tuner.NewEngine()
//	engine.Prepare(48000, 512, 2)
//	// audio thread, per block:
//	engine.Process(block, params.Snapshot())
package tuner
