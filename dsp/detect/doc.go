// Package detect implements monophonic fundamental-frequency estimation
// using the YIN algorithm (de Cheveigné & Kawahara, 2002).
//
// The estimator accumulates incoming audio in a ring buffer and runs an
// analysis every hop, so arbitrary block sizes feed it without
// re-framing on the caller's side.
package detect
