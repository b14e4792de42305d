// Package formant implements spectral envelope shifting with a fixed
// eight-band bandpass bank. Scaling the band centers moves the vocal
// formant regions without touching the pitch, which keeps a shifted
// voice from sounding like a chipmunk or a giant.
package formant
