// Package buffer provides a power-of-two ring buffer addressed by absolute
// sample positions. Streaming processors keep monotonically increasing
// read/write cursors and let the ring mask them, which avoids both modulo
// arithmetic and data shifting in hot paths.
package buffer
