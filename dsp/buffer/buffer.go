package buffer

import "fmt"

// Ring is a fixed-size ring buffer over float64 samples.
//
// Capacity is always a power of two so that monotonically increasing
// sample positions wrap with a bit mask instead of a modulo. Callers
// address samples by absolute position; the ring never shifts data.
type Ring struct {
	data []float64
	mask int
}

// NewRing returns a zero-filled Ring whose capacity is minCapacity
// rounded up to the next power of two.
func NewRing(minCapacity int) (*Ring, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("ring capacity must be positive: %d", minCapacity)
	}

	capacity := NextPowerOfTwo(minCapacity)

	return &Ring{
		data: make([]float64, capacity),
		mask: capacity - 1,
	}, nil
}

// Capacity returns the allocated length, always a power of two.
func (r *Ring) Capacity() int {
	return len(r.data)
}

// At returns the sample at the wrapped position.
func (r *Ring) At(pos int) float64 {
	return r.data[pos&r.mask]
}

// Set stores value at the wrapped position.
func (r *Ring) Set(pos int, value float64) {
	r.data[pos&r.mask] = value
}

// Add accumulates value into the wrapped position.
func (r *Ring) Add(pos int, value float64) {
	r.data[pos&r.mask] += value
}

// ZeroAt clears the sample at the wrapped position.
func (r *Ring) ZeroAt(pos int) {
	r.data[pos&r.mask] = 0
}

// Write stores n consecutive samples starting at the wrapped position.
func (r *Ring) Write(pos int, src []float64) {
	for i, v := range src {
		r.data[(pos+i)&r.mask] = v
	}
}

// Read copies n consecutive samples starting at the wrapped position into dst.
func (r *Ring) Read(pos int, dst []float64) {
	for i := range dst {
		dst[i] = r.data[(pos+i)&r.mask]
	}
}

// Reset zeroes the whole ring.
func (r *Ring) Reset() {
	for i := range r.data {
		r.data[i] = 0
	}
}

// NextPowerOfTwo returns the smallest power of two >= n (minimum 1).
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
