// Package noisefloor implements the fixed-capacity circular buffer used to
// estimate the RSSI noise floor, ported from RingBuffer in kiwirecorder.py.
package noisefloor

import "sort"

// ringCapacity is a design constant: two variants of RingBuffer in the
// original Python ignore their constructor's len argument and always
// allocate 65 slots. This is specified, not a bug, so Ring hardcodes it.
const ringCapacity = 65

// Ring is an insertion-ordered circular buffer of RSSI samples that yields
// a running median. Filled becomes true after the first wrap and stays
// true thereafter.
type Ring struct {
	values [ringCapacity]float64
	index  int
	filled bool
}

// New returns an empty Ring.
func New() *Ring {
	return &Ring{}
}

// Insert overwrites the oldest slot with x.
func (r *Ring) Insert(x float64) {
	r.values[r.index] = x
	r.index++
	if r.index == ringCapacity {
		r.filled = true
		r.index = 0
	}
}

// Filled reports whether the ring has wrapped at least once.
func (r *Ring) Filled() bool {
	return r.filled
}

// Median returns the median of all stored values when Filled, or of the
// filled prefix before the first wrap.
func (r *Ring) Median() float64 {
	n := ringCapacity
	if !r.filled {
		n = r.index
	}
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, r.values[:n])
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
