package core

import "math"

// MortonSentinel is the key of an object without data in a step. It sorts
// after every other key.
const MortonSentinel = math.MaxUint64

const (
	mortonBits  = 16
	mortonCells = 1 << mortonBits
)

// discretize maps x within [lo, hi] onto one of 2^16 cells.
func discretize(x, lo, hi float64) uint64 {
	w := hi - lo
	if !(w > 0) || math.IsInf(w, 0) {
		return 0
	}
	v := (x - lo) / w * mortonCells
	switch {
	case !(v > 0):
		return 0
	case v >= mortonCells-1:
		return mortonCells - 1
	}
	return uint64(v)
}

// interleave4 interleaves the low 16 bits of four coordinates. Bit k of
// coordinate d lands at bit 4k+d of the result.
func interleave4(c [4]uint64) uint64 {
	var code uint64
	for d, v := range c {
		code |= spread4(v) << d
	}
	return code
}

// spread4 moves bit k of the low 16 bits of v to bit 4k.
func spread4(v uint64) uint64 {
	v &= 0xffff
	v = (v | v<<24) & 0x000000ff000000ff
	v = (v | v<<12) & 0x000f000f000f000f
	v = (v | v<<6) & 0x0303030303030303
	v = (v | v<<3) & 0x1111111111111111
	return v
}

// mortonCode returns the key of box relative to the step's global box, or
// MortonSentinel when box is empty.
func mortonCode(box, global AABB) uint64 {
	if !box.IsFinite() {
		return MortonSentinel
	}
	center := box.Center()
	var cells [4]uint64
	for d := range cells {
		cells[d] = discretize(center[d], float64(global.LB[d]), float64(global.UB[d]))
	}
	return interleave4(cells)
}
