package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/conjunction-screener/model"
)

// aabbChannels maps the four AABB dimensions (x, y, z, r) to state channels.
var aabbChannels = [4]int{model.ChanX, model.ChanY, model.ChanZ, model.ChanR}

// AABB is an axis-aligned box over (x, y, z, r) stored in single precision.
// The empty box has +Inf lower and -Inf upper bounds in every dimension; it
// marks an object without trajectory data in a step.
type AABB struct {
	LB, UB [4]float32
}

// EmptyAABB returns the box of an object with no data.
func EmptyAABB() AABB {
	var b AABB
	for d := range b.LB {
		b.LB[d] = float32(math.Inf(1))
		b.UB[d] = float32(math.Inf(-1))
	}
	return b
}

// IsFinite reports whether every bound of b is finite.
func (b AABB) IsFinite() bool {
	for d := range b.LB {
		if math.IsInf(float64(b.LB[d]), 0) || math.IsInf(float64(b.UB[d]), 0) {
			return false
		}
	}
	return true
}

// Overlaps reports whether b and o intersect (boundaries included).
func (b AABB) Overlaps(o AABB) bool {
	for d := range b.LB {
		if !(b.LB[d] <= o.UB[d] && o.LB[d] <= b.UB[d]) {
			return false
		}
	}
	return true
}

// Union returns the smallest box containing b and o.
func (b AABB) Union(o AABB) AABB {
	for d := range b.LB {
		b.LB[d] = min(b.LB[d], o.LB[d])
		b.UB[d] = max(b.UB[d], o.UB[d])
	}
	return b
}

// Contains reports whether o lies entirely inside b.
func (b AABB) Contains(o AABB) bool {
	for d := range b.LB {
		if o.LB[d] < b.LB[d] || o.UB[d] > b.UB[d] {
			return false
		}
	}
	return true
}

// Center returns the midpoint of b in double precision.
func (b AABB) Center() [4]float64 {
	var c [4]float64
	for d := range c {
		c[d] = float64(b.LB[d])/2 + float64(b.UB[d])/2
	}
	return c
}

// objectAABB computes the inflated bounding box of object tr over [t0, t1).
func objectAABB(tr model.Trajectory, t0, t1, thresh float64) AABB {
	n := tr.NumSegments()
	if n == 0 || t0 >= tr.LastTime() {
		return EmptyAABB()
	}

	var lb, ub [4]float64
	for d := range lb {
		lb[d], ub[d] = math.Inf(1), math.Inf(-1)
	}

	// First segment ending strictly after t0.
	k := sort.Search(n, func(i int) bool { return tr.EndTime(i) > t0 })
	for ; k < n; k++ {
		start := tr.StartTime(k)
		if start >= t1 {
			break
		}
		ha := math.Max(t0, start) - start
		hb := math.Min(t1, tr.EndTime(k)) - start
		for d, ch := range aabbChannels {
			lo, hi := polyRange(tr.Poly(k, ch), ha, hb)
			lb[d] = math.Min(lb[d], lo)
			ub[d] = math.Max(ub[d], hi)
		}
	}

	var box AABB
	for d := range lb {
		box.LB[d] = roundDown32(lb[d] - thresh)
		box.UB[d] = roundUp32(ub[d] + thresh)
	}
	return box
}

// roundDown32 converts x to single precision and steps one float32 towards
// -Inf, so the result is strictly below x. Values outside the float32 range
// saturate at ±MaxFloat32 so the box stays finite.
func roundDown32(x float64) float32 {
	if x > math.MaxFloat32 {
		return math.MaxFloat32
	}
	return saturate32(math.Nextafter32(float32(max(x, -math.MaxFloat32)), float32(math.Inf(-1))))
}

// roundUp32 is the upward counterpart of roundDown32.
func roundUp32(x float64) float32 {
	if x < -math.MaxFloat32 {
		return -math.MaxFloat32
	}
	return saturate32(math.Nextafter32(float32(min(x, math.MaxFloat32)), float32(math.Inf(1))))
}

func saturate32(v float32) float32 {
	return min(max(v, -math.MaxFloat32), math.MaxFloat32)
}

// globalAABB returns the union of the finite boxes in boxes.
func globalAABB(boxes []AABB) AABB {
	g := EmptyAABB()
	for _, b := range boxes {
		if b.IsFinite() {
			g = g.Union(b)
		}
	}
	return g
}
