package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// NumStateVars is the number of state channels carried by every trajectory
// segment: three position components, three velocity components and the
// radial distance.
const NumStateVars = 7

// State channel indices within a Segment.
const (
	ChanX = iota
	ChanY
	ChanZ
	ChanVX
	ChanVY
	ChanVZ
	ChanR
)

var (
	// ErrIndexOutOfRange is returned by accessors given an object, step or
	// tree index outside the valid range.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrInvalidPolyjectory is returned when trajectory data fails validation.
	ErrInvalidPolyjectory = errors.New("invalid polyjectory")
)

// Segment holds the polynomial coefficients of every state channel over one
// trajectory step, in ascending powers of the time elapsed since the
// beginning of the step.
type Segment [NumStateVars][]float64

// ObjectTrajectory is the input form of a single object's trajectory. Times
// holds the end time of each segment; the first segment begins at time 0.
type ObjectTrajectory struct {
	Segments []Segment
	Times    []float64
	Status   int32
}

// Polyjectory is an immutable collection of piecewise polynomial
// trajectories, one per object. All objects share the same polynomial order.
type Polyjectory struct {
	order  int
	coeffs [][]float64 // per object: segment-major, channel, power
	times  [][]float64
	status []int32
	maxT   float64
}

// NewPolyjectory validates objs and copies them into a Polyjectory.
func NewPolyjectory(objs []ObjectTrajectory) (*Polyjectory, error) {
	if len(objs) == 0 {
		return nil, fmt.Errorf("%w: at least one object is required", ErrInvalidPolyjectory)
	}

	order := -1
	for i, obj := range objs {
		for k, seg := range obj.Segments {
			for ch, poly := range seg {
				if len(poly) == 0 {
					return nil, fmt.Errorf("%w: object %d segment %d channel %d has no coefficients",
						ErrInvalidPolyjectory, i, k, ch)
				}
				if order == -1 {
					order = len(poly) - 1
				}
				if len(poly)-1 != order {
					return nil, fmt.Errorf("%w: object %d segment %d channel %d has %d coefficients, expected %d",
						ErrInvalidPolyjectory, i, k, ch, len(poly), order+1)
				}
			}
		}
	}
	if order == -1 {
		return nil, fmt.Errorf("%w: no object carries trajectory data", ErrInvalidPolyjectory)
	}
	if order < 1 {
		return nil, fmt.Errorf("%w: the polynomial order must be at least 1, but it is %d", ErrInvalidPolyjectory, order)
	}

	pj := &Polyjectory{
		order:  order,
		coeffs: make([][]float64, len(objs)),
		times:  make([][]float64, len(objs)),
		status: make([]int32, len(objs)),
		maxT:   math.Inf(-1),
	}

	stride := NumStateVars * (order + 1)
	for i, obj := range objs {
		if len(obj.Segments) != len(obj.Times) {
			return nil, fmt.Errorf("%w: object %d has %d segments but %d end times",
				ErrInvalidPolyjectory, i, len(obj.Segments), len(obj.Times))
		}

		prev := 0.0
		for k, t := range obj.Times {
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return nil, fmt.Errorf("%w: object %d has a non-finite end time at segment %d", ErrInvalidPolyjectory, i, k)
			}
			if t <= prev {
				return nil, fmt.Errorf("%w: the end times of object %d must be positive and strictly increasing, but %v follows %v",
					ErrInvalidPolyjectory, i, t, prev)
			}
			prev = t
		}

		flat := make([]float64, 0, stride*len(obj.Segments))
		for k, seg := range obj.Segments {
			for ch := range seg {
				for _, c := range seg[ch] {
					if math.IsNaN(c) || math.IsInf(c, 0) {
						return nil, fmt.Errorf("%w: object %d segment %d channel %d has a non-finite coefficient",
							ErrInvalidPolyjectory, i, k, ch)
					}
				}
				flat = append(flat, seg[ch]...)
			}
		}

		pj.coeffs[i] = flat
		pj.times[i] = append([]float64(nil), obj.Times...)
		pj.status[i] = obj.Status
		if n := len(obj.Times); n > 0 && obj.Times[n-1] > pj.maxT {
			pj.maxT = obj.Times[n-1]
		}
	}

	if math.IsInf(pj.maxT, -1) {
		return nil, fmt.Errorf("%w: no object carries trajectory data", ErrInvalidPolyjectory)
	}

	return pj, nil
}

// NumObjects returns the number of objects.
func (p *Polyjectory) NumObjects() int { return len(p.times) }

// Order returns the polynomial order shared by all segments.
func (p *Polyjectory) Order() int { return p.order }

// MaxTime returns the end of the time horizon covered by the polyjectory.
func (p *Polyjectory) MaxTime() float64 { return p.maxT }

// Object returns a read-only view of the trajectory of object i.
func (p *Polyjectory) Object(i int) (Trajectory, error) {
	if i < 0 || i >= len(p.times) {
		return Trajectory{}, fmt.Errorf("%w: cannot access the trajectory of the object at index %d: the total number of objects is only %d",
			ErrIndexOutOfRange, i, len(p.times))
	}
	return Trajectory{
		order:  p.order,
		coeffs: p.coeffs[i],
		times:  p.times[i],
		status: p.status[i],
	}, nil
}

// Trajectory is a read-only view over one object's segments.
type Trajectory struct {
	order  int
	coeffs []float64
	times  []float64
	status int32
}

// NumSegments returns the number of segments.
func (t Trajectory) NumSegments() int { return len(t.times) }

// Status returns the status code assigned by the trajectory producer.
func (t Trajectory) Status() int32 { return t.status }

// EndTime returns the end time of segment k.
func (t Trajectory) EndTime(k int) float64 { return t.times[k] }

// StartTime returns the start time of segment k.
func (t Trajectory) StartTime(k int) float64 {
	if k == 0 {
		return 0
	}
	return t.times[k-1]
}

// LastTime returns the time at which the data ends, or -Inf for an empty
// trajectory.
func (t Trajectory) LastTime() float64 {
	if len(t.times) == 0 {
		return math.Inf(-1)
	}
	return t.times[len(t.times)-1]
}

// Times returns a copy of the segment end times.
func (t Trajectory) Times() []float64 {
	return append([]float64(nil), t.times...)
}

// Poly returns the coefficients of channel ch in segment k. The returned
// slice aliases the polyjectory and must not be modified.
func (t Trajectory) Poly(k, ch int) []float64 {
	n := t.order + 1
	off := (k*NumStateVars + ch) * n
	return t.coeffs[off : off+n : off+n]
}

// Eval evaluates channel ch of segment k at local time h.
func (t Trajectory) Eval(k, ch int, h float64) float64 {
	return Horner(t.Poly(k, ch), h)
}

// SegmentAt returns the index of the segment covering absolute time tm, or
// -1 when tm is negative or at/after the end of the data.
func (t Trajectory) SegmentAt(tm float64) int {
	if tm < 0 {
		return -1
	}
	k := sort.Search(len(t.times), func(i int) bool { return t.times[i] > tm })
	if k == len(t.times) {
		return -1
	}
	return k
}

// State returns position and velocity at absolute time tm. ok is false when
// the trajectory has no data at tm.
func (t Trajectory) State(tm float64) (pos, vel [3]float64, ok bool) {
	k := t.SegmentAt(tm)
	if k < 0 {
		return pos, vel, false
	}
	h := tm - t.StartTime(k)
	for d := 0; d < 3; d++ {
		pos[d] = t.Eval(k, ChanX+d, h)
		vel[d] = t.Eval(k, ChanVX+d, h)
	}
	return pos, vel, true
}

// Horner evaluates the polynomial with ascending coefficients c at x.
func Horner(c []float64, x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	r := c[len(c)-1]
	for i := len(c) - 2; i >= 0; i-- {
		r = r*x + c[i]
	}
	return r
}
