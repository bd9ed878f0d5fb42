package timectrl

import (
	"errors"
	"fmt"
	"math"
)

// MaxSteps bounds the number of conjunction-detection steps a schedule may
// hold.
const MaxSteps = 1 << 24

var (
	ErrInvalidInterval = errors.New("invalid conjunction detection interval")
	ErrInvalidHorizon  = errors.New("invalid time horizon")
	ErrTooManySteps    = errors.New("too many conjunction detection steps")
)

// Schedule partitions the time horizon [0, horizon] into consecutive
// conjunction-detection steps of fixed width. The last step is clamped to
// the horizon, so it may be shorter than the others.
type Schedule struct {
	interval float64
	ends     []float64
}

// NewSchedule builds the step partition of [0, horizon].
func NewSchedule(horizon, interval float64) (*Schedule, error) {
	if !(interval > 0) || math.IsInf(interval, 1) {
		return nil, fmt.Errorf("%w: the conjunction detection interval must be finite and positive, but instead a value of %v was provided",
			ErrInvalidInterval, interval)
	}
	if !(horizon > 0) || math.IsInf(horizon, 1) {
		return nil, fmt.Errorf("%w: the horizon must be finite and positive, but instead a value of %v was provided",
			ErrInvalidHorizon, horizon)
	}

	n := math.Ceil(horizon / interval)
	if n > MaxSteps {
		return nil, fmt.Errorf("%w: a horizon of %v with an interval of %v needs %v steps, the limit is %d",
			ErrTooManySteps, horizon, interval, n, MaxSteps)
	}

	ends := make([]float64, 0, int(n))
	for i := 1; ; i++ {
		t := float64(i) * interval
		if t >= horizon {
			break
		}
		ends = append(ends, t)
	}
	ends = append(ends, horizon)

	return &Schedule{interval: interval, ends: ends}, nil
}

// Interval returns the nominal step width.
func (s *Schedule) Interval() float64 { return s.interval }

// Len returns the number of steps.
func (s *Schedule) Len() int { return len(s.ends) }

// EndTimes returns a copy of the step end times.
func (s *Schedule) EndTimes() []float64 {
	return append([]float64(nil), s.ends...)
}

// Bounds returns the window [t0, t1) of step i.
func (s *Schedule) Bounds(i int) (t0, t1 float64) {
	if i > 0 {
		t0 = s.ends[i-1]
	}
	return t0, s.ends[i]
}

// Each calls fn for every step in order.
func (s *Schedule) Each(fn func(i int, t0, t1 float64)) {
	for i := range s.ends {
		t0, t1 := s.Bounds(i)
		fn(i, t0, t1)
	}
}
