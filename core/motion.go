package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/conjunction-screener/model"
)

// Trajectory status codes recorded by SGP4Polyjectory.
const (
	StatusOK                int32 = 0
	StatusPropagationFailed int32 = 1
)

// secondsPerMinute converts go-satellite velocities (km/s) to km/min.
const secondsPerMinute = 60.0

var (
	ErrInvalidTLE         = errors.New("invalid TLE")
	ErrInvalidPropagation = errors.New("invalid propagation request")
)

// TLE is a two-line element set with an optional name line.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// tleField is a fixed-column numeric field of an element set, rebuilt into
// the literal form go-satellite hands to strconv.
type tleField struct {
	name  string
	line  int
	float bool
	text  func(line string) string
}

func columns(lo, hi int) func(string) string {
	return func(l string) string { return strings.Replace(l[lo:hi], " ", "", 2) }
}

func exponent(lo int) func(string) string {
	return func(l string) string {
		return strings.Replace(l[lo:lo+1]+"."+l[lo+1:lo+6]+"e"+l[lo+6:lo+8], " ", "", 2)
	}
}

var tleFields = []tleField{
	{"catalog number", 1, false, func(l string) string { return strings.TrimSpace(l[2:7]) }},
	{"epoch year", 1, false, func(l string) string { return l[18:20] }},
	{"epoch day", 1, true, func(l string) string { return l[20:32] }},
	{"mean motion derivative", 1, true, columns(33, 43)},
	{"mean motion second derivative", 1, true, exponent(44)},
	{"drag term", 1, true, exponent(53)},
	{"inclination", 2, true, columns(8, 16)},
	{"right ascension", 2, true, columns(17, 25)},
	{"eccentricity", 2, true, func(l string) string { return "." + l[26:33] }},
	{"argument of perigee", 2, true, columns(34, 42)},
	{"mean anomaly", 2, true, columns(43, 51)},
	{"mean motion", 2, true, columns(52, 63)},
}

// Validate checks the line layout and every numeric field go-satellite
// parses. go-satellite exits the process on a malformed field, so element
// sets must pass Validate before they reach it.
func (e TLE) Validate() error {
	if len(e.Line1) < 69 || !strings.HasPrefix(e.Line1, "1 ") {
		return fmt.Errorf("%w: line 1 of %q is malformed", ErrInvalidTLE, e.Name)
	}
	if len(e.Line2) < 69 || !strings.HasPrefix(e.Line2, "2 ") {
		return fmt.Errorf("%w: line 2 of %q is malformed", ErrInvalidTLE, e.Name)
	}
	for _, f := range tleFields {
		line := e.Line1
		if f.line == 2 {
			line = e.Line2
		}
		text := f.text(line)
		var err error
		if f.float {
			_, err = strconv.ParseFloat(text, 64)
		} else {
			_, err = strconv.ParseInt(text, 10, 0)
		}
		if err != nil {
			return fmt.Errorf("%w: %q has an unreadable %s field %q", ErrInvalidTLE, e.Name, f.name, text)
		}
	}
	return nil
}

// NoradID returns the catalog number from line 1.
func (e TLE) NoradID() string {
	if len(e.Line1) < 7 {
		return ""
	}
	return strings.TrimSpace(e.Line1[2:7])
}

// ParseTLEs reads two- or three-line element sets. Blank lines are skipped.
func ParseTLEs(r io.Reader) ([]TLE, error) {
	var (
		out  []TLE
		name string
		l1   string
	)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \r")
		switch {
		case strings.TrimSpace(line) == "":
			continue
		case strings.HasPrefix(line, "1 "):
			l1 = line
		case strings.HasPrefix(line, "2 "):
			if l1 == "" {
				return nil, fmt.Errorf("%w: line %d: line 2 without line 1", ErrInvalidTLE, lineNo)
			}
			tle := TLE{Name: name, Line1: l1, Line2: line}
			if tle.Name == "" {
				tle.Name = tle.NoradID()
			}
			if err := tle.Validate(); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			out = append(out, tle)
			name, l1 = "", ""
		default:
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// sample is an SGP4 state in TEME, km and km/min.
type sample struct {
	pos, vel [3]float64
}

// propagateAt runs SGP4 at tm. go-satellite resolves whole seconds only.
// It reports false when propagation fails, which go-satellite signals with
// a zero or non-finite state.
func propagateAt(sat satellite.Satellite, tm time.Time) (sample, bool) {
	tm = tm.UTC()
	year, month, day := tm.Date()
	hour, min, sec := tm.Clock()

	p, v := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	s := sample{
		pos: [3]float64{p.X, p.Y, p.Z},
		vel: [3]float64{v.X * secondsPerMinute, v.Y * secondsPerMinute, v.Z * secondsPerMinute},
	}
	r := floats.Norm(s.pos[:], 2)
	if math.IsNaN(r) || math.IsInf(r, 0) || r < 1 {
		return sample{}, false
	}
	for _, c := range s.vel {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return sample{}, false
		}
	}
	return s, true
}

// hermite returns the cubic through (0, y0) and (dt, y1) with slopes d0, d1.
func hermite(y0, d0, y1, d1, dt float64) []float64 {
	slope := (y1 - y0) / dt
	return []float64{
		y0,
		d0,
		(3*slope - 2*d0 - d1) / dt,
		(d0 + d1 - 2*slope) / (dt * dt),
	}
}

// radial returns |r| and d|r|/dt.
func radial(s sample) (float64, float64) {
	r := floats.Norm(s.pos[:], 2)
	return r, floats.Dot(s.pos[:], s.vel[:]) / r
}

// hermiteSegment fits one polyjectory segment between two SGP4 samples
// dt minutes apart.
func hermiteSegment(a, b sample, dt float64) model.Segment {
	var seg model.Segment
	for d := 0; d < 3; d++ {
		pos := hermite(a.pos[d], a.vel[d], b.pos[d], b.vel[d], dt)
		seg[model.ChanX+d] = pos
		seg[model.ChanVX+d] = append(polyDeriv(pos), 0)
	}
	ra, dra := radial(a)
	rb, drb := radial(b)
	seg[model.ChanR] = hermite(ra, dra, rb, drb, dt)
	return seg
}

// SGP4Polyjectory propagates every element set from start over horizon and
// fits cubic segments of the given length. Time is measured in minutes
// since start and distances in km. Element sets that fail to propagate at
// start are skipped; the returned indices map polyjectory objects back to
// elems. A failure later on truncates the trajectory and sets
// StatusPropagationFailed.
func SGP4Polyjectory(elems []TLE, start time.Time, horizon, segment time.Duration) (*model.Polyjectory, []int, error) {
	start = start.Truncate(time.Second)
	horizon = horizon.Truncate(time.Second)
	segment = segment.Truncate(time.Second)
	if segment <= 0 {
		return nil, nil, fmt.Errorf("%w: the segment length must be at least one second", ErrInvalidPropagation)
	}
	if horizon <= 0 {
		return nil, nil, fmt.Errorf("%w: the horizon must be at least one second", ErrInvalidPropagation)
	}
	nseg := int((horizon + segment - 1) / segment)

	var (
		objs []model.ObjectTrajectory
		kept []int
	)
	for i, e := range elems {
		if e.Validate() != nil {
			continue
		}
		sat := satellite.TLEToSat(e.Line1, e.Line2, satellite.GravityWGS72)
		if sat.Error != 0 {
			continue
		}
		prev, ok := propagateAt(sat, start)
		if !ok {
			continue
		}

		obj := model.ObjectTrajectory{Status: StatusOK}
		var t0 time.Duration
		for k := 0; k < nseg; k++ {
			t1 := min(time.Duration(k+1)*segment, horizon)
			next, ok := propagateAt(sat, start.Add(t1))
			if !ok {
				obj.Status = StatusPropagationFailed
				break
			}
			obj.Segments = append(obj.Segments, hermiteSegment(prev, next, (t1 - t0).Minutes()))
			obj.Times = append(obj.Times, t1.Minutes())
			prev, t0 = next, t1
		}
		objs = append(objs, obj)
		kept = append(kept, i)
	}

	pj, err := model.NewPolyjectory(objs)
	if err != nil {
		return nil, nil, err
	}
	return pj, kept, nil
}
