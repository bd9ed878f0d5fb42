package core

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/conjunction-screener/model"
)

const (
	maxIsolationDepth = 48
	maxBisections     = 200
)

// narrowPhase resolves the candidate pairs of one step into conjunctions.
func narrowPhase(pj *model.Polyjectory, pairs []model.AABBCollision, t0, t1, thresh float64) []model.Conjunction {
	var out []model.Conjunction
	for _, pair := range pairs {
		ti, err := pj.Object(int(pair.I))
		if err != nil {
			continue
		}
		tj, err := pj.Object(int(pair.J))
		if err != nil {
			continue
		}
		out = pairConjunctions(ti, tj, pair.I, pair.J, t0, t1, thresh, out)
	}
	return out
}

// pairConjunctions appends to out every local minimum of the distance
// between trajectories ti and tj inside [t0, t1) that falls below thresh.
func pairConjunctions(ti, tj model.Trajectory, i, j uint32, t0, t1, thresh float64, out []model.Conjunction) []model.Conjunction {
	end := math.Min(t1, math.Min(ti.LastTime(), tj.LastTime()))
	if !(end > t0) {
		return out
	}

	breaks := windowBreaks(ti, tj, t0, end)
	for w := 0; w+1 < len(breaks); w++ {
		a, b := breaks[w], breaks[w+1]
		ki, kj := ti.SegmentAt(a), tj.SegmentAt(a)
		if ki < 0 || kj < 0 {
			continue
		}

		// Squared distance as a polynomial in u = t - a.
		d2 := make([]float64, 2*(len(ti.Poly(ki, model.ChanX))-1)+1)
		for c := 0; c < 3; c++ {
			pi := polyShift(ti.Poly(ki, model.ChanX+c), a-ti.StartTime(ki))
			pj := polyShift(tj.Poly(kj, model.ChanX+c), a-tj.StartTime(kj))
			rel := polySub(pi, pj)
			polyAddInPlace(d2, polyMul(rel, rel))
		}

		for _, u := range distanceMinima(polyDeriv(d2), b-a) {
			tca := math.Min(a+u, math.Nextafter(b, a))
			ri, vi := stateIn(ti, ki, tca)
			rj, vj := stateIn(tj, kj, tca)
			dca := floats.Distance(ri[:], rj[:], 2)
			if dca < thresh {
				out = append(out, model.Conjunction{
					I: i, J: j,
					TCA: tca, DCA: dca,
					RI: ri, VI: vi,
					RJ: rj, VJ: vj,
				})
			}
		}
	}
	return out
}

// windowBreaks returns t0, every segment boundary of either trajectory
// strictly inside (t0, end), and end, in ascending order.
func windowBreaks(ti, tj model.Trajectory, t0, end float64) []float64 {
	breaks := []float64{t0}
	for _, tr := range []model.Trajectory{ti, tj} {
		k := tr.SegmentAt(t0)
		if k < 0 {
			continue
		}
		for ; k < tr.NumSegments() && tr.EndTime(k) < end; k++ {
			if tr.EndTime(k) > t0 {
				breaks = append(breaks, tr.EndTime(k))
			}
		}
	}
	breaks = append(breaks, end)
	slices.Sort(breaks)
	return slices.Compact(breaks)
}

// stateIn evaluates position and velocity of segment k of tr at absolute
// time tm.
func stateIn(tr model.Trajectory, k int, tm float64) (pos, vel [3]float64) {
	h := tm - tr.StartTime(k)
	for d := 0; d < 3; d++ {
		pos[d] = tr.Eval(k, model.ChanX+d, h)
		vel[d] = tr.Eval(k, model.ChanVX+d, h)
	}
	return pos, vel
}

// distanceMinima returns the points in [0, length) where the derivative dp
// of the squared distance crosses zero from below.
func distanceMinima(dp []float64, length float64) []float64 {
	if !(length > 0) {
		return nil
	}
	q := polyScale(append([]float64(nil), dp...), length)
	var roots []float64
	isolateMinima(q, toBernstein(q), 0, 1, 0, &roots)
	for k := range roots {
		roots[k] *= length
	}
	return roots
}

// isolateMinima subdivides [lo, hi] until each piece holds at most one sign
// variation of its Bernstein coefficients, then refines the upward crossings.
func isolateMinima(q, bern []float64, lo, hi float64, depth int, roots *[]float64) {
	v := signChanges(bern)
	if v > 1 && depth < maxIsolationDepth {
		left, right := bernsteinHalves(bern)
		mid := lo + (hi-lo)/2
		isolateMinima(q, left, lo, mid, depth+1, roots)
		isolateMinima(q, right, mid, hi, depth+1, roots)
		return
	}

	flo, fhi := model.Horner(q, lo), model.Horner(q, hi)
	switch {
	case flo == 0 && leadingCoeff(bern) > 0:
		// A root sitting exactly on a boundary belongs to the piece on its
		// right.
		*roots = append(*roots, lo)
	case v > 0 && flo <= 0 && fhi > 0:
		*roots = append(*roots, bisectRoot(q, lo, hi))
	}
}

// leadingCoeff returns the first non-zero entry of b, or 0.
func leadingCoeff(b []float64) float64 {
	for _, c := range b {
		if c != 0 {
			return c
		}
	}
	return 0
}

// bisectRoot narrows a bracket with q(lo) <= 0 < q(hi).
func bisectRoot(q []float64, lo, hi float64) float64 {
	for n := 0; n < maxBisections; n++ {
		mid := lo + (hi-lo)/2
		if mid <= lo || mid >= hi {
			break
		}
		if model.Horner(q, mid) <= 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + (hi-lo)/2
}
