package core

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
)

// Polynomials are stored as coefficient slices in ascending powers.

// polyShift returns the coefficients of p(x + a).
func polyShift(p []float64, a float64) []float64 {
	c := append([]float64(nil), p...)
	n := len(c) - 1
	for i := 0; i < n; i++ {
		for k := n - 1; k >= i; k-- {
			c[k] += a * c[k+1]
		}
	}
	return c
}

// polyScale rescales p in place so that the result evaluated at u equals p
// evaluated at s*u.
func polyScale(p []float64, s float64) []float64 {
	f := 1.0
	for k := range p {
		p[k] *= f
		f *= s
	}
	return p
}

// polyToUnit re-expresses p over [a, b] as a polynomial over [0, 1].
func polyToUnit(p []float64, a, b float64) []float64 {
	return polyScale(polyShift(p, a), b-a)
}

func polySub(p, q []float64) []float64 {
	n := max(len(p), len(q))
	r := make([]float64, n)
	copy(r, p)
	for i, c := range q {
		r[i] -= c
	}
	return r
}

func polyMul(p, q []float64) []float64 {
	if len(p) == 0 || len(q) == 0 {
		return nil
	}
	r := make([]float64, len(p)+len(q)-1)
	for i, a := range p {
		for j, b := range q {
			r[i+j] += a * b
		}
	}
	return r
}

func polyAddInPlace(dst, p []float64) {
	for i, c := range p {
		dst[i] += c
	}
}

func polyDeriv(p []float64) []float64 {
	if len(p) < 2 {
		return []float64{0}
	}
	r := make([]float64, len(p)-1)
	for k := 1; k < len(p); k++ {
		r[k-1] = float64(k) * p[k]
	}
	return r
}

// toBernstein converts a polynomial over [0, 1] from the power basis to the
// Bernstein basis of the same degree.
func toBernstein(q []float64) []float64 {
	n := len(q) - 1
	b := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		var s float64
		for k := 0; k <= i; k++ {
			s += float64(combin.Binomial(i, k)) / float64(combin.Binomial(n, k)) * q[k]
		}
		b[i] = s
	}
	return b
}

// polyRange returns an enclosure of the range of p over [a, b]. The
// Bernstein coefficients over [a, b] bound the polynomial from both sides.
func polyRange(p []float64, a, b float64) (lo, hi float64) {
	bern := toBernstein(polyToUnit(p, a, b))
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, c := range bern {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	return lo, hi
}

// bernsteinHalves splits Bernstein coefficients over [0, 1] into the
// coefficients over [0, 1/2] and [1/2, 1] (de Casteljau).
func bernsteinHalves(b []float64) (left, right []float64) {
	n := len(b) - 1
	tmp := append([]float64(nil), b...)
	left = make([]float64, n+1)
	right = make([]float64, n+1)
	left[0], right[n] = tmp[0], tmp[n]
	for r := 1; r <= n; r++ {
		for k := 0; k <= n-r; k++ {
			tmp[k] = (tmp[k] + tmp[k+1]) / 2
		}
		left[r] = tmp[0]
		right[n-r] = tmp[n-r]
	}
	return left, right
}

// signChanges counts the sign variations of b, ignoring zeros.
func signChanges(b []float64) int {
	n := 0
	prev := 0.0
	for _, c := range b {
		if c == 0 {
			continue
		}
		if prev != 0 && (c > 0) != (prev > 0) {
			n++
		}
		prev = c
	}
	return n
}
