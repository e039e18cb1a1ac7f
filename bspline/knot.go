package bspline

import (
	"fmt"
	"sort"
)

// KnotVec is a nondecreasing knot vector for a clamped B-spline of
// order k (degree k-1). A spline with nCtl control points carries
// nCtl+k knots.
type KnotVec []float64

// Uniform returns a clamped knot vector on [0,1] with uniformly spaced
// interior knots for nCtl control points of order k.
func Uniform(nCtl, k int) KnotVec {
	if nCtl < k {
		panic(fmt.Sprintf("bspline: %d control points cannot support order %d", nCtl, k))
	}
	t := make(KnotVec, nCtl+k)
	nInterior := nCtl - k
	for i := 0; i < k; i++ {
		t[i] = 0
		t[len(t)-1-i] = 1
	}
	for i := 0; i < nInterior; i++ {
		t[k+i] = float64(i+1) / float64(nInterior+1)
	}
	return t
}

// Averaged returns a clamped knot vector built by averaging the given
// parameter values (the knot placement rule that makes interpolation
// collocation matrices nonsingular). nCtl must equal len(params).
func Averaged(params []float64, k int) KnotVec {
	nCtl := len(params)
	if nCtl < k {
		panic(fmt.Sprintf("bspline: %d parameters cannot support order %d", nCtl, k))
	}
	p := k - 1
	t := make(KnotVec, nCtl+k)
	for i := 0; i < k; i++ {
		t[i] = 0
		t[len(t)-1-i] = 1
	}
	for j := 1; j <= nCtl-k; j++ {
		sum := 0.0
		for i := j; i < j+p; i++ {
			sum += params[i]
		}
		t[j+p] = sum / float64(p)
	}
	return t
}

// Approximating returns a clamped knot vector suited to a
// least-squares fit of nCtl control points of order k to data at the
// given parameter values, with nCtl <= len(params). Interior knots are
// placed by interpolating the sorted parameter values so every knot
// span contains data.
func Approximating(params []float64, nCtl, k int) KnotVec {
	m := len(params)
	if nCtl > m {
		panic(fmt.Sprintf("bspline: %d control points exceed %d parameters", nCtl, m))
	}
	if nCtl == m {
		return Averaged(params, k)
	}
	p := k - 1
	t := make(KnotVec, nCtl+k)
	for i := 0; i < k; i++ {
		t[i] = 0
		t[len(t)-1-i] = 1
	}
	d := float64(m) / float64(nCtl-p)
	for j := 1; j <= nCtl-k; j++ {
		x := float64(j) * d
		i := int(x)
		alpha := x - float64(i)
		t[p+j] = (1-alpha)*params[i-1] + alpha*params[i]
	}
	return t
}

// Valid reports whether the knot vector is nondecreasing.
func (t KnotVec) Valid() bool {
	return sort.Float64sAreSorted(t)
}

// Span locates the knot interval containing u for a spline of order k:
// the returned span satisfies t[span] <= u < t[span+1]. When u sits at
// (or beyond) the right end of the domain, atEnd is true and span is
// the last control index; only the last basis function is nonzero
// there.
func (t KnotVec) Span(k int, u float64) (span int, atEnd bool) {
	n := len(t) - k // number of control points
	if u >= t[n] {
		return n - 1, true
	}
	lo, hi := k-1, n
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if u < t[mid] {
			hi = mid
		} else {
			lo = mid
		}
	}
	return lo, false
}
