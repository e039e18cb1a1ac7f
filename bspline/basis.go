package bspline

// Basis evaluates the k nonvanishing basis functions of order k at u
// for the given knot span (The NURBS Book, algorithm 2.2). The value
// at index a is the basis function for control point span-(k-1)+a.
func (t KnotVec) Basis(k, span int, u float64) []float64 {
	p := k - 1
	vals := make([]float64, k)
	left := make([]float64, k)
	right := make([]float64, k)
	vals[0] = 1
	for j := 1; j <= p; j++ {
		left[j] = u - t[span+1-j]
		right[j] = t[span+j] - u
		var saved float64
		for r := 0; r < j; r++ {
			tmp := vals[r] / (right[r+1] + left[j-r])
			vals[r] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		vals[j] = saved
	}
	return vals
}

// BasisDeriv evaluates the k nonvanishing basis functions and their
// first derivatives at u for the given span (The NURBS Book,
// algorithm 2.3 limited to first order).
func (t KnotVec) BasisDeriv(k, span int, u float64) (vals, ders []float64) {
	p := k - 1
	ndu := make([][]float64, k)
	for i := range ndu {
		ndu[i] = make([]float64, k)
	}
	left := make([]float64, k)
	right := make([]float64, k)
	ndu[0][0] = 1
	for j := 1; j <= p; j++ {
		left[j] = u - t[span+1-j]
		right[j] = t[span+j] - u
		var saved float64
		for r := 0; r < j; r++ {
			ndu[j][r] = right[r+1] + left[j-r]
			tmp := ndu[r][j-1] / ndu[j][r]
			ndu[r][j] = saved + right[r+1]*tmp
			saved = left[j-r] * tmp
		}
		ndu[j][j] = saved
	}
	vals = make([]float64, k)
	ders = make([]float64, k)
	for j := 0; j <= p; j++ {
		vals[j] = ndu[j][p]
	}
	if p == 0 {
		return vals, ders
	}
	// First derivative from the lower-order basis differences.
	for r := 0; r <= p; r++ {
		var d float64
		if r > 0 {
			d += ndu[r-1][p-1] / ndu[p][r-1]
		}
		if r <= p-1 {
			d -= ndu[r][p-1] / ndu[p][r]
		}
		ders[r] = d * float64(p)
	}
	return vals, ders
}

// Greville returns the Greville abscissa of control point i for a
// spline of order k: the averaged parametric location at which that
// control point has the most influence.
func (t KnotVec) Greville(k, i int) float64 {
	if k == 1 {
		return t[i]
	}
	sum := 0.0
	for j := i + 1; j < i+k; j++ {
		sum += t[j]
	}
	return sum / float64(k-1)
}
