package bspline

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Surface is a tensor-product B-spline surface patch. Alongside the
// live control grid it records the originally sampled data points and
// their parameter values; fitting and topology stitching work against
// that record.
type Surface struct {
	KU, KV int // spline orders (degree+1) in u and v
	TU, TV KnotVec
	Coef   [][]r3.Vec // control grid, NctlU x NctlV

	// Originally sampled data and its parameterization.
	Data [][]r3.Vec // Nu x Nv
	U, V []float64
}

// NumCtl returns the control grid dimensions.
func (s *Surface) NumCtl() (nu, nv int) { return len(s.Coef), len(s.Coef[0]) }

// NumData returns the original data grid dimensions.
func (s *Surface) NumData() (nu, nv int) { return len(s.Data), len(s.Data[0]) }

// New creates a surface from an explicit control grid and knot
// vectors. The original-data record is seeded with the control grid
// evaluated at its Greville abscissae.
func New(ku, kv int, tu, tv KnotVec, coef [][]r3.Vec) (*Surface, error) {
	if len(coef) == 0 || len(coef[0]) == 0 {
		return nil, errors.New("bspline: empty control grid")
	}
	nu, nv := len(coef), len(coef[0])
	if len(tu) != nu+ku {
		return nil, fmt.Errorf("bspline: u knot vector has %d knots, want %d", len(tu), nu+ku)
	}
	if len(tv) != nv+kv {
		return nil, fmt.Errorf("bspline: v knot vector has %d knots, want %d", len(tv), nv+kv)
	}
	if !tu.Valid() || !tv.Valid() {
		return nil, errors.New("bspline: knot vector is not nondecreasing")
	}
	s := &Surface{KU: ku, KV: kv, TU: tu, TV: tv, Coef: coef}
	s.U = make([]float64, nu)
	s.V = make([]float64, nv)
	for i := range s.U {
		s.U[i] = tu.Greville(ku, i)
	}
	for j := range s.V {
		s.V[j] = tv.Greville(kv, j)
	}
	s.Data = make([][]r3.Vec, nu)
	for i := range s.Data {
		s.Data[i] = make([]r3.Vec, nv)
		for j := range s.Data[i] {
			s.Data[i][j] = s.Point(s.U[i], s.V[j])
		}
	}
	return s, nil
}

// Interpolate builds a surface of orders ku,kv passing through every
// point of the data grid. Parameters come from averaged chord lengths
// and knots from parameter averaging, so the collocation systems are
// nonsingular for any reasonable grid.
func Interpolate(data [][]r3.Vec, ku, kv int) (*Surface, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, errors.New("bspline: empty data grid")
	}
	nu, nv := len(data), len(data[0])
	if nu < ku || nv < kv {
		return nil, fmt.Errorf("bspline: %dx%d data grid cannot support orders %d,%d", nu, nv, ku, kv)
	}
	s := &Surface{KU: ku, KV: kv, Data: data}
	s.U, s.V = chordParams(data)
	s.TU = Averaged(s.U, ku)
	s.TV = Averaged(s.V, kv)
	s.Coef = make([][]r3.Vec, nu)
	for i := range s.Coef {
		s.Coef[i] = make([]r3.Vec, nv)
	}
	if err := s.Refit(); err != nil {
		return nil, err
	}
	return s, nil
}

// chordParams computes normalized chord-length parameter values for a
// data grid, averaged across the opposing direction.
func chordParams(data [][]r3.Vec) (u, v []float64) {
	nu, nv := len(data), len(data[0])
	u = make([]float64, nu)
	v = make([]float64, nv)
	for j := 0; j < nv; j++ {
		total := 0.0
		d := make([]float64, nu)
		for i := 1; i < nu; i++ {
			total += r3.Norm(r3.Sub(data[i][j], data[i-1][j]))
			d[i] = total
		}
		if total == 0 {
			continue // degenerate column, contributes nothing
		}
		for i := 1; i < nu; i++ {
			u[i] += d[i] / total
		}
	}
	for i := 1; i < nu; i++ {
		u[i] /= float64(nv)
	}
	u[nu-1] = 1
	for i := 0; i < nu; i++ {
		total := 0.0
		d := make([]float64, nv)
		for j := 1; j < nv; j++ {
			total += r3.Norm(r3.Sub(data[i][j], data[i][j-1]))
			d[j] = total
		}
		if total == 0 {
			continue
		}
		for j := 1; j < nv; j++ {
			v[j] += d[j] / total
		}
	}
	for j := 1; j < nv; j++ {
		v[j] /= float64(nu)
	}
	v[nv-1] = 1
	return u, v
}

// SetControlCounts resizes the control grid to nctlu x nctlv with
// uniform knot vectors, raising the orders toward 4 where the new
// counts allow. The control grid contents are invalid until Refit is
// called.
func (s *Surface) SetControlCounts(nctlu, nctlv int) {
	if s.KU < nctlu {
		s.KU = 4
		if nctlu < 4 {
			s.KU = nctlu
		}
	}
	if s.KV < nctlv {
		s.KV = 4
		if nctlv < 4 {
			s.KV = nctlv
		}
	}
	if s.KU > nctlu {
		s.KU = nctlu
	}
	if s.KV > nctlv {
		s.KV = nctlv
	}
	s.TU = Uniform(nctlu, s.KU)
	s.TV = Uniform(nctlv, s.KV)
	s.Coef = make([][]r3.Vec, nctlu)
	for i := range s.Coef {
		s.Coef[i] = make([]r3.Vec, nctlv)
	}
}

// Refit recomputes the control grid as the least-squares best fit of
// the current knot vectors and orders to the original data. When the
// control count equals the data count this is an interpolation.
func (s *Surface) Refit() error {
	nu, nv := s.NumData()
	nctlu, nctlv := s.NumCtl()
	if nu < nctlu || nv < nctlv {
		return fmt.Errorf("bspline: %dx%d data cannot determine %dx%d control points", nu, nv, nctlu, nctlv)
	}
	au := collocation(s.TU, s.KU, s.U, nctlu)
	av := collocation(s.TV, s.KV, s.V, nctlv)

	// Stage 1: fit the u direction for every data column. Right-hand
	// side is Nu x 3*Nv so one factorization serves all columns.
	bu := mat.NewDense(nu, 3*nv, nil)
	for i := 0; i < nu; i++ {
		for j := 0; j < nv; j++ {
			p := s.Data[i][j]
			bu.Set(i, 3*j, p.X)
			bu.Set(i, 3*j+1, p.Y)
			bu.Set(i, 3*j+2, p.Z)
		}
	}
	var qru mat.QR
	qru.Factorize(au)
	var c1 mat.Dense // nctlu x 3*nv
	if err := qru.SolveTo(&c1, false, bu); err != nil {
		return fmt.Errorf("bspline: u-direction fit: %w", err)
	}

	// Stage 2: fit the v direction across the intermediate control
	// rows.
	bv := mat.NewDense(nv, 3*nctlu, nil)
	for j := 0; j < nv; j++ {
		for i := 0; i < nctlu; i++ {
			bv.Set(j, 3*i, c1.At(i, 3*j))
			bv.Set(j, 3*i+1, c1.At(i, 3*j+1))
			bv.Set(j, 3*i+2, c1.At(i, 3*j+2))
		}
	}
	var qrv mat.QR
	qrv.Factorize(av)
	var c2 mat.Dense // nctlv x 3*nctlu
	if err := qrv.SolveTo(&c2, false, bv); err != nil {
		return fmt.Errorf("bspline: v-direction fit: %w", err)
	}
	for i := 0; i < nctlu; i++ {
		for j := 0; j < nctlv; j++ {
			s.Coef[i][j] = r3.Vec{
				X: c2.At(j, 3*i),
				Y: c2.At(j, 3*i+1),
				Z: c2.At(j, 3*i+2),
			}
		}
	}
	return nil
}

// collocation assembles the basis evaluation matrix of the given knot
// vector at the parameter values.
func collocation(t KnotVec, k int, params []float64, nCtl int) *mat.Dense {
	a := mat.NewDense(len(params), nCtl, nil)
	for r, u := range params {
		span, atEnd := t.Span(k, u)
		if atEnd {
			a.Set(r, nCtl-1, 1)
			continue
		}
		vals := t.Basis(k, span, u)
		for c, w := range vals {
			a.Set(r, span-(k-1)+c, w)
		}
	}
	return a
}

// Point evaluates the surface at (u,v).
func (s *Surface) Point(u, v float64) r3.Vec {
	spanU, endU := s.TU.Span(s.KU, u)
	spanV, endV := s.TV.Span(s.KV, v)
	bu := s.activeBasis(s.TU, s.KU, spanU, endU, u)
	bv := s.activeBasis(s.TV, s.KV, spanV, endV, v)
	var p r3.Vec
	for a, wu := range bu {
		if wu == 0 {
			continue
		}
		i := spanU - (s.KU - 1) + a
		for b, wv := range bv {
			if wv == 0 {
				continue
			}
			j := spanV - (s.KV - 1) + b
			p = r3.Add(p, r3.Scale(wu*wv, s.Coef[i][j]))
		}
	}
	return p
}

func (s *Surface) activeBasis(t KnotVec, k, span int, atEnd bool, u float64) []float64 {
	if atEnd {
		vals := make([]float64, k)
		vals[k-1] = 1
		return vals
	}
	return t.Basis(k, span, u)
}

// Derivs evaluates the first parametric derivatives of the surface at
// (u,v).
func (s *Surface) Derivs(u, v float64) (du, dv r3.Vec) {
	nctlu, nctlv := s.NumCtl()
	spanU, endU := s.TU.Span(s.KU, u)
	spanV, endV := s.TV.Span(s.KV, v)
	if endU {
		spanU = nctlu - 1
		if s.TU[spanU] >= s.TU[spanU+1] {
			// Walk back to the last nonempty interval so the
			// derivative recursion sees real knot differences.
			for spanU > s.KU-1 && s.TU[spanU] >= u {
				spanU--
			}
		}
	}
	if endV {
		spanV = nctlv - 1
		for spanV > s.KV-1 && s.TV[spanV] >= v {
			spanV--
		}
	}
	bu, dbu := s.TU.BasisDeriv(s.KU, spanU, u)
	bv, dbv := s.TV.BasisDeriv(s.KV, spanV, v)
	for a := 0; a < s.KU; a++ {
		i := spanU - (s.KU - 1) + a
		if i < 0 || i >= nctlu {
			continue
		}
		for b := 0; b < s.KV; b++ {
			j := spanV - (s.KV - 1) + b
			if j < 0 || j >= nctlv {
				continue
			}
			c := s.Coef[i][j]
			du = r3.Add(du, r3.Scale(dbu[a]*bv[b], c))
			dv = r3.Add(dv, r3.Scale(bu[a]*dbv[b], c))
		}
	}
	return du, dv
}

// Normal returns the unit surface normal at (u,v), or the zero vector
// where the parameterization is singular.
func (s *Surface) Normal(u, v float64) r3.Vec {
	du, dv := s.Derivs(u, v)
	n := r3.Cross(du, dv)
	norm := r3.Norm(n)
	if norm == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/norm, n)
}

// WeightWrtControl returns the derivative of the surface point at
// (u,v) with respect to control point (i,j): the product of the two
// basis functions, zero when (i,j) is inactive at that location.
func (s *Surface) WeightWrtControl(u, v float64, i, j int) float64 {
	nctlu, nctlv := s.NumCtl()
	spanU, endU := s.TU.Span(s.KU, u)
	spanV, endV := s.TV.Span(s.KV, v)
	var wu, wv float64
	if endU {
		if i == nctlu-1 {
			wu = 1
		}
	} else if i >= spanU-(s.KU-1) && i <= spanU {
		wu = s.TU.Basis(s.KU, spanU, u)[i-(spanU-(s.KU-1))]
	}
	if endV {
		if j == nctlv-1 {
			wv = 1
		}
	} else if j >= spanV-(s.KV-1) && j <= spanV {
		wv = s.TV.Basis(s.KV, spanV, v)[j-(spanV-(s.KV-1))]
	}
	return wu * wv
}

// ActiveControls returns the control indices and basis weights that
// influence the surface point at (u,v). At the right end of either
// knot domain only the last control point contributes.
func (s *Surface) ActiveControls(u, v float64) (iIdx, jIdx []int, wu, wv []float64) {
	nctlu, nctlv := s.NumCtl()
	spanU, endU := s.TU.Span(s.KU, u)
	spanV, endV := s.TV.Span(s.KV, v)
	if endU {
		iIdx, wu = []int{nctlu - 1}, []float64{1}
	} else {
		wu = s.TU.Basis(s.KU, spanU, u)
		for a := 0; a < s.KU; a++ {
			iIdx = append(iIdx, spanU-(s.KU-1)+a)
		}
	}
	if endV {
		jIdx, wv = []int{nctlv - 1}, []float64{1}
	} else {
		wv = s.TV.Basis(s.KV, spanV, v)
		for b := 0; b < s.KV; b++ {
			jIdx = append(jIdx, spanV-(s.KV-1)+b)
		}
	}
	return iIdx, jIdx, wu, wv
}

// CornerData returns the original-data corner point. Corners are
// numbered (0,0), (Nu-1,0), (0,Nv-1), (Nu-1,Nv-1).
func (s *Surface) CornerData(corner int) r3.Vec {
	nu, nv := s.NumData()
	switch corner {
	case 0:
		return s.Data[0][0]
	case 1:
		return s.Data[nu-1][0]
	case 2:
		return s.Data[0][nv-1]
	case 3:
		return s.Data[nu-1][nv-1]
	}
	panic(fmt.Sprintf("bspline: corner index %d out of range", corner))
}

// EdgeData returns the first, middle and last original data points of
// a boundary edge. Edges 0,1 run along u at the v=0 and v=max sides;
// edges 2,3 run along v at the u=0 and u=max sides.
func (s *Surface) EdgeData(edge int) (beg, mid, end r3.Vec) {
	nu, nv := s.NumData()
	switch edge {
	case 0:
		return s.Data[0][0], edgeMid(s.Data, 0, nu, nv), s.Data[nu-1][0]
	case 1:
		return s.Data[0][nv-1], edgeMid(s.Data, 1, nu, nv), s.Data[nu-1][nv-1]
	case 2:
		return s.Data[0][0], edgeMid(s.Data, 2, nu, nv), s.Data[0][nv-1]
	case 3:
		return s.Data[nu-1][0], edgeMid(s.Data, 3, nu, nv), s.Data[nu-1][nv-1]
	}
	panic(fmt.Sprintf("bspline: edge index %d out of range", edge))
}

func edgeMid(data [][]r3.Vec, edge, nu, nv int) r3.Vec {
	// Midpoint by averaging the two central samples when the count is
	// even.
	pick := func(n int) (int, int) {
		if n%2 == 1 {
			return n / 2, n / 2
		}
		return n/2 - 1, n / 2
	}
	switch edge {
	case 0:
		a, b := pick(nu)
		return r3.Scale(0.5, r3.Add(data[a][0], data[b][0]))
	case 1:
		a, b := pick(nu)
		return r3.Scale(0.5, r3.Add(data[a][nv-1], data[b][nv-1]))
	case 2:
		a, b := pick(nv)
		return r3.Scale(0.5, r3.Add(data[0][a], data[0][b]))
	default:
		a, b := pick(nv)
		return r3.Scale(0.5, r3.Add(data[nu-1][a], data[nu-1][b]))
	}
}

// Greville returns the Greville parameter pair of control point (i,j).
func (s *Surface) Greville(i, j int) (u, v float64) {
	return s.TU.Greville(s.KU, i), s.TV.Greville(s.KV, j)
}

// MaxDataError returns the largest distance between the original data
// points and the surface evaluated at their parameters.
func (s *Surface) MaxDataError() float64 {
	worst := 0.0
	for i, u := range s.U {
		for j, v := range s.V {
			worst = math.Max(worst, r3.Norm(r3.Sub(s.Point(u, v), s.Data[i][j])))
		}
	}
	return worst
}
