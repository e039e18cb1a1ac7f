// Package lsq provides the linear least-squares backends used by the
// surface fitter. The fitter assembles a sparse Jacobian in triplet
// form and hands it, together with a right-hand side, to a Solver
// chosen at call time; dense direct and iterative sparse strategies
// are interchangeable.
package lsq

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Triplet is a sparse matrix assembler. Repeated Add calls to the same
// cell accumulate.
type Triplet struct {
	rows, cols int
	ri, ci     []int
	val        []float64
}

// NewTriplet returns an empty r x c triplet assembler.
func NewTriplet(r, c int) *Triplet {
	if r <= 0 || c <= 0 {
		panic("lsq: nonpositive triplet dimension")
	}
	return &Triplet{rows: r, cols: c}
}

// Dims returns the matrix dimensions.
func (t *Triplet) Dims() (r, c int) { return t.rows, t.cols }

// Add accumulates v at (i,j).
func (t *Triplet) Add(i, j int, v float64) {
	if i < 0 || i >= t.rows || j < 0 || j >= t.cols {
		panic(fmt.Sprintf("lsq: entry (%d,%d) outside %dx%d matrix", i, j, t.rows, t.cols))
	}
	t.ri = append(t.ri, i)
	t.ci = append(t.ci, j)
	t.val = append(t.val, v)
}

// Dense expands the triplets into a dense matrix.
func (t *Triplet) Dense() *mat.Dense {
	d := mat.NewDense(t.rows, t.cols, nil)
	for k, v := range t.val {
		d.Set(t.ri[k], t.ci[k], d.At(t.ri[k], t.ci[k])+v)
	}
	return d
}

// CSR compresses the triplets into row-major sparse form, merging
// duplicate entries.
func (t *Triplet) CSR() *CSR {
	order := make([]int, len(t.val))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if t.ri[ka] != t.ri[kb] {
			return t.ri[ka] < t.ri[kb]
		}
		return t.ci[ka] < t.ci[kb]
	})
	c := &CSR{rows: t.rows, cols: t.cols, rowPtr: make([]int, t.rows+1)}
	lastR, lastC := -1, -1
	for _, k := range order {
		r, col, v := t.ri[k], t.ci[k], t.val[k]
		if r == lastR && col == lastC {
			c.val[len(c.val)-1] += v
			continue
		}
		c.colIdx = append(c.colIdx, col)
		c.val = append(c.val, v)
		lastR, lastC = r, col
		c.rowPtr[r+1]++
	}
	for i := 1; i <= t.rows; i++ {
		c.rowPtr[i] += c.rowPtr[i-1]
	}
	return c
}

// CSR is a compressed sparse row matrix.
type CSR struct {
	rows, cols int
	rowPtr     []int
	colIdx     []int
	val        []float64
}

// Dims returns the matrix dimensions.
func (c *CSR) Dims() (r, cols int) { return c.rows, c.cols }

// MulVec stores A·x into dst.
func (c *CSR) MulVec(dst, x []float64) {
	for i := 0; i < c.rows; i++ {
		sum := 0.0
		for k := c.rowPtr[i]; k < c.rowPtr[i+1]; k++ {
			sum += c.val[k] * x[c.colIdx[k]]
		}
		dst[i] = sum
	}
}

// MulTransVec stores Aᵀ·y into dst.
func (c *CSR) MulTransVec(dst, y []float64) {
	for j := range dst {
		dst[j] = 0
	}
	for i := 0; i < c.rows; i++ {
		yi := y[i]
		if yi == 0 {
			continue
		}
		for k := c.rowPtr[i]; k < c.rowPtr[i+1]; k++ {
			dst[c.colIdx[k]] += c.val[k] * yi
		}
	}
}

// Solver solves the linear least-squares problem min ‖A·x − b‖₂ for
// the assembled matrix A.
type Solver interface {
	Solve(a *Triplet, b []float64) ([]float64, error)
}

// Dense is a direct least-squares solver backed by a QR factorization.
// It requires the matrix to have full column rank.
type Dense struct{}

// Solve implements Solver.
func (Dense) Solve(a *Triplet, b []float64) ([]float64, error) {
	r, c := a.Dims()
	if len(b) != r {
		return nil, fmt.Errorf("lsq: rhs length %d, want %d", len(b), r)
	}
	var qr mat.QR
	qr.Factorize(a.Dense())
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, mat.NewVecDense(r, b)); err != nil {
		return nil, fmt.Errorf("lsq: dense solve: %w", err)
	}
	out := make([]float64, c)
	copy(out, x.RawVector().Data)
	return out, nil
}

// CGNR is an iterative sparse least-squares solver: conjugate
// gradients applied to the normal equations AᵀA·x = Aᵀb. It tolerates
// rank deficiency (unconstrained components stay zero), which the
// fitter relies on when continuity constraints leave idle columns.
type CGNR struct {
	// MaxIter bounds the iteration count; 0 means 250, matching the
	// bound the fitter has historically run with.
	MaxIter int
	// Tol is the relative residual tolerance on the normal equations;
	// 0 means 1e-15.
	Tol float64
}

// Solve implements Solver.
func (s CGNR) Solve(a *Triplet, b []float64) ([]float64, error) {
	rows, cols := a.Dims()
	if len(b) != rows {
		return nil, fmt.Errorf("lsq: rhs length %d, want %d", len(b), rows)
	}
	maxIter := s.MaxIter
	if maxIter == 0 {
		maxIter = 250
	}
	tol := s.Tol
	if tol == 0 {
		tol = 1e-15
	}
	c := a.CSR()

	x := make([]float64, cols)
	r := make([]float64, rows)
	copy(r, b) // r = b - A·x with x = 0
	z := make([]float64, cols)
	c.MulTransVec(z, r)
	p := make([]float64, cols)
	copy(p, z)
	w := make([]float64, rows)

	znorm2 := dot(z, z)
	stop := tol * tol * znorm2
	if znorm2 == 0 {
		return x, nil
	}
	for iter := 0; iter < maxIter; iter++ {
		c.MulVec(w, p)
		wn2 := dot(w, w)
		if wn2 == 0 {
			break
		}
		alpha := znorm2 / wn2
		for i := range x {
			x[i] += alpha * p[i]
		}
		for i := range r {
			r[i] -= alpha * w[i]
		}
		c.MulTransVec(z, r)
		zn2 := dot(z, z)
		if zn2 <= stop || math.IsNaN(zn2) {
			break
		}
		beta := zn2 / znorm2
		for i := range p {
			p[i] = z[i] + beta*p[i]
		}
		znorm2 = zn2
	}
	if anyNaN(x) {
		return nil, errors.New("lsq: CGNR diverged")
	}
	return x, nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func anyNaN(a []float64) bool {
	for _, v := range a {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
