// Package attach locates arbitrary points on a stitched multi-patch
// geometry, returning for each query the nearest patch and its (u,v)
// parameters. The typical use is tying an aerodynamic or structural
// mesh to the geometry once, then re-evaluating the tied locations as
// the shape changes.
package attach

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo"
)

// Options configure Attach.
type Options struct {
	// Nu, Nv set the seeding sample grid per patch. Default 20x20.
	Nu, Nv int
	// Iterations bounds the parametric Newton refinement per point.
	// Default 25.
	Iterations int
	// Patches restricts the search to a patch subset. Nil searches
	// all patches.
	Patches []int
}

// Attachment ties one query point to the geometry.
type Attachment struct {
	Patch int
	U, V  float64
	Dist  float64
}

type sample struct {
	p     r3.Vec
	patch int
	u, v  float64
}

func (s *sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*sample)
	switch d {
	case 0:
		return s.p.X - q.p.X
	case 1:
		return s.p.Y - q.p.Y
	case 2:
		return s.p.Z - q.p.Z
	}
	panic("unreachable")
}

func (s *sample) Dims() int { return 3 }

func (s *sample) Distance(c kdtree.Comparable) float64 {
	q := c.(*sample)
	return r3.Norm2(r3.Sub(s.p, q.p))
}

type samples []sample

func (ss samples) Index(i int) kdtree.Comparable { return &ss[i] }
func (ss samples) Len() int                      { return len(ss) }
func (ss samples) Pivot(d kdtree.Dim) int {
	p := plane{dim: int(d), samples: ss}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}
func (ss samples) Slice(start, end int) kdtree.Interface { return ss[start:end] }

type plane struct {
	dim int
	samples
}

func (p plane) Less(i, j int) bool {
	return p.samples[i].Compare(&p.samples[j], kdtree.Dim(p.dim)) < 0
}
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.samples = p.samples[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.samples[i], p.samples[j] = p.samples[j], p.samples[i]
}

// Attach finds the nearest (patch, u, v) location for every query
// point. Each point is seeded from a k-d tree of surface samples and
// refined with a damped parametric Newton iteration clamped to the
// patch domain.
func Attach(m *pygeo.Model, points []r3.Vec, opts Options) []Attachment {
	nu, nv := opts.Nu, opts.Nv
	if nu <= 1 {
		nu = 20
	}
	if nv <= 1 {
		nv = 20
	}
	iters := opts.Iterations
	if iters <= 0 {
		iters = 25
	}
	patches := opts.Patches
	if patches == nil {
		patches = make([]int, len(m.Surfs))
		for i := range patches {
			patches[i] = i
		}
	}

	ss := make(samples, 0, len(patches)*nu*nv)
	for _, p := range patches {
		surf := m.Surfs[p]
		for j := 0; j < nv; j++ {
			v := float64(j) / float64(nv-1)
			for i := 0; i < nu; i++ {
				u := float64(i) / float64(nu-1)
				ss = append(ss, sample{p: surf.Point(u, v), patch: p, u: u, v: v})
			}
		}
	}
	tree := kdtree.New(ss, true)

	out := make([]Attachment, len(points))
	for k, pt := range points {
		nearest, _ := tree.Nearest(&sample{p: pt})
		seed := nearest.(*sample)
		u, v := refine(m, seed.patch, seed.u, seed.v, pt, iters)
		out[k] = Attachment{
			Patch: seed.patch,
			U:     u,
			V:     v,
			Dist:  r3.Norm(r3.Sub(m.Surfs[seed.patch].Point(u, v), pt)),
		}
	}
	return out
}

// refine runs a Gauss-Newton iteration on the squared distance from
// the surface to the point, clamped to the unit parameter square.
func refine(m *pygeo.Model, patch int, u, v float64, pt r3.Vec, iters int) (float64, float64) {
	surf := m.Surfs[patch]
	for it := 0; it < iters; it++ {
		r := r3.Sub(surf.Point(u, v), pt)
		du, dv := surf.Derivs(u, v)
		// Normal equations of the 3x2 Jacobian.
		a11 := r3.Dot(du, du)
		a12 := r3.Dot(du, dv)
		a22 := r3.Dot(dv, dv)
		b1 := -r3.Dot(du, r)
		b2 := -r3.Dot(dv, r)
		det := a11*a22 - a12*a12
		if det == 0 {
			break
		}
		su := (b1*a22 - b2*a12) / det
		sv := (a11*b2 - a12*b1) / det
		u = clamp01(u + su)
		v = clamp01(v + sv)
		if math.Abs(su) < 1e-12 && math.Abs(sv) < 1e-12 {
			break
		}
	}
	return u, v
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
