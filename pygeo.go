// Package pygeo stitches collections of tensor-product B-spline
// surface patches into a single watertight geometry with one shared
// set of control points, and layers a reference-axis parameterization
// on top of it so a handful of design variables (twist, scale,
// sweep, local bumps) can drive the whole shape. Derivatives of the
// geometry with respect to those variables are available through a
// complex-step evaluation of the same update pipeline.
package pygeo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo/bspline"
	"github.com/marcomangano/pygeo/internal/c3"
)

// StitchOptions control the tolerances used when matching patch
// boundaries.
type StitchOptions struct {
	// NodeTol is the distance under which two patch corners collapse
	// onto one node. Defaults to 1e-4.
	NodeTol float64
	// EdgeTol is the distance under which the midpoints of two
	// boundary curves with matching endpoints collapse onto one
	// edge. Defaults to 1e-4.
	EdgeTol float64
}

// Model is a stitched multi-patch geometry. The authoritative shape
// lives in Coef, a single flat buffer of control points shared by all
// patches; LIndex maps each patch control grid cell to its slot in
// the buffer and GIndex lists the cells carrying each slot.
//
// Coef is complex valued. Ordinary use only ever populates the real
// parts; the imaginary parts exist so the design-variable update can
// be differentiated by complex step.
type Model struct {
	Surfs []*bspline.Surface
	Topo  *Topology

	NCoef  int
	GIndex [][]Location
	LIndex [][][]int
	Coef   []c3.Vec

	// coef0 is the as-built buffer every update starts from, refreshed
	// whenever the underlying geometry changes (regather, refit).
	coef0 []c3.Vec

	axes     []*RefAxis
	axisCons []axisCon

	globalVars []*GlobalVar
	normalVars []*NormalVar
	localVars  []*LocalVar

	dCoefdx  *mat.Dense
	dPtdCoef *mat.Dense
}

// NewModel stitches the given patches into a single model. The
// patches are matched against each other by their data grids, so they
// must already agree geometrically along shared boundaries to within
// the tolerances.
func NewModel(surfs []*bspline.Surface, opts *StitchOptions) (*Model, error) {
	if len(surfs) == 0 {
		return nil, errors.New("pygeo: no surfaces")
	}
	nodeTol, edgeTol := 1e-4, 1e-4
	if opts != nil {
		if opts.NodeTol > 0 {
			nodeTol = opts.NodeTol
		}
		if opts.EdgeTol > 0 {
			edgeTol = opts.EdgeTol
		}
	}
	m := &Model{Surfs: surfs}
	m.Topo = stitch(m.patchGeoms(), nodeTol, edgeTol)
	if err := m.rebuildIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewModelWithTopology builds a model from patches and an externally
// supplied topology, typically one read back with ReadConnectivity.
func NewModelWithTopology(surfs []*bspline.Surface, topo *Topology) (*Model, error) {
	if topo.NPatch() != len(surfs) {
		return nil, fmt.Errorf("pygeo: topology covers %d patches, have %d surfaces", topo.NPatch(), len(surfs))
	}
	m := &Model{Surfs: surfs, Topo: topo}
	if err := m.rebuildIndex(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) patchGeoms() []patchGeom {
	geoms := make([]patchGeom, len(m.Surfs))
	for i, s := range m.Surfs {
		s := s
		nu, nv := s.NumCtl()
		geoms[i] = patchGeom{
			corner: s.CornerData,
			edge:   s.EdgeData,
			nCtlU:  nu,
			nCtlV:  nv,
		}
	}
	return geoms
}

// rebuildIndex renumbers the control points globally and regathers
// the coefficient buffer from the patches. It must be called after
// any change to the patch control grids.
func (m *Model) rebuildIndex() error {
	sizes := make([][2]int, len(m.Surfs))
	for i, s := range m.Surfs {
		nu, nv := s.NumCtl()
		sizes[i] = [2]int{nu, nv}
	}
	n, gIndex, lIndex, err := m.Topo.GlobalNumbering(sizes, nil)
	if err != nil {
		return err
	}
	m.NCoef, m.GIndex, m.LIndex = n, gIndex, lIndex
	m.gatherCoef()
	return nil
}

// gatherCoef fills the flat buffer from the patch control grids. The
// first location of each slot wins; stitching guarantees the others
// agree to within tolerance.
func (m *Model) gatherCoef() {
	m.Coef = make([]c3.Vec, m.NCoef)
	for gid, locs := range m.GIndex {
		loc := locs[0]
		m.Coef[gid] = c3.FromReal(m.Surfs[loc.Patch].Coef[loc.I][loc.J])
	}
	m.coef0 = append(m.coef0[:0], m.Coef...)
}

// scatterCoef writes the real part of the flat buffer back into every
// patch control grid cell carrying each slot.
func (m *Model) scatterCoef() {
	for gid, locs := range m.GIndex {
		p := m.Coef[gid].Real()
		for _, loc := range locs {
			m.Surfs[loc.Patch].Coef[loc.I][loc.J] = p
		}
	}
}

// Update applies all design variables to the coefficient buffer and
// scatters the result back to the patches.
func (m *Model) Update() {
	m.updateCoef(true)
	m.scatterCoef()
}

// updateCoef runs the design-variable chain against the complex
// coefficient buffer, starting from the as-built geometry every time.
// Global variables mutate the reference axes first, axis connections
// then re-anchor dependent axes, attached control points follow their
// axes, and finally (when local is true) the normal and local
// perturbations are added on top.
func (m *Model) updateCoef(local bool) {
	copy(m.Coef, m.coef0)
	for _, ax := range m.axes {
		ax.reset()
	}
	for _, gv := range m.globalVars {
		gv.apply(m.axes)
	}
	for _, con := range m.axisCons {
		m.applyAxisCon(con)
	}
	for _, ax := range m.axes {
		ax.refresh()
		m.applyAxis(ax)
	}
	if local {
		for _, nv := range m.normalVars {
			nv.apply(m)
		}
		for _, lv := range m.localVars {
			lv.apply(m)
		}
	}
}

// Axes returns the reference axes in the order they were added.
func (m *Model) Axes() []*RefAxis { return m.axes }

// CheckCoef returns the largest distance between the flat buffer and
// the patch control grids. A large value means Update has not been
// called since the buffer changed.
func (m *Model) CheckCoef() float64 {
	worst := 0.0
	for gid, locs := range m.GIndex {
		p := m.Coef[gid].Real()
		for _, loc := range locs {
			d := r3.Norm(r3.Sub(p, m.Surfs[loc.Patch].Coef[loc.I][loc.J]))
			if d > worst {
				worst = d
			}
		}
	}
	return worst
}

// SetContinuity sets the continuity requirement of every edge shared
// by two or more patches. Boundary-only and degenerate edges are left
// at C0.
func (m *Model) SetContinuity(c Continuity) {
	for ie, e := range m.Topo.Edges {
		if e.Degen {
			continue
		}
		if len(m.Topo.SurfacesOnEdge(ie)) > 1 {
			e.Cont = c
		}
	}
}
