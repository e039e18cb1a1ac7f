package pygeo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo/internal/c3"
)

// GlobalFn mutates the reference axes from the current variable
// values. Values are complex so the same function serves both the
// ordinary update and the complex-step derivative; implementations
// must stay complex-differentiable (no abs, max or branching on the
// values).
type GlobalFn func(value []complex128, axes []*RefAxis)

// GlobalVar is a design variable group driving the reference axes
// through a user function. Typical examples are twist distributions,
// span stretches or sweep angles.
type GlobalVar struct {
	Name         string
	Value        []complex128
	Lower, Upper []float64
	// UseIt excludes the group from derivative computation when
	// false; it is still applied on update.
	UseIt bool

	fn GlobalFn
}

// NVal returns the number of scalars in the group.
func (gv *GlobalVar) NVal() int { return len(gv.Value) }

func (gv *GlobalVar) apply(axes []*RefAxis) { gv.fn(gv.Value, axes) }

// NormalVar is a design variable group displacing selected control
// points of one patch along the local surface normal, one scalar per
// point. Values start at zero.
type NormalVar struct {
	Name         string
	Value        []complex128
	Lower, Upper []float64
	Surf         int

	coefList []int
	cells    [][2]int // control cell per coef, on Surf's grid
}

// NVal returns the number of scalars in the group.
func (nv *NormalVar) NVal() int { return len(nv.Value) }

func (nv *NormalVar) apply(m *Model) {
	normals := m.controlNormals(nv.Surf, nv.cells)
	for i, gid := range nv.coefList {
		m.Coef[gid] = c3.Add(m.Coef[gid], c3.Scale(nv.Value[i], c3.FromReal(normals[i])))
	}
}

// removeCoef drops the listed global control points from the group.
func (nv *NormalVar) removeCoef(rm map[int]bool) {
	kept := 0
	for i, gid := range nv.coefList {
		if rm[gid] {
			continue
		}
		nv.coefList[kept] = gid
		nv.cells[kept] = nv.cells[i]
		nv.Value[kept] = nv.Value[i]
		kept++
	}
	nv.coefList = nv.coefList[:kept]
	nv.cells = nv.cells[:kept]
	nv.Value = nv.Value[:kept]
}

// LocalVar is a design variable group displacing selected control
// points of one patch by a free 3-vector each, so Value holds three
// scalars per point. Values start at zero.
type LocalVar struct {
	Name         string
	Value        []complex128
	Lower, Upper []float64
	Surf         int

	coefList []int
}

// NVal returns the number of scalars in the group.
func (lv *LocalVar) NVal() int { return 3 * len(lv.coefList) }

func (lv *LocalVar) apply(m *Model) {
	for i, gid := range lv.coefList {
		d := c3.Vec{X: lv.Value[3*i], Y: lv.Value[3*i+1], Z: lv.Value[3*i+2]}
		m.Coef[gid] = c3.Add(m.Coef[gid], d)
	}
}

func (lv *LocalVar) removeCoef(rm map[int]bool) {
	kept := 0
	for i, gid := range lv.coefList {
		if rm[gid] {
			continue
		}
		lv.coefList[kept] = gid
		copy(lv.Value[3*kept:3*kept+3], lv.Value[3*i:3*i+3])
		kept++
	}
	lv.coefList = lv.coefList[:kept]
	lv.Value = lv.Value[:3*kept]
}

// AddGlobalVar registers a global design variable group. values seeds
// the real parts; fn is called on every update with the current
// values and the reference axes.
func (m *Model) AddGlobalVar(name string, values []float64, lower, upper []float64, fn GlobalFn) (*GlobalVar, error) {
	if fn == nil {
		return nil, errors.New("pygeo: global variable needs a function")
	}
	if err := m.checkDVName(name); err != nil {
		return nil, err
	}
	gv := &GlobalVar{
		Name:  name,
		Value: make([]complex128, len(values)),
		Lower: lower, Upper: upper,
		UseIt: true,
		fn:    fn,
	}
	for i, v := range values {
		gv.Value[i] = complex(v, 0)
	}
	m.globalVars = append(m.globalVars, gv)
	return gv, nil
}

// AddNormalVar registers a normal design variable group on one patch.
// sel optionally restricts it to specific control cells of that patch
// (nil selects all). Control points already claimed by another normal
// or local group are skipped, unless overwrite is set in which case
// they are evicted from their current groups.
func (m *Model) AddNormalVar(name string, lower, upper []float64, surf int, sel [][2]int, overwrite bool) (*NormalVar, error) {
	if err := m.checkDVName(name); err != nil {
		return nil, err
	}
	coefList, cells, err := m.claimCoefs(surf, sel, overwrite)
	if err != nil {
		return nil, err
	}
	nv := &NormalVar{
		Name:  name,
		Value: make([]complex128, len(coefList)),
		Lower: lower, Upper: upper,
		Surf:     surf,
		coefList: coefList,
		cells:    cells,
	}
	m.normalVars = append(m.normalVars, nv)
	return nv, nil
}

// AddLocalVar registers a local design variable group on one patch,
// with the same selection and overwrite semantics as AddNormalVar.
func (m *Model) AddLocalVar(name string, lower, upper []float64, surf int, sel [][2]int, overwrite bool) (*LocalVar, error) {
	if err := m.checkDVName(name); err != nil {
		return nil, err
	}
	coefList, _, err := m.claimCoefs(surf, sel, overwrite)
	if err != nil {
		return nil, err
	}
	lv := &LocalVar{
		Name:  name,
		Value: make([]complex128, 3*len(coefList)),
		Lower: lower, Upper: upper,
		Surf:     surf,
		coefList: coefList,
	}
	m.localVars = append(m.localVars, lv)
	return lv, nil
}

func (m *Model) checkDVName(name string) error {
	for _, gv := range m.globalVars {
		if gv.Name == name {
			return fmt.Errorf("pygeo: design variable %q already exists", name)
		}
	}
	for _, nv := range m.normalVars {
		if nv.Name == name {
			return fmt.Errorf("pygeo: design variable %q already exists", name)
		}
	}
	for _, lv := range m.localVars {
		if lv.Name == name {
			return fmt.Errorf("pygeo: design variable %q already exists", name)
		}
	}
	return nil
}

// claimCoefs resolves the control point selection of a normal or
// local group and applies the exclusivity rule: a control point
// belongs to at most one such group.
func (m *Model) claimCoefs(surf int, sel [][2]int, overwrite bool) (coefList []int, cells [][2]int, err error) {
	if surf < 0 || surf >= len(m.Surfs) {
		return nil, nil, fmt.Errorf("pygeo: surface id %d out of range", surf)
	}
	nctlu, nctlv := m.Surfs[surf].NumCtl()
	if sel == nil {
		for i := 0; i < nctlu; i++ {
			for j := 0; j < nctlv; j++ {
				sel = append(sel, [2]int{i, j})
			}
		}
	}
	seen := map[int]bool{}
	for _, c := range sel {
		if c[0] < 0 || c[0] >= nctlu || c[1] < 0 || c[1] >= nctlv {
			return nil, nil, fmt.Errorf("pygeo: control cell (%d,%d) outside %dx%d grid", c[0], c[1], nctlu, nctlv)
		}
		gid := m.LIndex[surf][c[0]][c[1]]
		if seen[gid] {
			continue
		}
		seen[gid] = true
		coefList = append(coefList, gid)
		cells = append(cells, c)
	}

	claimed := map[int]bool{}
	for _, nv := range m.normalVars {
		for _, gid := range nv.coefList {
			claimed[gid] = true
		}
	}
	for _, lv := range m.localVars {
		for _, gid := range lv.coefList {
			claimed[gid] = true
		}
	}
	if overwrite {
		rm := map[int]bool{}
		for _, gid := range coefList {
			rm[gid] = true
		}
		for _, nv := range m.normalVars {
			nv.removeCoef(rm)
		}
		for _, lv := range m.localVars {
			lv.removeCoef(rm)
		}
		return coefList, cells, nil
	}
	kept := 0
	for i, gid := range coefList {
		if claimed[gid] {
			continue
		}
		coefList[kept] = gid
		cells[kept] = cells[i]
		kept++
	}
	return coefList[:kept], cells[:kept], nil
}

// controlNormals evaluates the unit surface normal at the Greville
// parameters of each listed control cell, using the current real
// coefficient buffer rather than whatever is scattered on the patch.
func (m *Model) controlNormals(s int, cells [][2]int) []r3.Vec {
	surf := *m.Surfs[s]
	nctlu, nctlv := m.Surfs[s].NumCtl()
	grid := make([][]r3.Vec, nctlu)
	for i := range grid {
		grid[i] = make([]r3.Vec, nctlv)
		for j := range grid[i] {
			grid[i][j] = m.Coef[m.LIndex[s][i][j]].Real()
		}
	}
	surf.Coef = grid
	out := make([]r3.Vec, len(cells))
	for k, c := range cells {
		u, v := surf.Greville(c[0], c[1])
		out[k] = surf.Normal(u, v)
	}
	return out
}
