package pygeo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestDesignVarNamesAreUnique(t *testing.T) {
	m := twoPatchModel(t)
	if _, err := m.AddGlobalVar("span", []float64{0}, nil, nil,
		func([]complex128, []*RefAxis) {}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddNormalVar("span", nil, nil, 0, nil, false); err == nil {
		t.Error("duplicate name accepted across variable kinds")
	}
	if _, err := m.AddLocalVar("span", nil, nil, 0, nil, false); err == nil {
		t.Error("duplicate name accepted across variable kinds")
	}
}

func TestLocalVarDisplacesPoint(t *testing.T) {
	m := twoPatchModel(t)
	lv, err := m.AddLocalVar("bump", nil, nil, 0, [][2]int{{2, 3}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if lv.NVal() != 3 {
		t.Fatalf("NVal = %d, want 3", lv.NVal())
	}
	gid := m.LIndex[0][2][3]
	before := m.Coef[gid].Real()
	lv.Value[0], lv.Value[1], lv.Value[2] = 0.1, -0.2, 0.3
	m.Update()
	got := m.Coef[gid].Real()
	want := r3.Add(before, r3.Vec{X: 0.1, Y: -0.2, Z: 0.3})
	if r3.Norm(r3.Sub(got, want)) > 1e-12 {
		t.Errorf("coef moved to %v, want %v", got, want)
	}
	if m.Surfs[0].Coef[2][3] != got {
		t.Error("patch grid not updated")
	}
}

func TestNormalVarDisplacesAlongNormal(t *testing.T) {
	m := twoPatchModel(t)
	nv, err := m.AddNormalVar("pimple", nil, nil, 0, [][2]int{{3, 3}}, false)
	if err != nil {
		t.Fatal(err)
	}
	// The data lies on the plane z = x/2 - y/4.
	n := r3.Unit(r3.Vec{X: -0.5, Y: 0.25, Z: 1})
	gid := m.LIndex[0][3][3]
	before := m.Coef[gid].Real()
	const v = 0.05
	nv.Value[0] = v
	m.Update()
	got := m.Coef[gid].Real()
	want := r3.Add(before, r3.Scale(v, n))
	if d := r3.Norm(r3.Sub(got, want)); d > 1e-9 {
		t.Errorf("coef off normal by %v", d)
	}
}

func TestClaimedPointsAreSkipped(t *testing.T) {
	m := twoPatchModel(t)
	first, err := m.AddLocalVar("all0", nil, nil, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	nctlu, nctlv := m.Surfs[0].NumCtl()
	if got := first.NVal(); got != 3*nctlu*nctlv {
		t.Fatalf("first group claimed %d scalars, want %d", got, 3*nctlu*nctlv)
	}
	// Patch 1 shares its u=0 boundary with patch 0, so that row of
	// control points is already taken.
	second, err := m.AddLocalVar("all1", nil, nil, 1, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if got := second.NVal(); got != 3*(nctlu-1)*nctlv {
		t.Errorf("second group claimed %d scalars, want %d", got, 3*(nctlu-1)*nctlv)
	}
}

func TestOverwriteEvictsFromOlderGroups(t *testing.T) {
	m := twoPatchModel(t)
	old, err := m.AddLocalVar("all", nil, nil, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	before := old.NVal()
	nv, err := m.AddNormalVar("patch", nil, nil, 0, [][2]int{{1, 1}, {2, 2}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if nv.NVal() != 2 {
		t.Fatalf("overwriting group claimed %d points, want 2", nv.NVal())
	}
	if old.NVal() != before-6 {
		t.Errorf("older group has %d scalars, want %d", old.NVal(), before-6)
	}
	for _, gid := range nv.coefList {
		for _, kept := range old.coefList {
			if kept == gid {
				t.Fatalf("control point %d still in both groups", gid)
			}
		}
	}
}

func TestSelectionOutsideGrid(t *testing.T) {
	m := twoPatchModel(t)
	if _, err := m.AddLocalVar("bad", nil, nil, 0, [][2]int{{99, 0}}, false); err == nil {
		t.Error("out of range cell accepted")
	}
	if _, err := m.AddNormalVar("worse", nil, nil, 7, nil, false); err == nil {
		t.Error("out of range surface accepted")
	}
}

func TestNormalVarUsesCurrentShape(t *testing.T) {
	// Rotate the patch with a reference axis first; the normal group
	// must then displace along the rotated normal, not the as-built
	// one.
	m := twoPatchModel(t)
	x := []r3.Vec{{X: 0.5, Y: 0, Z: 0}, {X: 0.5, Y: 1, Z: 0}}
	axis, err := m.AddRefAxis([]int{0, 1}, x, make([]r3.Vec, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.AddGlobalVar("roll", []float64{30}, nil, nil,
		func(value []complex128, axes []*RefAxis) {
			for i := range axes[axis].Rot {
				axes[axis].Rot[i].Y = value[0]
			}
		})
	if err != nil {
		t.Fatal(err)
	}
	m.Update()

	nv, err := m.AddNormalVar("pimple", nil, nil, 0, [][2]int{{3, 3}}, false)
	if err != nil {
		t.Fatal(err)
	}
	want := m.controlNormals(0, nv.cells)[0]
	asBuilt := r3.Unit(r3.Vec{X: -0.5, Y: 0.25, Z: 1})
	if r3.Norm(r3.Sub(want, asBuilt)) < 1e-3 {
		t.Fatal("rotation did not change the normal, test is vacuous")
	}

	gid := m.LIndex[0][3][3]
	before := m.Coef[gid].Real()
	const v = 0.05
	nv.Value[0] = v
	m.Update()
	moved := r3.Sub(m.Coef[gid].Real(), before)
	if math.Abs(r3.Norm(moved)-v) > 1e-10 {
		t.Errorf("displacement magnitude %v, want %v", r3.Norm(moved), v)
	}
	if d := r3.Norm(r3.Sub(moved, r3.Scale(v, want))); d > 1e-10 {
		t.Errorf("displacement %v, want along %v", moved, want)
	}
}
