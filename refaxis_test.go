package pygeo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo/bspline"
	"github.com/marcomangano/pygeo/internal/c3"
)

func midChordAxis() ([]r3.Vec, []r3.Vec) {
	x := []r3.Vec{{X: 0.5, Y: 0, Z: 0}, {X: 0.5, Y: 0.5, Z: 0}, {X: 0.5, Y: 1, Z: 0}}
	return x, make([]r3.Vec, 3)
}

func TestNewRefAxisValidation(t *testing.T) {
	if _, err := NewRefAxis([]r3.Vec{{}}, []r3.Vec{{}}); err == nil {
		t.Error("single station accepted")
	}
	if _, err := NewRefAxis([]r3.Vec{{}, {X: 1}}, []r3.Vec{{}}); err == nil {
		t.Error("mismatched rotation count accepted")
	}
}

func TestRefAxisProject(t *testing.T) {
	ax, err := NewRefAxis([]r3.Vec{{}, {Y: 2}}, make([]r3.Vec, 2))
	if err != nil {
		t.Fatal(err)
	}
	s, d := ax.Project(r3.Vec{X: 0.3, Y: 1})
	if math.Abs(s-0.5) > 1e-12 {
		t.Errorf("s = %v, want 0.5", s)
	}
	if r3.Norm(r3.Sub(d, r3.Vec{X: 0.3})) > 1e-12 {
		t.Errorf("offset = %v, want (0.3,0,0)", d)
	}
}

func TestRotationRoundTrip(t *testing.T) {
	ax, err := NewRefAxis(
		[]r3.Vec{{}, {Y: 1}},
		[]r3.Vec{{X: 10, Y: -20, Z: 30}, {X: 10, Y: -20, Z: 30}},
	)
	if err != nil {
		t.Fatal(err)
	}
	v := c3.Vec{X: 1, Y: 2, Z: 3}
	back := ax.RotL2G(0.5).MulVec(ax.RotG2L(0.5).MulVec(v))
	if d := c3.Sub(back, v).Real(); r3.Norm(d) > 1e-12 {
		t.Errorf("round trip off by %v", d)
	}
}

func TestResampleStations(t *testing.T) {
	x := []r3.Vec{{}, {Y: 1}, {Y: 2}}
	rot := []r3.Vec{{X: 0}, {X: 10}, {X: 20}}
	xo, ro, err := ResampleStations(x, rot, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(xo) != 5 || len(ro) != 5 {
		t.Fatalf("got %d stations, want 5", len(xo))
	}
	for i := range xo {
		s := float64(i) / 4
		if r3.Norm(r3.Sub(xo[i], r3.Vec{Y: 2 * s})) > 1e-12 {
			t.Errorf("station %d at %v, want (0,%v,0)", i, xo[i], 2*s)
		}
		if math.Abs(ro[i].X-20*s) > 1e-12 {
			t.Errorf("station %d rotation %v, want %v", i, ro[i].X, 20*s)
		}
	}
	if _, _, err := ResampleStations(x, rot, 1); err == nil {
		t.Error("single station accepted")
	}
}

func TestGlobalTranslationFollowsAxis(t *testing.T) {
	m := twoPatchModel(t)
	x := []r3.Vec{{X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}}
	axis, err := m.AddRefAxis([]int{0, 1}, x, make([]r3.Vec, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	before := make([]r3.Vec, m.NCoef)
	for gid := range m.Coef {
		before[gid] = m.Coef[gid].Real()
	}

	const dz = 0.75
	gv, err := m.AddGlobalVar("shift", []float64{0}, nil, nil,
		func(value []complex128, axes []*RefAxis) {
			axes[axis].Base = c3.Add(axes[axis].Base, c3.Vec{Z: value[0]})
		})
	if err != nil {
		t.Fatal(err)
	}
	gv.Value[0] = dz
	m.Update()

	for gid := range m.Coef {
		got := m.Coef[gid].Real()
		want := r3.Add(before[gid], r3.Vec{Z: dz})
		if r3.Norm(r3.Sub(got, want)) > 1e-10 {
			t.Fatalf("coef %d moved to %v, want %v", gid, got, want)
		}
	}
	if c := m.CheckCoef(); c > 1e-12 {
		t.Errorf("patches not updated, off by %v", c)
	}

	// Zeroing the variable must restore the original shape: updates
	// always start from the as-built axis.
	gv.Value[0] = 0
	m.Update()
	for gid := range m.Coef {
		if r3.Norm(r3.Sub(m.Coef[gid].Real(), before[gid])) > 1e-10 {
			t.Fatal("shape did not return after zeroing the variable")
		}
	}
}

func TestAxisScale(t *testing.T) {
	g := flatGrid(7, 7, 0, 1, 0, 1)
	m, err := NewModel([]*bspline.Surface{mustSurface(t, g)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	x, rot := midChordAxis()
	axis, err := m.AddRefAxis([]int{0}, x, rot, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.AddGlobalVar("scale", []float64{2}, nil, nil,
		func(value []complex128, axes []*RefAxis) {
			for i := range axes[axis].Scale {
				axes[axis].Scale[i] = value[0]
			}
		})
	if err != nil {
		t.Fatal(err)
	}
	m.Update()
	// Chordwise extent doubles about the axis at x=0.5.
	p := m.Surfs[0].Coef[0][3]
	if math.Abs(p.X-(-0.5)) > 1e-9 {
		t.Errorf("leading control x = %v, want -0.5", p.X)
	}
}

func TestAddRefAxisConFullRequiresTwoStations(t *testing.T) {
	m := twoPatchModel(t)
	x, rot := midChordAxis()
	parent, err := m.AddRefAxis([]int{0}, x, rot, nil)
	if err != nil {
		t.Fatal(err)
	}
	child3, err := m.AddRefAxis([]int{1}, x, rot, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddRefAxisCon(parent, child3, ConFull); err == nil {
		t.Fatal("full connection accepted a 3-station child")
	}
}

func TestAxisConChildFollowsParent(t *testing.T) {
	m := twoPatchModel(t)
	xp := []r3.Vec{{X: 0.5, Y: 0, Z: 0}, {X: 0.5, Y: 1, Z: 0}}
	xc := []r3.Vec{{X: 1.5, Y: 0, Z: 0}, {X: 1.5, Y: 1, Z: 0}}
	parent, err := m.AddRefAxis([]int{0}, xp, make([]r3.Vec, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	child, err := m.AddRefAxis([]int{1}, xc, make([]r3.Vec, 2), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AddRefAxisCon(parent, child, ConBase); err != nil {
		t.Fatal(err)
	}

	before := m.Coef[m.LIndex[1][3][3]].Real()
	const dz = 0.5
	_, err = m.AddGlobalVar("lift", []float64{dz}, nil, nil,
		func(value []complex128, axes []*RefAxis) {
			axes[parent].Base = c3.Add(axes[parent].Base, c3.Vec{Z: value[0]})
		})
	if err != nil {
		t.Fatal(err)
	}
	m.Update()
	// The child rides the parent, so patch 1 moves too.
	got := m.Coef[m.LIndex[1][3][3]].Real()
	if math.Abs(got.Z-before.Z-dz) > 1e-10 {
		t.Errorf("child patch moved by %v, want %v", got.Z-before.Z, dz)
	}
}
