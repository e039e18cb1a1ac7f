package pygeo

import (
	"math"
	"testing"

	"github.com/marcomangano/pygeo/bspline"
)

func TestBlendKnotVectors(t *testing.T) {
	a := []float64{0, 0, 0, 0.2, 0.6, 1, 1, 1}
	b := []float64{0, 0, 0, 0.4, 0.8, 1, 1, 1}
	got := blendKnotVectors([][]float64{a, b}, false)
	want := []float64{0, 0, 0, 0.3, 0.7, 1, 1, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-14 {
			t.Fatalf("blend[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBlendKnotVectorsSymmetric(t *testing.T) {
	a := []float64{0, 0, 0, 0.2, 0.5, 1, 1, 1}
	got := blendKnotVectors([][]float64{a}, true)
	// Symmetrized blends are invariant under reversal.
	for i := range got {
		rev := 1 - got[len(got)-1-i]
		if math.Abs(got[i]-rev) > 1e-14 {
			t.Fatalf("blend not symmetric at %d: %v vs %v", i, got[i], rev)
		}
	}
}

func TestReverseKnots(t *testing.T) {
	kv := []float64{0, 0, 0.25, 0.5, 1, 1}
	got := reverseKnots(kv)
	want := []float64{0, 0, 0.5, 0.75, 1, 1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-14 {
			t.Fatalf("reverse[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPropagateKnotVectors(t *testing.T) {
	a := mustSurface(t, flatGrid(9, 7, 0, 1, 0, 1))
	b := mustSurface(t, flatGrid(7, 7, 1, 2, 0, 1))
	m, err := NewModel([]*bspline.Surface{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Coarsen the spanwise group shared by both patches.
	shared := m.Topo.EdgeLink[0][3]
	dg := m.Topo.Edges[shared].DG
	for _, e := range m.Topo.Edges {
		if e.DG == dg {
			e.NCtl = 5
		}
	}
	if err := m.PropagateKnotVectors(); err != nil {
		t.Fatal(err)
	}
	_, nv0 := m.Surfs[0].NumCtl()
	_, nv1 := m.Surfs[1].NumCtl()
	if nv0 != 5 || nv1 != 5 {
		t.Fatalf("control counts %d,%d, want 5,5", nv0, nv1)
	}
	// Both patches must end up with the same spanwise knot vector.
	if len(a.TV) != len(b.TV) {
		t.Fatal("knot vector lengths differ")
	}
	for i := range a.TV {
		if math.Abs(a.TV[i]-b.TV[i]) > 1e-14 {
			t.Fatalf("TV[%d]: %v vs %v", i, a.TV[i], b.TV[i])
		}
	}
	// Flat data stays exactly representable.
	if e := a.MaxDataError(); e > 1e-9 {
		t.Errorf("patch 0 refit error %v", e)
	}
	if e := b.MaxDataError(); e > 1e-9 {
		t.Errorf("patch 1 refit error %v", e)
	}
	if c := m.CheckCoef(); c > 1e-12 {
		t.Errorf("buffer and patches disagree by %v", c)
	}
}
