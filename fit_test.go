package pygeo

import (
	"testing"

	"github.com/marcomangano/pygeo/lsq"
)

func TestFitFlatPatchesConverges(t *testing.T) {
	m := twoPatchModel(t)
	history, err := m.FitSurfaces(&FitOptions{Iterations: 1})
	if err != nil {
		t.Fatal(err)
	}
	// No C1 edges: one linear pass nails planar data.
	if history[0] > 1e-8 {
		t.Errorf("residual after linear fit = %v", history[0])
	}
	if e := m.Surfs[0].MaxDataError(); e > 1e-8 {
		t.Errorf("patch 0 error %v", e)
	}
	if c := m.CheckCoef(); c > 1e-12 {
		t.Errorf("buffer not scattered, off by %v", c)
	}
}

func TestFitWithContinuity(t *testing.T) {
	m := twoPatchModel(t)
	m.SetContinuity(C1)
	history, err := m.FitSurfaces(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 6 {
		t.Fatalf("ran %d iterations, want 6", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i] > history[i-1]+1e-9 {
			t.Errorf("residual rose from %v to %v at iteration %d", history[i-1], history[i], i)
		}
	}
	// Straight-line cross sections are exactly representable by the
	// blended edge points.
	if history[len(history)-1] > 1e-6 {
		t.Errorf("final residual %v", history[len(history)-1])
	}
}

func TestFitEarlyStop(t *testing.T) {
	m := twoPatchModel(t)
	history, err := m.FitSurfaces(&FitOptions{Iterations: 6, Tol: 1e-8})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("flat data should stop after one pass, ran %d", len(history))
	}
}

func TestFitDenseSolverAgrees(t *testing.T) {
	m1 := twoPatchModel(t)
	m2 := twoPatchModel(t)
	if _, err := m1.FitSurfaces(&FitOptions{Iterations: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := m2.FitSurfaces(&FitOptions{Iterations: 1, Solver: lsq.Dense{}}); err != nil {
		t.Fatal(err)
	}
	for gid := range m1.Coef {
		d := m1.Coef[gid].Real()
		e := m2.Coef[gid].Real()
		if dx := d.X - e.X; dx > 1e-6 || dx < -1e-6 {
			t.Fatalf("solvers disagree at %d: %v vs %v", gid, d, e)
		}
	}
}

func TestBuildDVLink(t *testing.T) {
	m := twoPatchModel(t)
	m.SetContinuity(C1)
	dvLink, nCols, err := m.buildDVLink()
	if err != nil {
		t.Fatal(err)
	}
	nBlend := 0
	for _, entries := range dvLink {
		if entries[0].blend {
			nBlend++
		}
	}
	// Interior points of the single C1 edge plus its two end nodes.
	if want := 5 + 2; nBlend != want {
		t.Errorf("blend count = %d, want %d", nBlend, want)
	}
	nFree := len(dvLink) - nBlend
	if want := 3*nFree + nBlend; nCols < want {
		t.Errorf("columns = %d, want at least %d", nCols, want)
	}
	// Blend anchors flank the edge.
	for j := 1; j < 6; j++ {
		gid := m.LIndex[0][6][j]
		e := dvLink[gid][0]
		if !e.blend {
			t.Fatalf("edge point %d not blended", gid)
		}
		if e.a != m.LIndex[0][5][j] && e.a != m.LIndex[1][1][j] {
			t.Errorf("anchor a = %d not adjacent to edge", e.a)
		}
		if e.b != m.LIndex[0][5][j] && e.b != m.LIndex[1][1][j] {
			t.Errorf("anchor b = %d not adjacent to edge", e.b)
		}
	}
}
