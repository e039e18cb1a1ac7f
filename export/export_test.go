package export_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo"
	"github.com/marcomangano/pygeo/bspline"
	"github.com/marcomangano/pygeo/export"
)

func waveGrid(nu, nv int, x0 float64) [][]r3.Vec {
	g := make([][]r3.Vec, nu)
	for i := range g {
		g[i] = make([]r3.Vec, nv)
		for j := range g[i] {
			x := x0 + float64(i)/float64(nu-1)
			y := float64(j) / float64(nv-1)
			g[i][j] = r3.Vec{X: x, Y: y, Z: 0.1 * math.Sin(math.Pi*x) * math.Cos(math.Pi*y)}
		}
	}
	return g
}

func testModel(t *testing.T) *pygeo.Model {
	t.Helper()
	a, err := bspline.Interpolate(waveGrid(7, 7, 0), 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	b, err := bspline.Interpolate(waveGrid(7, 7, 1), 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	m, err := pygeo.NewModel([]*bspline.Surface{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestPlot3DRoundTrip(t *testing.T) {
	grids := [][][]r3.Vec{waveGrid(7, 5, 0), waveGrid(4, 9, 1)}
	var buf bytes.Buffer
	if err := export.WritePlot3D(&buf, grids); err != nil {
		t.Fatal(err)
	}
	got, err := export.ReadPlot3D(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(grids) {
		t.Fatalf("read %d blocks, want %d", len(got), len(grids))
	}
	for b := range grids {
		if len(got[b]) != len(grids[b]) || len(got[b][0]) != len(grids[b][0]) {
			t.Fatalf("block %d is %dx%d, want %dx%d",
				b, len(got[b]), len(got[b][0]), len(grids[b]), len(grids[b][0]))
		}
		for i := range grids[b] {
			for j := range grids[b][i] {
				if d := r3.Norm(r3.Sub(got[b][i][j], grids[b][i][j])); d > 1e-9 {
					t.Fatalf("block %d point (%d,%d) off by %v", b, i, j, d)
				}
			}
		}
	}
}

func TestReadPlot3DRejectsVolumes(t *testing.T) {
	in := "1\n2 2 2\n"
	if _, err := export.ReadPlot3D(strings.NewReader(in)); err == nil {
		t.Error("volume block accepted")
	}
}

func TestIGESRoundTrip(t *testing.T) {
	orig, err := bspline.Interpolate(waveGrid(7, 6, 0), 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := export.WriteIGES(&buf, []*bspline.Surface{orig}); err != nil {
		t.Fatal(err)
	}
	surfs, err := export.ReadIGES(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(surfs) != 1 {
		t.Fatalf("read %d surfaces, want 1", len(surfs))
	}
	got := surfs[0]
	if got.KU != orig.KU || got.KV != orig.KV {
		t.Fatalf("orders %d,%d, want %d,%d", got.KU, got.KV, orig.KU, orig.KV)
	}
	nu, nv := got.NumCtl()
	onu, onv := orig.NumCtl()
	if nu != onu || nv != onv {
		t.Fatalf("control grid %dx%d, want %dx%d", nu, nv, onu, onv)
	}
	for i := 0; i < nu; i++ {
		for j := 0; j < nv; j++ {
			if d := r3.Norm(r3.Sub(got.Coef[i][j], orig.Coef[i][j])); d > 1e-9 {
				t.Fatalf("coef (%d,%d) off by %v", i, j, d)
			}
		}
	}
	for _, uv := range [][2]float64{{0, 0}, {0.3, 0.7}, {1, 1}} {
		a := orig.Point(uv[0], uv[1])
		b := got.Point(uv[0], uv[1])
		if d := r3.Norm(r3.Sub(a, b)); d > 1e-9 {
			t.Errorf("point at %v off by %v", uv, d)
		}
	}
}

func TestIGESSectionLayout(t *testing.T) {
	orig, err := bspline.Interpolate(waveGrid(5, 5, 0), 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := export.WriteIGES(&buf, []*bspline.Surface{orig, orig}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	for n, line := range lines {
		if len(line) != 80 {
			t.Fatalf("line %d is %d characters, want 80", n+1, len(line))
		}
	}
	last := lines[len(lines)-1]
	if last[72] != 'T' {
		t.Errorf("file does not end with a terminate line: %q", last)
	}
	nD := 0
	for _, line := range lines {
		if line[72] == 'D' {
			nD++
		}
	}
	if nD != 4 {
		t.Errorf("%d directory lines, want 4 (two per entity)", nD)
	}
}

func TestWriteTecplotZones(t *testing.T) {
	m := testModel(t)
	x := []r3.Vec{{X: 0.5, Y: 0, Z: 0}, {X: 0.5, Y: 1, Z: 0}}
	if _, err := m.AddRefAxis([]int{0}, x, make([]r3.Vec, 2), nil); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	err := export.WriteTecplot(&buf, m, export.TecplotOptions{
		Size: 5, Coef: true, Orig: true, Edges: true, Axes: true, Links: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`VARIABLES = "X", "Y", "Z"`,
		`Zone T="surf0" I=5 J=5`,
		`Zone T="surf1"`,
		`Zone T="coef0" I=7 J=7`,
		`Zone T="orig1" I=7 J=7`,
		`Zone T="edge0"`,
		`Zone T="ref_axis0" I=2`,
		"ZONETYPE=FELINESEG",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	// Two stitched patches share an edge, so there are 7 edges in all.
	if got := strings.Count(out, `T="edge`); got != 7 {
		t.Errorf("%d boundary edge zones, want 7", got)
	}
}
