package pygeo

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo/bspline"
	"github.com/marcomangano/pygeo/internal/c3"
)

// ConType selects how a child reference axis follows its parent.
type ConType int

const (
	// ConBase anchors only the child's base point to the parent.
	ConBase ConType = iota
	// ConFull anchors both end points. Only valid for two-station
	// axes; the typical use is a flap hinge line riding on a wing
	// axis.
	ConFull
)

type axisCon struct {
	parent, child int
	typ           ConType
}

// RefAxis is a polyline of stations threading through a group of
// patches. Each station carries a position, a rotation triple
// (degrees about x, y and z) and a scale factor; control points
// attached to the axis are stored as local offsets and follow it
// rigidly when the stations move. All station data is complex valued
// so the attachment update can be differentiated by complex step.
type RefAxis struct {
	Base  c3.Vec   // current base point
	End   c3.Vec   // current end point, authoritative under ConFull
	X     []c3.Vec // station offsets from Base
	Rot   []c3.Vec // rotation triples in degrees
	Scale []complex128

	// Pristine copies restored before every update pass, so
	// design-variable functions always start from the as-built axis.
	base0  c3.Vec
	end0   c3.Vec
	x0     []c3.Vec
	rot0   []c3.Vec
	scale0 []complex128

	s   []float64 // normalized arclength parameter per station
	pos []c3.Vec  // refreshed absolute station positions

	linkS    []float64
	linkX    []c3.Vec
	coefList []int
	surfIDs  []int

	conType ConType
	hasCon  bool
	baseS   float64
	baseD   c3.Vec
	endS    float64
	endD    c3.Vec
}

// NewRefAxis builds a reference axis from station positions and
// rotation triples. rot must have one entry per station.
func NewRefAxis(x, rot []r3.Vec) (*RefAxis, error) {
	if len(x) < 2 {
		return nil, errors.New("pygeo: reference axis needs at least 2 stations")
	}
	if len(rot) != len(x) {
		return nil, fmt.Errorf("pygeo: %d rotations for %d axis stations", len(rot), len(x))
	}
	n := len(x)
	ra := &RefAxis{
		Base:  c3.FromReal(x[0]),
		End:   c3.FromReal(x[n-1]),
		X:     make([]c3.Vec, n),
		Rot:   make([]c3.Vec, n),
		Scale: make([]complex128, n),
		s:     make([]float64, n),
		pos:   make([]c3.Vec, n),
	}
	for i := range x {
		ra.X[i] = c3.Sub(c3.FromReal(x[i]), ra.Base)
		ra.Rot[i] = c3.FromReal(rot[i])
		ra.Scale[i] = 1
	}
	total := 0.0
	for i := 1; i < n; i++ {
		total += r3.Norm(r3.Sub(x[i], x[i-1]))
		ra.s[i] = total
	}
	if total == 0 {
		return nil, errors.New("pygeo: reference axis has zero length")
	}
	for i := range ra.s {
		ra.s[i] /= total
	}
	ra.base0 = ra.Base
	ra.end0 = ra.End
	ra.x0 = append([]c3.Vec(nil), ra.X...)
	ra.rot0 = append([]c3.Vec(nil), ra.Rot...)
	ra.scale0 = append([]complex128(nil), ra.Scale...)
	ra.refresh()
	return ra, nil
}

// NumStations returns the station count.
func (ra *RefAxis) NumStations() int { return len(ra.X) }

// Params returns the fixed arclength parameter of each station.
func (ra *RefAxis) Params() []float64 { return ra.s }

// NumLinks returns the number of attached control points.
func (ra *RefAxis) NumLinks() int { return len(ra.linkS) }

// Link returns the axis parameter and global control point id of
// attachment i.
func (ra *RefAxis) Link(i int) (s float64, gid int) {
	return ra.linkS[i], ra.coefList[i]
}

// reset restores the as-built station data.
func (ra *RefAxis) reset() {
	ra.Base = ra.base0
	ra.End = ra.end0
	copy(ra.X, ra.x0)
	copy(ra.Rot, ra.rot0)
	copy(ra.Scale, ra.scale0)
}

// refresh recomputes absolute station positions from Base and the
// offsets. Under a full connection the last station is pinned to End.
func (ra *RefAxis) refresh() {
	for i := range ra.pos {
		ra.pos[i] = c3.Add(ra.Base, ra.X[i])
	}
	if ra.hasCon && ra.conType == ConFull {
		ra.pos[len(ra.pos)-1] = ra.End
	}
}

// bracket returns the station interval containing s and the local
// interpolation weight.
func (ra *RefAxis) bracket(s float64) (i int, w float64) {
	n := len(ra.s)
	if s <= ra.s[0] {
		return 0, 0
	}
	if s >= ra.s[n-1] {
		return n - 2, 1
	}
	i = sort.SearchFloat64s(ra.s, s)
	if ra.s[i] > s {
		i--
	}
	return i, (s - ra.s[i]) / (ra.s[i+1] - ra.s[i])
}

// PositionAt interpolates the axis position at parameter s.
func (ra *RefAxis) PositionAt(s float64) c3.Vec {
	i, w := ra.bracket(s)
	return c3.Lerp(ra.pos[i], ra.pos[i+1], complex(w, 0))
}

// RotAt interpolates the rotation triple at parameter s.
func (ra *RefAxis) RotAt(s float64) c3.Vec {
	i, w := ra.bracket(s)
	return c3.Lerp(ra.Rot[i], ra.Rot[i+1], complex(w, 0))
}

// ScaleAt interpolates the scale factor at parameter s.
func (ra *RefAxis) ScaleAt(s float64) complex128 {
	i, w := ra.bracket(s)
	return ra.Scale[i]*(1-complex(w, 0)) + ra.Scale[i+1]*complex(w, 0)
}

// RotG2L returns the rotation taking global-frame vectors into the
// axis local frame at s. Rotations compose z first, then x, then y.
func (ra *RefAxis) RotG2L(s float64) c3.Mat {
	r := ra.RotAt(s)
	return c3.RotY(r.Y).Mul(c3.RotX(r.X).Mul(c3.RotZ(r.Z)))
}

// RotL2G returns the inverse of RotG2L.
func (ra *RefAxis) RotL2G(s float64) c3.Mat {
	return ra.RotG2L(s).Transpose()
}

// Project finds the parameter of the axis point closest to p, working
// on the real parts of the current station positions. It returns the
// parameter and the offset from the axis to p.
func (ra *RefAxis) Project(p r3.Vec) (s float64, d r3.Vec) {
	best := math.Inf(1)
	for i := 0; i+1 < len(ra.pos); i++ {
		a := ra.pos[i].Real()
		b := ra.pos[i+1].Real()
		ab := r3.Sub(b, a)
		denom := r3.Dot(ab, ab)
		w := 0.0
		if denom > 0 {
			w = r3.Dot(r3.Sub(p, a), ab) / denom
			w = math.Max(0, math.Min(1, w))
		}
		q := r3.Add(a, r3.Scale(w, ab))
		dist := r3.Norm(r3.Sub(p, q))
		if dist < best {
			best = dist
			s = ra.s[i] + w*(ra.s[i+1]-ra.s[i])
			d = r3.Sub(p, q)
		}
	}
	return s, d
}

// ResampleStations linearly resamples a station polyline (and its
// rotation triples) at n uniformly spaced arclength parameters. It is
// a convenience for thinning dense section data, or for refining a
// two-point axis, before handing it to AddRefAxis.
func ResampleStations(x, rot []r3.Vec, n int) ([]r3.Vec, []r3.Vec, error) {
	ra, err := NewRefAxis(x, rot)
	if err != nil {
		return nil, nil, err
	}
	if n < 2 {
		return nil, nil, errors.New("pygeo: need at least 2 stations")
	}
	xOut := make([]r3.Vec, n)
	rOut := make([]r3.Vec, n)
	for i := 0; i < n; i++ {
		s := float64(i) / float64(n-1)
		xOut[i] = ra.PositionAt(s).Real()
		rOut[i] = ra.RotAt(s).Real()
	}
	return xOut, rOut, nil
}

// AddRefAxis threads a reference axis through the given patches and
// attaches their control points to it. x and rot define the stations;
// sel optionally restricts the attachment to specific control cells
// (nil attaches every control point of every listed patch). It
// returns the axis index for use with AddRefAxisCon.
//
// The axis direction relative to each patch grid is detected
// automatically: whichever parametric direction runs most nearly
// along the axis provides the control lines, and each line attaches
// at the axis parameter nearest its centroid.
func (m *Model) AddRefAxis(surfIDs []int, x, rot []r3.Vec, sel []Location) (int, error) {
	ra, err := NewRefAxis(x, rot)
	if err != nil {
		return 0, err
	}
	inSet := make(map[int]bool, len(surfIDs))
	for _, s := range surfIDs {
		if s < 0 || s >= len(m.Surfs) {
			return 0, fmt.Errorf("pygeo: surface id %d out of range", s)
		}
		inSet[s] = true
	}

	seen := map[int]bool{}
	var coefList []int
	add := func(gid int) {
		if !seen[gid] {
			seen[gid] = true
			coefList = append(coefList, gid)
		}
	}
	if sel == nil {
		for _, s := range surfIDs {
			nctlu, nctlv := m.Surfs[s].NumCtl()
			for i := 0; i < nctlu; i++ {
				for j := 0; j < nctlv; j++ {
					add(m.LIndex[s][i][j])
				}
			}
		}
	} else {
		for _, loc := range sel {
			if !inSet[loc.Patch] {
				return 0, fmt.Errorf("pygeo: selected cell on patch %d which is not on the axis", loc.Patch)
			}
			add(m.LIndex[loc.Patch][loc.I][loc.J])
		}
	}
	sort.Ints(coefList)

	// Attachment parameter per control line of each patch.
	attach := make(map[int][]float64, len(surfIDs))
	alongU := make(map[int]bool, len(surfIDs))
	for _, s := range surfIDs {
		surf := m.Surfs[s]
		u := directionAlongSurface(surf, ra)
		alongU[s] = u
		nctlu, nctlv := surf.NumCtl()
		nLines, nCross := nctlu, nctlv
		if !u {
			nLines, nCross = nctlv, nctlu
		}
		sv := make([]float64, nLines)
		for line := 0; line < nLines; line++ {
			var centroid r3.Vec
			for k := 0; k < nCross; k++ {
				var p r3.Vec
				if u {
					p = surf.Coef[line][k]
				} else {
					p = surf.Coef[k][line]
				}
				centroid = r3.Add(centroid, p)
			}
			centroid = r3.Scale(1/float64(nCross), centroid)
			sv[line], _ = ra.Project(centroid)
		}
		attach[s] = sv
	}

	for _, gid := range coefList {
		loc, ok := m.locationOn(gid, inSet)
		if !ok {
			return 0, fmt.Errorf("pygeo: control point %d not on any axis surface", gid)
		}
		var s float64
		if alongU[loc.Patch] {
			s = attach[loc.Patch][loc.I]
		} else {
			s = attach[loc.Patch][loc.J]
		}
		d := c3.Sub(m.Coef[gid], ra.PositionAt(s))
		ra.linkS = append(ra.linkS, s)
		ra.linkX = append(ra.linkX, ra.RotG2L(s).MulVec(d))
	}
	ra.coefList = coefList
	ra.surfIDs = append([]int(nil), surfIDs...)
	m.axes = append(m.axes, ra)
	return len(m.axes) - 1, nil
}

// locationOn returns a location of global control point gid on one of
// the patches in set.
func (m *Model) locationOn(gid int, set map[int]bool) (Location, bool) {
	for _, loc := range m.GIndex[gid] {
		if set[loc.Patch] {
			return loc, true
		}
	}
	return Location{}, false
}

// directionAlongSurface reports whether the axis runs along the u
// direction of the patch rather than v, judged by direction cosines
// at the patch midlines.
func directionAlongSurface(surf *bspline.Surface, ra *RefAxis) bool {
	axisDir := r3.Sub(ra.pos[len(ra.pos)-1].Real(), ra.pos[0].Real())
	n := r3.Norm(axisDir)
	if n == 0 {
		return true
	}
	axisDir = r3.Scale(1/n, axisDir)
	cos := func(d r3.Vec) float64 {
		n := r3.Norm(d)
		if n == 0 {
			return 0
		}
		return math.Abs(r3.Dot(d, axisDir)) / n
	}
	du := r3.Sub(surf.Point(1, 0.5), surf.Point(0, 0.5))
	dv := r3.Sub(surf.Point(0.5, 1), surf.Point(0.5, 0))
	return cos(du) >= cos(dv)
}

// AddRefAxisCon connects the child axis to the parent axis so the
// child rides along when the parent moves. Under ConFull the child
// must have exactly two stations and both are anchored, which also
// reorients the straight line between them.
func (m *Model) AddRefAxisCon(parent, child int, typ ConType) error {
	if parent < 0 || parent >= len(m.axes) || child < 0 || child >= len(m.axes) {
		return errors.New("pygeo: axis index out of range")
	}
	if parent == child {
		return errors.New("pygeo: cannot connect an axis to itself")
	}
	pa, ch := m.axes[parent], m.axes[child]
	if typ == ConFull && ch.NumStations() != 2 {
		return fmt.Errorf("pygeo: full axis connection requires exactly 2 stations, child has %d", ch.NumStations())
	}
	s, d := pa.Project(ch.pos[0].Real())
	ch.baseS = s
	ch.baseD = pa.RotG2L(s).MulVec(c3.FromReal(d))
	if typ == ConFull {
		s, d = pa.Project(ch.pos[len(ch.pos)-1].Real())
		ch.endS = s
		ch.endD = pa.RotG2L(s).MulVec(c3.FromReal(d))
	}
	ch.conType = typ
	ch.hasCon = true
	m.axisCons = append(m.axisCons, axisCon{parent: parent, child: child, typ: typ})
	return nil
}

// applyAxisCon re-anchors a child axis to its parent's current state.
func (m *Model) applyAxisCon(con axisCon) {
	pa, ch := m.axes[con.parent], m.axes[con.child]
	pa.refresh()
	d := pa.RotL2G(ch.baseS).MulVec(ch.baseD)
	ch.Base = c3.Add(pa.PositionAt(ch.baseS), c3.Scale(pa.ScaleAt(ch.baseS), d))
	if con.typ == ConFull {
		d = pa.RotL2G(ch.endS).MulVec(ch.endD)
		ch.End = c3.Add(pa.PositionAt(ch.endS), c3.Scale(pa.ScaleAt(ch.endS), d))
	}
}

// applyAxis moves every attached control point to follow the axis:
// position plus the stored local offset rotated back to the global
// frame and scaled.
func (m *Model) applyAxis(ra *RefAxis) {
	for i, gid := range ra.coefList {
		s := ra.linkS[i]
		d := ra.RotL2G(s).MulVec(ra.linkX[i])
		m.Coef[gid] = c3.Add(ra.PositionAt(s), c3.Scale(ra.ScaleAt(s), d))
	}
}
