package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo/bspline"
)

// WriteIGES writes the patches as IGES type-128 rational B-spline
// surface entities (with unit weights, so effectively polynomial
// B-splines). The result loads in any CAD package.
func WriteIGES(w io.Writer, surfs []*bspline.Surface) error {
	bw := bufio.NewWriter(w)

	writeLine(bw, "", 'S', 1)
	global := []string{
		"1H,", "1H;", "7H128-000", "11H128-000.IGS", "9H{unknown}", "9H{unknown}",
		"16", "6", "15", "13", "15", "7H128-000", "1.", "1", "4HINCH", "8",
		"0.016", "15H19970830.165254", "0.0001", "0.",
	}
	gLines := wrapFields(global, 72)
	for i, l := range gLines {
		writeLine(bw, l, 'G', i+1)
	}

	// Parameter data first so the directory knows the line counts.
	var pLines []string
	paramStart := make([]int, len(surfs))
	paramCount := make([]int, len(surfs))
	for idx, s := range surfs {
		fields := surfaceFields(s)
		lines := wrapFields(fields, 64)
		paramStart[idx] = len(pLines) + 1
		paramCount[idx] = len(lines)
		pLines = append(pLines, lines...)
	}

	dCount := 0
	for idx := range surfs {
		de := 2*idx + 1
		fmt.Fprintf(bw, "%8d%8d%8d%8d%8d%8d%8d%8d%08dD%7d\n",
			128, paramStart[idx], 0, 0, 0, 0, 0, 0, 1, de)
		fmt.Fprintf(bw, "%8d%8d%8d%8d%8d%8s%8s%8s%8dD%7d\n",
			128, 0, 0, paramCount[idx], 0, "", "", "", 0, de+1)
		dCount = de + 1
	}

	pSeq := 0
	for idx := range surfs {
		de := 2*idx + 1
		start := paramStart[idx] - 1
		for k := 0; k < paramCount[idx]; k++ {
			pSeq++
			fmt.Fprintf(bw, "%-64s%8dP%7d\n", pLines[start+k], de, pSeq)
		}
	}

	fmt.Fprintf(bw, "S%7dG%7dD%7dP%7d%40sT%7d\n", 1, len(gLines), dCount, pSeq, "", 1)
	return bw.Flush()
}

// surfaceFields flattens one surface into the type-128 parameter
// list.
func surfaceFields(s *bspline.Surface) []string {
	nu, nv := s.NumCtl()
	var f []string
	add := func(v float64) { f = append(f, strconv.FormatFloat(v, 'g', 12, 64)) }
	f = append(f, "128",
		strconv.Itoa(nu-1), strconv.Itoa(nv-1),
		strconv.Itoa(s.KU-1), strconv.Itoa(s.KV-1),
		"0", "0", "1", "0", "0")
	for _, t := range s.TU {
		add(t)
	}
	for _, t := range s.TV {
		add(t)
	}
	for i := 0; i < nu*nv; i++ {
		f = append(f, "1.0")
	}
	// Control points with u running fastest, per the standard.
	for j := 0; j < nv; j++ {
		for i := 0; i < nu; i++ {
			add(s.Coef[i][j].X)
			add(s.Coef[i][j].Y)
			add(s.Coef[i][j].Z)
		}
	}
	add(s.TU[0])
	add(s.TU[len(s.TU)-1])
	add(s.TV[0])
	add(s.TV[len(s.TV)-1])
	return f
}

// wrapFields joins comma-separated fields into lines of at most width
// characters without splitting a field, terminating the last line
// with a semicolon.
func wrapFields(fields []string, width int) []string {
	var lines []string
	cur := ""
	for i, f := range fields {
		sep := ","
		if i == len(fields)-1 {
			sep = ";"
		}
		tok := f + sep
		if len(cur)+len(tok) > width {
			lines = append(lines, cur)
			cur = ""
		}
		cur += tok
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func writeLine(w io.Writer, content string, section byte, seq int) {
	fmt.Fprintf(w, "%-72s%c%7d\n", content, section, seq)
}

// ReadIGES parses the type-128 entities of an IGES file back into
// surfaces. Entities of any other type are skipped. Weights other
// than one are not supported.
func ReadIGES(r io.Reader) ([]*bspline.Surface, error) {
	sc := bufio.NewScanner(r)
	var dLines, pLines []string
	for sc.Scan() {
		line := sc.Text()
		if len(line) < 73 {
			continue
		}
		switch line[72] {
		case 'D':
			dLines = append(dLines, line)
		case 'P':
			pLines = append(pLines, line[:64])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var surfs []*bspline.Surface
	for i := 0; i+1 < len(dLines); i += 2 {
		typ, err := strconv.Atoi(strings.TrimSpace(dLines[i][0:8]))
		if err != nil || typ != 128 {
			continue
		}
		start, err1 := strconv.Atoi(strings.TrimSpace(dLines[i][8:16]))
		count, err2 := strconv.Atoi(strings.TrimSpace(dLines[i+1][24:32]))
		if err1 != nil || err2 != nil || start < 1 || start-1+count > len(pLines) {
			return nil, fmt.Errorf("export: malformed iges directory entry %d", i/2+1)
		}
		blob := strings.Join(pLines[start-1:start-1+count], "")
		s, err := parse128(blob)
		if err != nil {
			return nil, fmt.Errorf("export: iges entity %d: %w", i/2+1, err)
		}
		surfs = append(surfs, s)
	}
	return surfs, nil
}

func parse128(blob string) (*bspline.Surface, error) {
	blob = strings.TrimSpace(blob)
	blob = strings.TrimSuffix(blob, ";")
	parts := strings.Split(blob, ",")
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	if len(vals) < 10 || int(vals[0]) != 128 {
		return nil, fmt.Errorf("not a 128 entity")
	}
	k1, k2 := int(vals[1]), int(vals[2])
	m1, m2 := int(vals[3]), int(vals[4])
	nu, nv := k1+1, k2+1
	ku, kv := m1+1, m2+1
	pos := 10
	need := (nu + ku) + (nv + kv) + nu*nv + 3*nu*nv + 4
	if len(vals) < pos+need {
		return nil, fmt.Errorf("truncated parameter data: have %d fields, need %d", len(vals), pos+need)
	}
	tu := make(bspline.KnotVec, nu+ku)
	copy(tu, vals[pos:pos+nu+ku])
	pos += nu + ku
	tv := make(bspline.KnotVec, nv+kv)
	copy(tv, vals[pos:pos+nv+kv])
	pos += nv + kv
	pos += nu * nv // unit weights assumed
	coef := make([][]r3.Vec, nu)
	for i := range coef {
		coef[i] = make([]r3.Vec, nv)
	}
	for j := 0; j < nv; j++ {
		for i := 0; i < nu; i++ {
			coef[i][j] = r3.Vec{X: vals[pos], Y: vals[pos+1], Z: vals[pos+2]}
			pos += 3
		}
	}
	return bspline.New(ku, kv, tu, tv, coef)
}
