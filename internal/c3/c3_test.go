package c3

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestRotZQuarterTurn(t *testing.T) {
	got := RotZ(90).MulVec(Vec{X: 1}).Real()
	if r3.Norm(r3.Sub(got, r3.Vec{Y: 1})) > 1e-15 {
		t.Errorf("RotZ(90)·ex = %v, want ey", got)
	}
}

func TestRotationInverseIsTranspose(t *testing.T) {
	m := RotY(33).Mul(RotX(-12).Mul(RotZ(101)))
	p := m.Mul(m.Transpose())
	id := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if d := p[i][j] - id[i][j]; math.Abs(real(d)) > 1e-14 || imag(d) != 0 {
				t.Fatalf("m·mᵀ[%d][%d] = %v", i, j, p[i][j])
			}
		}
	}
}

func TestComplexStepThroughRotation(t *testing.T) {
	// The imaginary part of a rotation with a complex-perturbed angle
	// is the exact angle derivative of the rotated vector.
	const h = 1e-40
	v := Vec{X: 1, Y: 2, Z: 3}
	got := RotZ(complex(30, h)).MulVec(v).Imag()
	// d/dθ Rz(θ)v in radians, scaled to degrees.
	s, c := math.Sin(30*math.Pi/180), math.Cos(30*math.Pi/180)
	want := r3.Scale(h*math.Pi/180, r3.Vec{X: -s*1 - c*2, Y: c*1 - s*2})
	if r3.Norm(r3.Sub(got, want)) > 1e-54 {
		t.Errorf("imaginary part %v, want %v", got, want)
	}
}

func TestLerpEndpoints(t *testing.T) {
	a := Vec{X: 1, Y: -2, Z: 0.5}
	b := Vec{X: 4, Y: 0, Z: -1}
	if Lerp(a, b, 0) != a || Lerp(a, b, 1) != b {
		t.Error("endpoints not reproduced")
	}
	mid := Lerp(a, b, 0.5)
	if mid != (Vec{X: 2.5, Y: -1, Z: -0.25}) {
		t.Errorf("midpoint = %v", mid)
	}
}
