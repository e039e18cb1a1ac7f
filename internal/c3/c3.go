package c3

import (
	"math/cmplx"

	"gonum.org/v1/gonum/spatial/r3"
)

// Complex-valued 3-vector and rotation routines. The geometry update
// pipeline runs on complex128 so that a complex-step perturbation of a
// design variable carries an exact derivative in the imaginary part.

// Vec is a complex-valued 3D vector.
type Vec struct {
	X, Y, Z complex128
}

// FromReal promotes a real vector to a complex vector with zero
// imaginary part.
func FromReal(v r3.Vec) Vec {
	return Vec{X: complex(v.X, 0), Y: complex(v.Y, 0), Z: complex(v.Z, 0)}
}

// Real returns the real part of v.
func (v Vec) Real() r3.Vec {
	return r3.Vec{X: real(v.X), Y: real(v.Y), Z: real(v.Z)}
}

// Imag returns the imaginary part of v.
func (v Vec) Imag() r3.Vec {
	return r3.Vec{X: imag(v.X), Y: imag(v.Y), Z: imag(v.Z)}
}

func Add(a, b Vec) Vec {
	return Vec{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

func Sub(a, b Vec) Vec {
	return Vec{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func Scale(f complex128, v Vec) Vec {
	return Vec{X: f * v.X, Y: f * v.Y, Z: f * v.Z}
}

// Lerp linearly interpolates between a (w=0) and b (w=1).
func Lerp(a, b Vec, w complex128) Vec {
	return Add(Scale(1-w, a), Scale(w, b))
}

// Mat is a 3x3 complex matrix stored in row-major order.
type Mat [3][3]complex128

// Identity returns the identity matrix.
func Identity() Mat {
	return Mat{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MulVec returns m·v.
func (m Mat) MulVec(v Vec) Vec {
	return Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul returns the matrix product m·b.
func (m Mat) Mul(b Mat) Mat {
	var out Mat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*b[0][j] + m[i][1]*b[1][j] + m[i][2]*b[2][j]
		}
	}
	return out
}

// Transpose returns the matrix transpose. For orthonormal rotation
// matrices this is the inverse.
func (m Mat) Transpose() Mat {
	var out Mat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

const degToRad = 3.14159265358979323846264338327950288419716939937510582097494459 / 180

// RotX returns the rotation matrix about the x axis. The angle is in
// degrees; a complex angle carries its perturbation through the
// trigonometric terms.
func RotX(deg complex128) Mat {
	s, c := cmplx.Sin(deg * degToRad), cmplx.Cos(deg * degToRad)
	return Mat{
		{1, 0, 0},
		{0, c, -s},
		{0, s, c},
	}
}

// RotY returns the rotation matrix about the y axis in degrees.
func RotY(deg complex128) Mat {
	s, c := cmplx.Sin(deg * degToRad), cmplx.Cos(deg * degToRad)
	return Mat{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
}

// RotZ returns the rotation matrix about the z axis in degrees.
func RotZ(deg complex128) Mat {
	s, c := cmplx.Sin(deg * degToRad), cmplx.Cos(deg * degToRad)
	return Mat{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
}
