// Package geom holds the small amount of 3D linear algebra shared by the
// frame resolver, the region rewriter and the reference systems.
//
// Matrices are stored row-major in fixed-size arrays so they serialise as
// plain JSON arrays and compare with ==. Products and inverses go through
// gonum so the numerics match the rest of the toolchain.
package geom

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSingular is returned when a matrix cannot be inverted.
var ErrSingular = errors.New("matrix is singular")

// Mat4 is a 4x4 row-major matrix: m00,m01,m02,m03, m10,...
type Mat4 [16]float64

// Mat3 is a 3x3 row-major matrix.
type Mat3 [9]float64

// Identity4 returns the 4x4 identity.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Identity3 returns the 3x3 identity.
func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// Compose builds a rigid-plus-scale transform from a rotation, a uniform
// scale and a translation: p' = scale*R*p + t.
func Compose(r Mat3, scale float64, t r3.Vec) Mat4 {
	return Mat4{
		scale * r[0], scale * r[1], scale * r[2], t.X,
		scale * r[3], scale * r[4], scale * r[5], t.Y,
		scale * r[6], scale * r[7], scale * r[8], t.Z,
		0, 0, 0, 1,
	}
}

// Dense copies m into a gonum matrix.
func (m Mat4) Dense() *mat.Dense {
	data := make([]float64, 16)
	copy(data, m[:])
	return mat.NewDense(4, 4, data)
}

func mat4FromDense(d mat.Matrix) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = d.At(r, c)
		}
	}
	return out
}

// Mul returns m*n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var prod mat.Dense
	prod.Mul(m.Dense(), n.Dense())
	return mat4FromDense(&prod)
}

// MulPoint applies m to point p with an implicit w of 1.
func (m Mat4) MulPoint(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// similarityTol bounds how far the rotation block of a rigid-plus-scale
// transform may drift from orthonormal before Inverse treats it as general.
const similarityTol = 1e-9

// Inverse returns the inverse of m, or ErrSingular when m is not invertible.
//
// A rigid-plus-scale transform k*R|t is inverted in closed form as
// R^T/k | -R^T*t/k. Geocentric translations with a small scale give such
// matrices condition numbers past gonum's tolerance even though they are
// exactly invertible. Any other matrix goes through gonum; an
// ill-conditioned result is accepted as long as it is finite.
func (m Mat4) Inverse() (Mat4, error) {
	if !m.IsFinite() {
		return Mat4{}, fmt.Errorf("%w: non-finite element", ErrSingular)
	}
	if inv, ok := m.similarityInverse(); ok {
		return inv, nil
	}
	if m.Det() == 0 {
		return Mat4{}, ErrSingular
	}

	var inv mat.Dense
	if err := inv.Inverse(m.Dense()); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return Mat4{}, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}
	out := mat4FromDense(&inv)
	if !out.IsFinite() {
		return Mat4{}, fmt.Errorf("%w: non-finite inverse", ErrSingular)
	}
	return out, nil
}

func (m Mat4) similarityInverse() (Mat4, bool) {
	if m[12] != 0 || m[13] != 0 || m[14] != 0 || m[15] != 1 {
		return Mat4{}, false
	}
	k := m.RowScale()
	if k == 0 {
		return Mat4{}, false
	}
	r := m.Upper3().Scale(1 / k)
	if !r.IsRotation(similarityTol) {
		return Mat4{}, false
	}
	rt := r.T()
	t := rt.MulVec(m.Translation())
	return Compose(rt, 1/k, r3.Scale(-1/k, t)), true
}

// Det returns the determinant of m.
func (m Mat4) Det() float64 { return mat.Det(m.Dense()) }

// Upper3 returns the upper-left 3x3 block.
func (m Mat4) Upper3() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}

// Translation returns the translation column.
func (m Mat4) Translation() r3.Vec { return r3.Vec{X: m[3], Y: m[7], Z: m[11]} }

// RowScale returns the length of the first row of the rotation block. For
// a uniformly scaled orthogonal block this is the scale factor.
func (m Mat4) RowScale() float64 {
	return math.Sqrt(m[0]*m[0] + m[1]*m[1] + m[2]*m[2])
}

// IsFinite reports whether every element is a finite number.
func (m Mat4) IsFinite() bool {
	for _, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Mul returns m*n.
func (m Mat3) Mul(n Mat3) Mat3 {
	a := mat.NewDense(3, 3, append([]float64(nil), m[:]...))
	b := mat.NewDense(3, 3, append([]float64(nil), n[:]...))
	var prod mat.Dense
	prod.Mul(a, b)
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = prod.At(r, c)
		}
	}
	return out
}

// MulVec returns m*v.
func (m Mat3) MulVec(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

// Scale returns m with every element multiplied by f.
func (m Mat3) Scale(f float64) Mat3 {
	var out Mat3
	for i, v := range m {
		out[i] = v * f
	}
	return out
}

// T returns the transpose of m.
func (m Mat3) T() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// IsRotation reports whether m is orthonormal with determinant +1 within
// tol.
func (m Mat3) IsRotation(tol float64) bool {
	if math.Abs(m.Det()-1) > tol {
		return false
	}
	p := m.Mul(m.T())
	id := Identity3()
	for i := range p {
		if math.Abs(p[i]-id[i]) > tol {
			return false
		}
	}
	return true
}

// RotZ returns a rotation of deg degrees about the Z axis.
func RotZ(deg float64) Mat3 {
	rad := deg * math.Pi / 180.0
	c, s := math.Cos(rad), math.Sin(rad)
	return Mat3{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	}
}

// RotX returns a rotation of deg degrees about the X axis.
func RotX(deg float64) Mat3 {
	rad := deg * math.Pi / 180.0
	c, s := math.Cos(rad), math.Sin(rad)
	return Mat3{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}
}
