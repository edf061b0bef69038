// Package frame resolves a session's object transform against its reference
// system. The result says how internal model units relate to physical units
// (Scale) and how the model axes are oriented in the local tangent frame
// (Rotation).
package frame

import (
	"math"

	"github.com/reefmodel/reefscale/internal/crs"
	"github.com/reefmodel/reefscale/internal/geom"
	"github.com/reefmodel/reefscale/internal/session"
	"gonum.org/v1/gonum/spatial/r3"
)

// BottomRowTolerance bounds how far the homogeneous row of a transform may
// drift from [0 0 0 1].
const BottomRowTolerance = 1e-9

// Frame is the resolved local frame of a transform.
type Frame struct {
	// Matrix is the local frame at the transformed origin composed with T.
	Matrix geom.Mat4
	// Scale converts model units to physical units.
	Scale float64
	// Rotation is the upper-left block of Matrix with the scale removed.
	Rotation geom.Mat3
	// Origin is the model origin in world coordinates.
	Origin r3.Vec
}

// Resolve computes the frame of T at the model origin.
//
// A nil reference system resolves against the identity frame, so the result
// is T itself with its own scale.
func Resolve(t geom.Mat4, ref crs.ReferenceSystem) (Frame, error) {
	return ResolveAt(t, ref, r3.Vec{})
}

// ResolveAt computes the frame of T at the model-space point p.
func ResolveAt(t geom.Mat4, ref crs.ReferenceSystem, p r3.Vec) (Frame, error) {
	if err := checkTransform(t); err != nil {
		return Frame{}, err
	}
	world := t.MulPoint(p)
	local := geom.Identity4()
	if ref != nil {
		local = ref.LocalFrame(world)
	}
	m := local.Mul(t)
	s := m.RowScale()
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return Frame{}, session.Preconditionf(session.StageFrame, "degenerate transform: scale %v", s)
	}
	return Frame{
		Matrix:   m,
		Scale:    s,
		Rotation: m.Upper3().Scale(1 / s),
		Origin:   world,
	}, nil
}

// ForSession resolves the frame of the session's current transform.
func ForSession(s *session.Session) (Frame, error) {
	t, ok := s.Engine.Transform()
	if !ok {
		return Frame{}, session.Preconditionf(session.StageFrame, "session has no object transform")
	}
	return Resolve(t, s.Engine.ReferenceSystem())
}

func checkTransform(t geom.Mat4) error {
	if !t.IsFinite() {
		return session.Preconditionf(session.StageFrame, "transform has non-finite elements")
	}
	if math.Abs(t[12]) > BottomRowTolerance || math.Abs(t[13]) > BottomRowTolerance ||
		math.Abs(t[14]) > BottomRowTolerance || math.Abs(t[15]-1) > BottomRowTolerance {
		return session.Preconditionf(session.StageFrame, "transform is not affine: bottom row %v", t[12:])
	}
	return nil
}
