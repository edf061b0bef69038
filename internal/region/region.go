// Package region rewrites a session's reconstruction bounding box from a
// request given in physical units in the session's reference system.
package region

import (
	"errors"
	"fmt"

	"github.com/reefmodel/reefscale/internal/crs"
	"github.com/reefmodel/reefscale/internal/frame"
	"github.com/reefmodel/reefscale/internal/geom"
	"github.com/reefmodel/reefscale/internal/monitoring"
	"github.com/reefmodel/reefscale/internal/session"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
)

// Request is a bounding box in reference-system coordinates. Size is in
// metres; AngleDeg rotates the box about its vertical axis.
type Request struct {
	Center   r3.Vec  `json:"center" toml:"center"`
	Size     r3.Vec  `json:"size" toml:"size"`
	AngleDeg float64 `json:"angle_deg" toml:"angle_deg"`
}

// Options control what Rewrite writes back.
type Options struct {
	// ApplyRotation writes R'·Rz(angle) into the region rotation. When false
	// the existing rotation is left untouched, because depth-map generation
	// rejects some rotated regions.
	ApplyRotation bool
}

// Result is the computed region and the quantities it was derived from.
type Result struct {
	Region        session.Region
	CenterLocal   r3.Vec
	Scale         float64
	FrameRotation geom.Mat3 // R' = rotation block of M2, transposed
	RotationSet   bool
}

// Compute derives the session-local region for req. It does not touch the
// session; current is the region the result starts from.
func Compute(t geom.Mat4, ref crs.ReferenceSystem, current session.Region, req Request, opts Options) (Result, error) {
	if ref == nil {
		return Result{}, session.Preconditionf(session.StageRegion, "session has no reference system")
	}
	if req.Size.X <= 0 || req.Size.Y <= 0 || req.Size.Z <= 0 {
		return Result{}, fmt.Errorf("region size must be positive, got %v", req.Size)
	}
	inv, err := t.Inverse()
	if err != nil {
		if errors.Is(err, geom.ErrSingular) {
			return Result{}, session.Preconditionf(session.StageRegion, "object transform is not invertible: %v", err)
		}
		return Result{}, err
	}

	centerLocal := inv.MulPoint(ref.Unproject(req.Center))
	f, err := frame.ResolveAt(t, ref, centerLocal)
	if err != nil {
		var pe *session.PreconditionError
		if errors.As(err, &pe) {
			pe.Stage = session.StageRegion
		}
		return Result{}, err
	}

	res := Result{
		CenterLocal:   centerLocal,
		Scale:         f.Scale,
		FrameRotation: f.Rotation.T(),
		Region: session.Region{
			Center:   centerLocal,
			Size:     r3.Scale(1/f.Scale, req.Size),
			Rotation: current.Rotation,
		},
	}
	if opts.ApplyRotation {
		res.Region.Rotation = res.FrameRotation.Mul(geom.RotZ(req.AngleDeg))
		res.RotationSet = true
	}
	return res, nil
}

// Rewrite computes the region for req against the session's transform and
// reference system and writes it back.
func Rewrite(s *session.Session, req Request, opts Options) (Result, error) {
	log := monitoring.For("region").WithField("session", s.Label)

	t, ok := s.Engine.Transform()
	if !ok {
		return Result{}, session.Preconditionf(session.StageRegion, "session has no object transform")
	}
	res, err := Compute(t, s.Engine.ReferenceSystem(), s.Engine.Region(), req, opts)
	if err != nil {
		return Result{}, err
	}
	if err := s.Engine.SetRegion(res.Region); err != nil {
		return Result{}, fmt.Errorf("set region: %w", err)
	}
	log.WithFields(logrus.Fields{
		"center":       res.Region.Center,
		"size":         res.Region.Size,
		"scale":        res.Scale,
		"rotation_set": res.RotationSet,
	}).Info("region updated")
	return res, nil
}

// AlignAxes rotates the region so its axes follow the reference system's
// local frame at the model origin. Center and size are kept.
func AlignAxes(s *session.Session) (session.Region, error) {
	f, err := frame.ForSession(s)
	if err != nil {
		return session.Region{}, err
	}
	r := s.Engine.Region()
	r.Rotation = f.Rotation.T()
	if err := s.Engine.SetRegion(r); err != nil {
		return session.Region{}, fmt.Errorf("set region: %w", err)
	}
	monitoring.For("region").WithField("session", s.Label).Debug("region axes aligned")
	return r, nil
}
