// Package crs provides the reference systems a session can be georeferenced
// in. A reference system knows how to unproject its own coordinates into
// the engine's world space and how to build the local tangent frame at a
// world point.
package crs

import (
	"fmt"
	"strings"

	"github.com/reefmodel/reefscale/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// ReferenceSystem is the part of a coordinate system the core consumes.
type ReferenceSystem interface {
	// Name identifies the system in logs and snapshots.
	Name() string
	// LocalFrame returns the matrix mapping world coordinates to a local
	// east-north-up style frame anchored at world point p.
	LocalFrame(p r3.Vec) geom.Mat4
	// Unproject converts system coordinates into world coordinates.
	Unproject(p r3.Vec) r3.Vec
	// Project converts world coordinates into system coordinates.
	Project(p r3.Vec) r3.Vec
}

// Names accepted by Parse.
const (
	NameLocal = "local"
	NameWGS84 = "wgs84"
)

// Parse resolves a reference system from its configured name. An empty name
// means the session is not referenced and yields nil.
//
// Besides the short names, the WKT and EPSG forms written by the capture
// scripts are recognised: anything starting with LOCAL_CS is a local metric
// system and EPSG::4326 is WGS84.
func Parse(name string) (ReferenceSystem, error) {
	n := strings.TrimSpace(name)
	switch {
	case n == "":
		return nil, nil
	case strings.EqualFold(n, NameLocal), strings.HasPrefix(strings.ToUpper(n), "LOCAL_CS"):
		return Local{}, nil
	case strings.EqualFold(n, NameWGS84), strings.EqualFold(n, "EPSG::4326"), strings.EqualFold(n, "EPSG:4326"):
		return NewWGS84(), nil
	default:
		return nil, fmt.Errorf("unknown reference system %q (expected %s or %s)", name, NameLocal, NameWGS84)
	}
}

// Local is a flat metric system whose axes coincide with the world axes.
// Its local frame is the identity everywhere.
type Local struct{}

// Name implements ReferenceSystem.
func (Local) Name() string { return NameLocal }

// LocalFrame implements ReferenceSystem.
func (Local) LocalFrame(r3.Vec) geom.Mat4 { return geom.Identity4() }

// Unproject implements ReferenceSystem.
func (Local) Unproject(p r3.Vec) r3.Vec { return p }

// Project implements ReferenceSystem.
func (Local) Project(p r3.Vec) r3.Vec { return p }
