// Package session holds the explicit per-unit processing context: the
// capability contract the reconstruction engine exposes to the core, the
// domain types that flow across it, and an in-memory engine used by the
// CLI and tests.
package session

import (
	"github.com/reefmodel/reefscale/internal/crs"
	"github.com/reefmodel/reefscale/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Reference is the known position of a marker in the reference system.
type Reference struct {
	Position r3.Vec `json:"position"`
	Accuracy r3.Vec `json:"accuracy"`
	Enabled  bool   `json:"enabled"`
}

// Marker is a labeled, triangulated point in session space.
type Marker struct {
	ID        int        `json:"id"`
	Label     string     `json:"label"`
	Position  r3.Vec     `json:"position"`
	Reference *Reference `json:"reference,omitempty"`
}

// Scalebar is a known physical distance between two markers.
type Scalebar struct {
	ID       int     `json:"id"`
	Label    string  `json:"label"`
	MarkerA  int     `json:"marker_a"`
	MarkerB  int     `json:"marker_b"`
	Distance float64 `json:"distance"`
	Accuracy float64 `json:"accuracy"`
}

// Region is the processing bounding volume in session-local units.
type Region struct {
	Center   r3.Vec    `json:"center"`
	Size     r3.Vec    `json:"size"`
	Rotation geom.Mat3 `json:"rotation"`
}

// ScalebarLabel is the label the engine gives a scalebar between two
// markers.
func ScalebarLabel(a, b string) string { return a + "_" + b }

// Engine is the capability set the core consumes from the reconstruction
// engine. Nothing else about the engine is assumed.
type Engine interface {
	Markers() []Marker
	Scalebars() []Scalebar
	// AddScalebar creates a scalebar between two existing markers.
	AddScalebar(a, b Marker, distance, accuracy float64) (Scalebar, error)
	// UpdateScalebar overwrites the reference distance of an existing
	// scalebar.
	UpdateScalebar(id int, distance, accuracy float64) error
	SetMarkerReference(id int, ref Reference) error
	// Transform returns the object-to-world transform, or false when the
	// session has not been aligned yet.
	Transform() (geom.Mat4, bool)
	// ReferenceSystem returns nil when the session is not referenced.
	ReferenceSystem() crs.ReferenceSystem
	Region() Region
	SetRegion(Region) error
}
