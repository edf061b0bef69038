package session

import (
	"fmt"

	"github.com/reefmodel/reefscale/internal/crs"
	"github.com/reefmodel/reefscale/internal/geom"
)

// Compile-time check that Memory satisfies the engine contract.
var _ Engine = (*Memory)(nil)

// Snapshot is the serialised state of one session as exported from the
// reconstruction engine.
type Snapshot struct {
	ID        string     `json:"id,omitempty"`
	Label     string     `json:"label"`
	CRS       string     `json:"crs,omitempty"`
	Transform *geom.Mat4 `json:"transform,omitempty"`
	Markers   []Marker   `json:"markers"`
	Scalebars []Scalebar `json:"scalebars"`
	Region    Region     `json:"region"`
}

// Memory is an engine whose state lives entirely in process. The CLI loads
// one from a stored snapshot, runs the stages, and writes the snapshot back.
type Memory struct {
	crsName   string
	crs       crs.ReferenceSystem
	transform *geom.Mat4
	markers   []Marker
	scalebars []Scalebar
	region    Region
}

// NewMemory builds an engine from a snapshot. A zero region rotation is
// treated as the identity.
func NewMemory(snap Snapshot) (*Memory, error) {
	rs, err := crs.Parse(snap.CRS)
	if err != nil {
		return nil, err
	}
	m := &Memory{
		crsName:   snap.CRS,
		crs:       rs,
		markers:   append([]Marker(nil), snap.Markers...),
		scalebars: append([]Scalebar(nil), snap.Scalebars...),
		region:    snap.Region,
	}
	if snap.Transform != nil {
		t := *snap.Transform
		m.transform = &t
	}
	if m.region.Rotation == (geom.Mat3{}) {
		m.region.Rotation = geom.Identity3()
	}
	for i, sb := range m.scalebars {
		if _, ok := m.markerByID(sb.MarkerA); !ok {
			return nil, fmt.Errorf("scalebar %q references unknown marker %d", sb.Label, sb.MarkerA)
		}
		if _, ok := m.markerByID(sb.MarkerB); !ok {
			return nil, fmt.Errorf("scalebar %q references unknown marker %d", sb.Label, sb.MarkerB)
		}
		if sb.Label == "" {
			a, _ := m.markerByID(sb.MarkerA)
			b, _ := m.markerByID(sb.MarkerB)
			m.scalebars[i].Label = ScalebarLabel(a.Label, b.Label)
		}
	}
	return m, nil
}

// Open builds a Memory engine from snap and opens a session over it.
func Open(snap Snapshot) (*Session, *Memory, error) {
	mem, err := NewMemory(snap)
	if err != nil {
		return nil, nil, err
	}
	s, err := New(snap.ID, snap.Label, mem)
	if err != nil {
		return nil, nil, err
	}
	return s, mem, nil
}

// Snapshot returns a copy of the current state.
func (m *Memory) Snapshot() Snapshot {
	snap := Snapshot{
		CRS:       m.crsName,
		Markers:   append([]Marker(nil), m.markers...),
		Scalebars: append([]Scalebar(nil), m.scalebars...),
		Region:    m.region,
	}
	if m.transform != nil {
		t := *m.transform
		snap.Transform = &t
	}
	return snap
}

func (m *Memory) markerByID(id int) (Marker, bool) {
	for _, mk := range m.markers {
		if mk.ID == id {
			return mk, true
		}
	}
	return Marker{}, false
}

// Markers implements Engine.
func (m *Memory) Markers() []Marker { return append([]Marker(nil), m.markers...) }

// Scalebars implements Engine.
func (m *Memory) Scalebars() []Scalebar { return append([]Scalebar(nil), m.scalebars...) }

// AddScalebar implements Engine.
func (m *Memory) AddScalebar(a, b Marker, distance, accuracy float64) (Scalebar, error) {
	if _, ok := m.markerByID(a.ID); !ok {
		return Scalebar{}, fmt.Errorf("add scalebar: unknown marker %d (%s)", a.ID, a.Label)
	}
	if _, ok := m.markerByID(b.ID); !ok {
		return Scalebar{}, fmt.Errorf("add scalebar: unknown marker %d (%s)", b.ID, b.Label)
	}
	if a.ID == b.ID {
		return Scalebar{}, fmt.Errorf("add scalebar: marker %q cannot be both endpoints", a.Label)
	}

	id := 1
	for _, sb := range m.scalebars {
		if sb.ID >= id {
			id = sb.ID + 1
		}
	}
	sb := Scalebar{
		ID:       id,
		Label:    ScalebarLabel(a.Label, b.Label),
		MarkerA:  a.ID,
		MarkerB:  b.ID,
		Distance: distance,
		Accuracy: accuracy,
	}
	m.scalebars = append(m.scalebars, sb)
	return sb, nil
}

// UpdateScalebar implements Engine.
func (m *Memory) UpdateScalebar(id int, distance, accuracy float64) error {
	for i := range m.scalebars {
		if m.scalebars[i].ID == id {
			m.scalebars[i].Distance = distance
			m.scalebars[i].Accuracy = accuracy
			return nil
		}
	}
	return fmt.Errorf("update scalebar: unknown scalebar %d", id)
}

// SetMarkerReference implements Engine.
func (m *Memory) SetMarkerReference(id int, ref Reference) error {
	for i := range m.markers {
		if m.markers[i].ID == id {
			r := ref
			m.markers[i].Reference = &r
			return nil
		}
	}
	return fmt.Errorf("set marker reference: unknown marker %d", id)
}

// Transform implements Engine.
func (m *Memory) Transform() (geom.Mat4, bool) {
	if m.transform == nil {
		return geom.Mat4{}, false
	}
	return *m.transform, true
}

// ReferenceSystem implements Engine.
func (m *Memory) ReferenceSystem() crs.ReferenceSystem { return m.crs }

// Region implements Engine.
func (m *Memory) Region() Region { return m.region }

// SetRegion implements Engine.
func (m *Memory) SetRegion(r Region) error {
	m.region = r
	return nil
}
