package crs

import (
	"math"
	"testing"

	"github.com/reefmodel/reefscale/internal/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"local", NameLocal},
		{"LOCAL", NameLocal},
		{`LOCAL_CS["Local Coordinates (m)",LOCAL_DATUM["Local Datum",0],UNIT["metre",1]]`, NameLocal},
		{"wgs84", NameWGS84},
		{"EPSG::4326", NameWGS84},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rs, err := Parse(tt.in)
			require.NoError(t, err)
			require.NotNil(t, rs)
			assert.Equal(t, tt.want, rs.Name())
		})
	}

	rs, err := Parse("  ")
	require.NoError(t, err)
	assert.Nil(t, rs)

	_, err = Parse("EPSG::32617")
	assert.Error(t, err)
}

func TestLocal_IsIdentity(t *testing.T) {
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	var l Local
	assert.Equal(t, p, l.Unproject(p))
	assert.Equal(t, p, l.Project(p))
	assert.Equal(t, geom.Identity4(), l.LocalFrame(p))
}

func TestWGS84_RoundTrip(t *testing.T) {
	g := NewWGS84()
	geo := r3.Vec{X: -80.12, Y: 24.98, Z: -6.5}

	back := g.Project(g.Unproject(geo))
	assert.InDelta(t, geo.X, back.X, 1e-9)
	assert.InDelta(t, geo.Y, back.Y, 1e-9)
	assert.InDelta(t, geo.Z, back.Z, 1e-4)
}

func TestWGS84_EquatorPrimeMeridian(t *testing.T) {
	g := NewWGS84()
	p := g.Unproject(r3.Vec{})
	assert.InDelta(t, wgs84SemiMajor, p.X, 1e-6)
	assert.InDelta(t, 0, p.Y, 1e-6)
	assert.InDelta(t, 0, p.Z, 1e-6)
}

func TestWGS84_LocalFrame(t *testing.T) {
	g := NewWGS84()
	p := g.Unproject(r3.Vec{X: -80.12, Y: 24.98, Z: 0})
	m := g.LocalFrame(p)

	assert.True(t, m.Upper3().IsRotation(1e-9), "local frame rotation must be orthonormal")

	lon, lat := -80.12*math.Pi/180, 24.98*math.Pi/180
	enu := geom.Mat3{
		-math.Sin(lon), math.Cos(lon), 0,
		-math.Sin(lat) * math.Cos(lon), -math.Sin(lat) * math.Sin(lon), math.Cos(lat),
		math.Cos(lat) * math.Cos(lon), math.Cos(lat) * math.Sin(lon), math.Sin(lat),
	}
	got := m.Upper3()
	for i := range enu {
		assert.InDelta(t, enu[i], got[i], 1e-9, "element %d", i)
	}

	origin := m.MulPoint(p)
	assert.InDelta(t, 0, origin.X, 1e-6)
	assert.InDelta(t, 0, origin.Y, 1e-6)
	assert.InDelta(t, 0, origin.Z, 1e-6)

	// One metre up the ellipsoid normal lands on local +Z.
	up := g.Unproject(r3.Vec{X: -80.12, Y: 24.98, Z: 1})
	local := m.MulPoint(up)
	assert.InDelta(t, 0, local.X, 1e-6)
	assert.InDelta(t, 0, local.Y, 1e-6)
	assert.InDelta(t, 1, local.Z, 1e-6)
}
