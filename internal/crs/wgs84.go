package crs

import (
	"math"

	"github.com/reefmodel/reefscale/internal/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// WGS84 ellipsoid constants.
const (
	wgs84SemiMajor  = 6378137.0
	wgs84Flattening = 1 / 298.257223563
)

// Geographic is a geodetic system on an ellipsoid. System coordinates are
// (longitude deg, latitude deg, ellipsoidal height m); world coordinates
// are geocentric (ECEF) metres.
type Geographic struct {
	name string
	a    float64 // semi-major axis
	e2   float64 // first eccentricity squared
}

// NewWGS84 returns the WGS84 geographic system.
func NewWGS84() *Geographic {
	f := wgs84Flattening
	return &Geographic{name: NameWGS84, a: wgs84SemiMajor, e2: f * (2 - f)}
}

// Name implements ReferenceSystem.
func (g *Geographic) Name() string { return g.name }

// Unproject converts (lon, lat, h) to geocentric coordinates.
func (g *Geographic) Unproject(p r3.Vec) r3.Vec {
	lon := p.X * math.Pi / 180.0
	lat := p.Y * math.Pi / 180.0
	h := p.Z

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	n := g.a / math.Sqrt(1-g.e2*sinLat*sinLat)

	return r3.Vec{
		X: (n + h) * cosLat * math.Cos(lon),
		Y: (n + h) * cosLat * math.Sin(lon),
		Z: (n*(1-g.e2) + h) * sinLat,
	}
}

// Project converts geocentric coordinates to (lon, lat, h) by fixed-point
// iteration on latitude. Converges to sub-millimetre within a few rounds
// for points near the surface.
func (g *Geographic) Project(p r3.Vec) r3.Vec {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, rho*(1-g.e2))
	var h float64
	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := g.a / math.Sqrt(1-g.e2*sinLat*sinLat)
		if cosLat := math.Cos(lat); math.Abs(cosLat) > 1e-12 {
			h = rho/cosLat - n
		} else {
			h = math.Abs(p.Z) - n*(1-g.e2)
		}
		next := math.Atan2(p.Z, rho*(1-g.e2*n/(n+h)))
		if math.Abs(next-lat) < 1e-14 {
			lat = next
			break
		}
		lat = next
	}

	return r3.Vec{X: lon * 180.0 / math.Pi, Y: lat * 180.0 / math.Pi, Z: h}
}

// LocalFrame returns the east-north-up frame at geocentric point p. The
// rotation rows are the E, N and U axes and the translation moves p to the
// origin, so LocalFrame(p).MulPoint(p) is zero.
func (g *Geographic) LocalFrame(p r3.Vec) geom.Mat4 {
	geo := g.Project(p)
	// East is the Z rotation that brings the meridian's tangent onto X;
	// tilting about that east axis by the colatitude lifts Z to up.
	r := geom.RotX(geo.Y - 90).Mul(geom.RotZ(-90 - geo.X))
	t := r.MulVec(p)
	return geom.Compose(r, 1, r3.Scale(-1, t))
}
