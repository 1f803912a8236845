// Package geodesy provides WGS84 point and polyline value types and the
// great-circle and segment-distance primitives the spatial index is built on.
// Distances are computed on a spherical Earth (mean radius 6371 km), which is
// accurate to within a few meters at the 1-100 km scales queried here.
package geodesy

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrInvalidGeometry marks coordinates outside WGS84 bounds, non-finite
// values, or polylines with fewer than two vertices.
var ErrInvalidGeometry = eris.New("geodesy: invalid geometry")

const (
	earthRadiusM = 6371000.0

	// metersPerDegLat is the arc length of one degree of latitude.
	metersPerDegLat = earthRadiusM * math.Pi / 180.0

	degToRad = math.Pi / 180.0
)

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate checks that both coordinates are finite and inside WGS84 bounds.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return eris.Wrap(ErrInvalidGeometry, "non-finite coordinate")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Wrapf(ErrInvalidGeometry, "latitude %v out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Wrapf(ErrInvalidGeometry, "longitude %v out of range", p.Lon)
	}
	return nil
}

// BBox returns the degenerate bounding box of the point itself.
func (p Point) BBox() BBox {
	return BBox{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon}
}

// DistanceTo returns the great-circle distance to q in meters.
func (p Point) DistanceTo(q Point) float64 {
	return Haversine(p, q)
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLon := (b.Lon - a.Lon) * degToRad

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Geometry is the capability shared by points and polylines: a bounding box
// for coarse indexing, an exact distance to a query point, and validation.
type Geometry interface {
	BBox() BBox
	DistanceTo(p Point) float64
	Validate() error
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// Expand grows the box by the given distance on every side. Latitude bounds
// are clamped to the poles; longitude padding uses the widest latitude in the
// box and is not wrapped across the antimeridian.
func (b BBox) Expand(meters float64) BBox {
	dLat := meters / metersPerDegLat

	lat := math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))
	cosLat := math.Cos(lat * degToRad)
	dLon := 180.0
	if cosLat > 1e-9 {
		dLon = math.Min(180, meters/(metersPerDegLat*cosLat))
	}

	return BBox{
		MinLat: math.Max(-90, b.MinLat-dLat),
		MinLon: b.MinLon - dLon,
		MaxLat: math.Min(90, b.MaxLat+dLat),
		MaxLon: b.MaxLon + dLon,
	}
}

// Contains reports whether the point lies inside the box, borders included.
func (b BBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// Intersects reports whether the two boxes overlap, borders included.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat && b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon
}

// lonDelta returns the signed longitude difference from -> to normalized to
// [-180, 180].
func lonDelta(from, to float64) float64 {
	d := to - from
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}
