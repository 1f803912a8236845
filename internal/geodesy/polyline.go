package geodesy

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
)

// Polyline is an ordered sequence of at least two WGS84 points. The zero
// value is invalid; construct with NewPolyline so the vertex invariants hold
// for every reachable value.
type Polyline struct {
	pts []Point
}

// NewPolyline validates the vertices and returns a polyline over a private
// copy of them.
func NewPolyline(pts []Point) (Polyline, error) {
	if len(pts) < 2 {
		return Polyline{}, eris.Wrapf(ErrInvalidGeometry, "polyline needs >= 2 vertices, got %d", len(pts))
	}
	for _, p := range pts {
		if err := p.Validate(); err != nil {
			return Polyline{}, err
		}
	}
	cp := make([]Point, len(pts))
	copy(cp, pts)
	return Polyline{pts: cp}, nil
}

// Points returns a copy of the vertices.
func (l Polyline) Points() []Point {
	cp := make([]Point, len(l.pts))
	copy(cp, l.pts)
	return cp
}

// NumPoints returns the vertex count.
func (l Polyline) NumPoints() int { return len(l.pts) }

// Validate re-checks the construction invariants. It fails on the zero value.
func (l Polyline) Validate() error {
	if len(l.pts) < 2 {
		return eris.Wrapf(ErrInvalidGeometry, "polyline needs >= 2 vertices, got %d", len(l.pts))
	}
	for _, p := range l.pts {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BBox returns the lat/lon envelope of the vertices.
func (l Polyline) BBox() BBox {
	b := BBox{MinLat: 90, MinLon: 180, MaxLat: -90, MaxLon: -180}
	for _, p := range l.pts {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b
}

// Length returns the sum of great-circle segment lengths in meters.
func (l Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(l.pts); i++ {
		total += Haversine(l.pts[i-1], l.pts[i])
	}
	return total
}

// Centroid returns the arithmetic mean of the vertices. It is deterministic
// for a given vertex sequence and is used as the display point for segments.
func (l Polyline) Centroid() Point {
	var lat, lon float64
	for _, p := range l.pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(l.pts))
	return Point{Lat: lat / n, Lon: lon / n}
}

// DistanceTo returns the minimum distance in meters from p to any segment of
// the polyline, with the projection clamped to segment endpoints.
func (l Polyline) DistanceTo(p Point) float64 {
	best := math.Inf(1)
	for i := 1; i < len(l.pts); i++ {
		if d := pointSegmentMeters(p, l.pts[i-1], l.pts[i]); d < best {
			best = d
		}
	}
	return best
}

// Within reports whether p lies within radius meters of any segment.
func (l Polyline) Within(p Point, radius float64) bool {
	return l.DistanceTo(p) <= radius
}

// DistanceToLine returns the minimum vertex-to-segment distance between the
// two polylines, evaluated in both directions. Crossing segments with all
// four vertices far apart are not detected; at road-network vertex spacing
// the error is negligible for buffer filtering.
func (l Polyline) DistanceToLine(o Polyline) float64 {
	best := math.Inf(1)
	for _, p := range o.pts {
		if d := l.DistanceTo(p); d < best {
			best = d
		}
	}
	for _, p := range l.pts {
		if d := o.DistanceTo(p); d < best {
			best = d
		}
	}
	return best
}

// DistanceToGeometry returns the minimum distance from the polyline to a
// point or polyline geometry.
func (l Polyline) DistanceToGeometry(g Geometry) float64 {
	switch t := g.(type) {
	case Point:
		return l.DistanceTo(t)
	case Polyline:
		return l.DistanceToLine(t)
	default:
		return math.Inf(1)
	}
}

// MarshalJSON encodes the polyline as a flat array of points.
func (l Polyline) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.pts)
}

// UnmarshalJSON decodes and validates a point array, so any polyline decoded
// from transport input satisfies the construction invariants.
func (l *Polyline) UnmarshalJSON(data []byte) error {
	var pts []Point
	if err := json.Unmarshal(data, &pts); err != nil {
		return eris.Wrap(err, "geodesy: decode polyline")
	}
	pl, err := NewPolyline(pts)
	if err != nil {
		return err
	}
	*l = pl
	return nil
}

// pointSegmentMeters returns the distance from p to the segment a-b using a
// local equirectangular frame centered on a. Zero-length segments, including
// duplicate consecutive vertices, degrade to plain point distance.
func pointSegmentMeters(p, a, b Point) float64 {
	cosLat := math.Cos(a.Lat * degToRad)

	bx := lonDelta(a.Lon, b.Lon) * cosLat * metersPerDegLat
	by := (b.Lat - a.Lat) * metersPerDegLat
	px := lonDelta(a.Lon, p.Lon) * cosLat * metersPerDegLat
	py := (p.Lat - a.Lat) * metersPerDegLat

	segLen2 := bx*bx + by*by
	if segLen2 == 0 {
		return Haversine(p, a)
	}

	t := (px*bx + py*by) / segLen2
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-t*bx, py-t*by)
}
