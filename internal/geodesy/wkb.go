package geodesy

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"
)

const srid = 4326

// EWKB encodes the point as little-endian EWKB with SRID 4326, the storage
// format used by both persistence backends.
func (p Point) EWKB() ([]byte, error) {
	g := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(srid)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geodesy: encode point")
	}
	return data, nil
}

// PointFromEWKB decodes an EWKB point produced by Point.EWKB.
func PointFromEWKB(data []byte) (Point, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Point{}, eris.Wrap(err, "geodesy: decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return Point{}, eris.Errorf("geodesy: expected point geometry, got %T", g)
	}
	p := Point{Lat: pt.Y(), Lon: pt.X()}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// EWKB encodes the polyline as a little-endian EWKB linestring with SRID 4326.
func (l Polyline) EWKB() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(l.lineString(), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geodesy: encode polyline")
	}
	return data, nil
}

// PolylineFromEWKB decodes an EWKB linestring produced by Polyline.EWKB.
func PolylineFromEWKB(data []byte) (Polyline, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Polyline{}, eris.Wrap(err, "geodesy: decode polyline")
	}
	ls, ok := g.(*geom.LineString)
	if !ok {
		return Polyline{}, eris.Errorf("geodesy: expected linestring geometry, got %T", g)
	}

	coords := ls.Coords()
	pts := make([]Point, 0, len(coords))
	for _, c := range coords {
		pts = append(pts, Point{Lat: c[1], Lon: c[0]})
	}
	return NewPolyline(pts)
}

// GeoJSON encodes the polyline as a GeoJSON LineString for transport
// payloads.
func (l Polyline) GeoJSON() ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	data, err := geojson.Marshal(l.lineString())
	if err != nil {
		return nil, eris.Wrap(err, "geodesy: encode geojson")
	}
	return data, nil
}

func (l Polyline) lineString() *geom.LineString {
	flat := make([]float64, 0, len(l.pts)*2)
	for _, p := range l.pts {
		flat = append(flat, p.Lon, p.Lat)
	}
	return geom.NewLineStringFlat(geom.XY, flat).SetSRID(srid)
}
