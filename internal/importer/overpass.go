package importer

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// overpassResponse is the JSON envelope returned by the Overpass API.
type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// overpassElement is a node or way. Lat and Lon are pointers because ways
// carry no point of their own and malformed nodes omit theirs.
type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Lat      *float64          `json:"lat"`
	Lon      *float64          `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Geometry []overpassPoint   `json:"geometry"`
}

type overpassPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// tag returns the first non-empty value among the given tag keys.
func (e overpassElement) tag(keys ...string) string {
	for _, k := range keys {
		if v := e.Tags[k]; v != "" {
			return v
		}
	}
	return ""
}

// line builds a polyline from a way's inline geometry.
func (e overpassElement) line() (geodesy.Polyline, error) {
	if len(e.Geometry) < 2 {
		return geodesy.Polyline{}, eris.Errorf("importer: way %d has %d geometry points", e.ID, len(e.Geometry))
	}
	pts := make([]geodesy.Point, len(e.Geometry))
	for i, g := range e.Geometry {
		pts[i] = geodesy.Point{Lat: g.Lat, Lon: g.Lon}
	}
	return geodesy.NewPolyline(pts)
}

// parseMaxspeed extracts the numeric part of an OSM maxspeed tag by
// concatenating every digit: "60" and "60 km/h" become 60, while values like
// "60;80" collapse to 6080 and fall outside (0, 200], so they are rejected
// as noise.
func parseMaxspeed(raw string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return 0, false
	}
	v, err := strconv.Atoi(digits)
	if err != nil || v <= 0 || v > 200 {
		return 0, false
	}
	return v, true
}
