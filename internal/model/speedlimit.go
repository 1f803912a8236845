package model

import (
	"time"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// TravelDirection says which direction of travel a speed limit applies to.
type TravelDirection string

const (
	DirectionForward  TravelDirection = "forward"
	DirectionBackward TravelDirection = "backward"
	DirectionBoth     TravelDirection = "both"
)

// Valid reports whether the direction is a known travel direction.
func (d TravelDirection) Valid() bool {
	switch d {
	case DirectionForward, DirectionBackward, DirectionBoth:
		return true
	}
	return false
}

// RoadSpeedLimit is a posted limit along a stretch of road.
type RoadSpeedLimit struct {
	ID                string           `json:"id"`
	Path              geodesy.Polyline `json:"path"`
	SpeedLimitKmh     int              `json:"speed_limit_kmh"`
	RoadName          string           `json:"road_name,omitempty"`
	RoadType          string           `json:"road_type,omitempty"`
	Direction         TravelDirection  `json:"direction"`
	SourceID          string           `json:"source_id,omitempty"` // e.g. osm-way-123, unique when present
	Verified          bool             `json:"verified"`
	VerificationCount int              `json:"verification_count"`
	Confidence        float64          `json:"confidence"`
	ReportedBy        string           `json:"reported_by,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// SpatialID implements spatial.Entry.
func (l *RoadSpeedLimit) SpatialID() string { return l.ID }

// Geometry implements spatial.Entry.
func (l *RoadSpeedLimit) Geometry() geodesy.Geometry { return l.Path }

// Centroid returns the display point for the segment.
func (l *RoadSpeedLimit) Centroid() geodesy.Point { return l.Path.Centroid() }
