package model

import (
	"time"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// HazardousRoadSegment is a stretch of road known to be dangerous:
// an accident black spot, a flooding-prone underpass, a bad surface.
type HazardousRoadSegment struct {
	ID                string           `json:"id"`
	Path              geodesy.Polyline `json:"path"`
	HazardType        string           `json:"hazard_type"`
	Severity          Severity         `json:"severity"`
	RoadName          string           `json:"road_name,omitempty"`
	SourceID          string           `json:"source_id,omitempty"` // unique when present, keys idempotent re-import
	Verified          bool             `json:"verified"`
	VerificationCount int              `json:"verification_count"`
	Confidence        float64          `json:"confidence"`
	ReportedBy        string           `json:"reported_by,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// SpatialID implements spatial.Entry.
func (s *HazardousRoadSegment) SpatialID() string { return s.ID }

// Geometry implements spatial.Entry.
func (s *HazardousRoadSegment) Geometry() geodesy.Geometry { return s.Path }

// Centroid returns the display point for the segment.
func (s *HazardousRoadSegment) Centroid() geodesy.Point { return s.Path.Centroid() }
