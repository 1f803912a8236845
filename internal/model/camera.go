// Package model defines the road-safety entities shared by the catalog,
// persistence, import, and transport layers.
package model

import (
	"time"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// CameraKind classifies how a speed camera measures traffic.
type CameraKind string

const (
	CameraFixed        CameraKind = "fixed"
	CameraMobile       CameraKind = "mobile"
	CameraAverageSpeed CameraKind = "average_speed"
)

// Valid reports whether the kind is a known camera kind.
func (k CameraKind) Valid() bool {
	switch k {
	case CameraFixed, CameraMobile, CameraAverageSpeed:
		return true
	}
	return false
}

// SpeedCamera is a fixed point enforcement device reported by users or
// imported from a registry.
type SpeedCamera struct {
	ID string `json:"id"`
	geodesy.Point
	SpeedLimitKmh     int        `json:"speed_limit_kmh"`
	Kind              CameraKind `json:"camera_kind"`
	DirectionDegrees  *int       `json:"direction_degrees,omitempty"` // facing direction, [0,360)
	Verified          bool       `json:"verified"`
	VerificationCount int        `json:"verification_count"`
	Confidence        float64    `json:"confidence"`
	ReportedBy        string     `json:"reported_by,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SpatialID implements spatial.Entry.
func (c *SpeedCamera) SpatialID() string { return c.ID }

// Geometry implements spatial.Entry.
func (c *SpeedCamera) Geometry() geodesy.Geometry { return c.Point }
