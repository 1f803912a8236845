package model

import (
	"time"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// Severity grades how dangerous a hazard is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether the severity is a known grade.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// HazardDetection is a transient point hazard: a pothole, debris, flooding,
// an accident. Hazards are never hard-deleted by expiry; they age out of
// active queries when ExpiresAt passes.
type HazardDetection struct {
	ID string `json:"id"`
	geodesy.Point
	HazardType        string     `json:"hazard_type"`
	Severity          Severity   `json:"severity"`
	IsActive          bool       `json:"is_active"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Description       string     `json:"description,omitempty"`
	ImageURL          string     `json:"image_url,omitempty"` // opaque reference, never fetched
	Verified          bool       `json:"verified"`
	VerificationCount int        `json:"verification_count"`
	Confidence        float64    `json:"confidence"`
	DetectedBy        string     `json:"detected_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SpatialID implements spatial.Entry.
func (h *HazardDetection) SpatialID() string { return h.ID }

// Geometry implements spatial.Entry.
func (h *HazardDetection) Geometry() geodesy.Geometry { return h.Point }

// ActiveAt reports whether the hazard counts as active at the given instant:
// flagged active and not yet expired. Expiry is evaluated at query time, not
// by background eviction.
func (h *HazardDetection) ActiveAt(now time.Time) bool {
	if !h.IsActive {
		return false
	}
	return h.ExpiresAt == nil || h.ExpiresAt.After(now)
}
