package model

import (
	"time"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// TargetType names the entity collection a user report is about.
type TargetType string

const (
	TargetCamera     TargetType = "camera"
	TargetHazard     TargetType = "hazard"
	TargetHazardRoad TargetType = "hazard_road"
	TargetZone       TargetType = "zone"
)

// Valid reports whether the target type is known.
func (t TargetType) Valid() bool {
	switch t {
	case TargetCamera, TargetHazard, TargetHazardRoad, TargetZone:
		return true
	}
	return false
}

// ReportKind says whether a report corroborates or disputes its target.
type ReportKind string

const (
	ReportConfirm    ReportKind = "confirm"
	ReportContradict ReportKind = "contradict"
)

// Valid reports whether the kind is known.
func (k ReportKind) Valid() bool {
	return k == ReportConfirm || k == ReportContradict
}

// UserReport is a free-form user observation about an existing entity.
// Reports are append-only: they are stored as submitted and never merged,
// deduplicated, or deleted. Their effect on the target's confidence is
// applied once, at submission.
type UserReport struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	geodesy.Point
	TargetType TargetType `json:"target_type"`
	TargetID   string     `json:"target_id,omitempty"` // resolved by proximity when absent
	Kind       ReportKind `json:"kind"`
	Reason     string     `json:"reason,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
