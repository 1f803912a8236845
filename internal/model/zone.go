package model

import (
	"time"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
)

// ZoneKind separates the two protected-zone collections.
type ZoneKind string

const (
	ZoneSchool   ZoneKind = "school"
	ZoneHospital ZoneKind = "hospital"
)

// Valid reports whether the kind is a known zone kind.
func (k ZoneKind) Valid() bool {
	return k == ZoneSchool || k == ZoneHospital
}

// Zone is a school or hospital zone. Zones are facts from structured
// datasets, not confidence-scored observations: re-import of a known
// external id is always a skip, never a merge.
type Zone struct {
	ID string `json:"id"`
	geodesy.Point
	Kind      ZoneKind  `json:"kind"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	SourceID  string    `json:"source_id,omitempty"` // e.g. osm-node-123, unique when present
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpatialID implements spatial.Entry.
func (z *Zone) SpatialID() string { return z.ID }

// Geometry implements spatial.Entry.
func (z *Zone) Geometry() geodesy.Geometry { return z.Point }
