// Package monitoring builds point-in-time metrics snapshots of the road
// safety catalog for the status command and the /api/status endpoint.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

// MetricsSnapshot holds a point-in-time view of the catalog.
type MetricsSnapshot struct {
	Cameras             int     `json:"cameras"`
	CamerasVerified     int     `json:"cameras_verified"`
	CameraAvgConfidence float64 `json:"camera_avg_confidence"`
	SpeedLimits         int     `json:"speed_limits"`
	Hazards             int     `json:"hazards"`
	HazardsActive       int     `json:"hazards_active"`
	HazardousSegments   int     `json:"hazardous_segments"`
	SchoolZones         int     `json:"school_zones"`
	HospitalZones       int     `json:"hospital_zones"`

	// RecentImports lists the latest import_log rows, newest first.
	RecentImports []*model.ImportRun `json:"recent_imports,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the catalog and the import log.
type Collector struct {
	cat *catalog.Catalog
	db  store.Store
}

// NewCollector creates a metrics collector. db may be nil, in which case
// the snapshot carries no import history.
func NewCollector(cat *catalog.Catalog, db store.Store) *Collector {
	return &Collector{cat: cat, db: db}
}

// Collect gathers a snapshot of catalog metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Cameras:           c.cat.Cameras.Count(),
		SpeedLimits:       c.cat.SpeedLimits.Count(),
		Hazards:           c.cat.Hazards.Count(),
		HazardsActive:     c.cat.Hazards.ActiveCount(),
		HazardousSegments: c.cat.Segments.Count(),
		SchoolZones:       c.cat.Zones.CountKind(model.ZoneSchool),
		HospitalZones:     c.cat.Zones.CountKind(model.ZoneHospital),
		CollectedAt:       time.Now().UTC(),
	}

	var confidenceSum float64
	for _, cam := range c.cat.Cameras.All(0) {
		if cam.Verified {
			snap.CamerasVerified++
		}
		confidenceSum += cam.Confidence
	}
	if snap.Cameras > 0 {
		snap.CameraAvgConfidence = confidenceSum / float64(snap.Cameras)
	}

	if c.db != nil {
		runs, err := c.db.ListImports(ctx, 10)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list imports")
		}
		snap.RecentImports = runs
	}

	return snap, nil
}
