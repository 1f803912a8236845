// Package catalog is the aggregation engine: typed entity stores that keep
// a spatial index and the persistence backend in lockstep, the
// dedup/verification rules, and the combined navigation queries. All
// spatial reads are served from memory; every accepted write is persisted
// before it becomes visible in the index.
package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

// Catalog aggregates the typed entity stores over one persistence backend.
type Catalog struct {
	db     store.Store
	policy Policy
	log    *zap.Logger

	Cameras     *CameraStore
	SpeedLimits *SpeedLimitStore
	Hazards     *HazardStore
	Segments    *SegmentStore
	Zones       *ZoneStore
	Reports     *ReportService
}

// New wires the typed stores. Call Rebuild before serving queries.
func New(db store.Store, pol Policy) *Catalog {
	c := &Catalog{
		db:          db,
		policy:      pol,
		log:         zap.L().With(zap.String("component", "catalog")),
		Cameras:     newCameraStore(db, pol),
		SpeedLimits: newSpeedLimitStore(db, pol),
		Hazards:     newHazardStore(db, pol),
		Segments:    newSegmentStore(db, pol),
		Zones:       newZoneStore(db, pol),
	}
	c.Reports = newReportService(db, pol, c.Cameras, c.Hazards, c.Segments)
	return c
}

// Rebuild loads every persisted entity into the in-memory indexes. Runs at
// startup; a row that fails to index aborts the rebuild since persisted
// entities were validated on the way in.
func (c *Catalog) Rebuild(ctx context.Context) error {
	start := time.Now()

	cams, err := c.db.ListCameras(ctx)
	if err != nil {
		return err
	}
	for _, cam := range cams {
		if err := c.Cameras.restore(cam); err != nil {
			return err
		}
	}

	limits, err := c.db.ListSpeedLimits(ctx)
	if err != nil {
		return err
	}
	for _, l := range limits {
		if err := c.SpeedLimits.restore(l); err != nil {
			return err
		}
	}

	hazards, err := c.db.ListHazards(ctx)
	if err != nil {
		return err
	}
	for _, h := range hazards {
		if err := c.Hazards.restore(h); err != nil {
			return err
		}
	}

	segments, err := c.db.ListSegments(ctx)
	if err != nil {
		return err
	}
	for _, seg := range segments {
		if err := c.Segments.restore(seg); err != nil {
			return err
		}
	}

	zones, err := c.db.ListZones(ctx)
	if err != nil {
		return err
	}
	for _, z := range zones {
		if err := c.Zones.restore(z); err != nil {
			return err
		}
	}

	c.log.Info("catalog rebuilt",
		zap.Int("cameras", len(cams)),
		zap.Int("speed_limits", len(limits)),
		zap.Int("hazards", len(hazards)),
		zap.Int("segments", len(segments)),
		zap.Int("zones", len(zones)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Policy returns the rule set the catalog was built with.
func (c *Catalog) Policy() Policy {
	return c.policy
}

// NearbyQuery bounds a radius search. Zero radius and limit take the
// per-type policy defaults; out-of-range values are rejected, never
// clamped.
type NearbyQuery struct {
	Center        geodesy.Point
	RadiusM       float64
	Limit         int
	MinConfidence float64
	VerifiedOnly  bool
	ActiveOnly    bool
}

// resolve applies defaults and bounds from pol, returning the effective
// radius and limit.
func (q NearbyQuery) resolve(pol QueryPolicy) (float64, int, error) {
	if err := q.Center.Validate(); err != nil {
		return 0, 0, invalidf("center", "%v", err)
	}
	radius := q.RadiusM
	if radius == 0 {
		radius = pol.DefaultRadiusM
	}
	if radius <= 0 {
		return 0, 0, invalidf("radius", "must be positive, got %g", q.RadiusM)
	}
	if radius > pol.MaxRadiusM {
		return 0, 0, invalidf("radius", "exceeds maximum %gm", pol.MaxRadiusM)
	}
	limit := q.Limit
	if limit == 0 {
		limit = pol.DefaultLimit
	}
	if limit < 0 {
		return 0, 0, invalidf("limit", "must be positive, got %d", q.Limit)
	}
	if limit > pol.MaxLimit {
		return 0, 0, invalidf("limit", "exceeds maximum %d", pol.MaxLimit)
	}
	if q.MinConfidence < 0 || q.MinConfidence > 1 {
		return 0, 0, invalidf("min_confidence", "must be in [0,1], got %g", q.MinConfidence)
	}
	return radius, limit, nil
}
