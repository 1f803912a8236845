// Package store persists road-safety entities. The stores are deliberately
// dumb: upsert-by-id writes and full-table reads. All spatial querying and
// dedup logic lives in the catalog, which rebuilds its in-memory indexes
// from List calls at startup. Backend failures surface as transient errors
// so ingestion can retry individual records.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/resilience"
)

// Store is the persistence contract shared by the SQLite and Postgres
// backends.
type Store interface {
	// Cameras
	SaveCamera(ctx context.Context, cam *model.SpeedCamera) error
	DeleteCamera(ctx context.Context, id string) error
	ListCameras(ctx context.Context) ([]*model.SpeedCamera, error)

	// Road speed limits
	SaveSpeedLimit(ctx context.Context, limit *model.RoadSpeedLimit) error
	DeleteSpeedLimit(ctx context.Context, id string) error
	ListSpeedLimits(ctx context.Context) ([]*model.RoadSpeedLimit, error)

	// Hazard detections
	SaveHazard(ctx context.Context, h *model.HazardDetection) error
	DeleteHazard(ctx context.Context, id string) error
	ListHazards(ctx context.Context) ([]*model.HazardDetection, error)

	// Hazardous road segments
	SaveSegment(ctx context.Context, seg *model.HazardousRoadSegment) error
	DeleteSegment(ctx context.Context, id string) error
	ListSegments(ctx context.Context) ([]*model.HazardousRoadSegment, error)

	// School and hospital zones
	SaveZone(ctx context.Context, z *model.Zone) error
	DeleteZone(ctx context.Context, id string) error
	ListZones(ctx context.Context) ([]*model.Zone, error)

	// User reports, append-only
	SaveReport(ctx context.Context, r *model.UserReport) error
	ListReports(ctx context.Context, limit int) ([]*model.UserReport, error)

	// Import history
	RecordImport(ctx context.Context, run *model.ImportRun) error
	ListImports(ctx context.Context, limit int) ([]*model.ImportRun, error)

	// Counts returns live row counts keyed by collection name.
	Counts(ctx context.Context) (map[string]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Collection names used as Counts keys.
const (
	CollectionCameras     = "cameras"
	CollectionSpeedLimits = "speed_limits"
	CollectionHazards     = "hazards"
	CollectionSegments    = "hazard_segments"
	CollectionZones       = "zones"
	CollectionReports     = "reports"
)

// collectionTables maps collection names to their backing tables, in the
// fixed order Counts iterates them.
var collectionTables = []struct {
	name  string
	table string
}{
	{CollectionCameras, "speed_cameras"},
	{CollectionSpeedLimits, "road_speed_limits"},
	{CollectionHazards, "hazard_detections"},
	{CollectionSegments, "hazardous_road_segments"},
	{CollectionZones, "zones"},
	{CollectionReports, "user_reports"},
}

// transient marks a backend failure as retryable so per-record import
// retries can take another pass at it.
func transient(err error, msg string) error {
	return resilience.NewTransientError(eris.Wrap(err, msg), 0)
}
