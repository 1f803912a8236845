package store

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

// scannable lets the scan helpers work over database/sql and pgx rows alike.
type scannable interface {
	Scan(dest ...any) error
}

// Canonical column lists. Scan helpers depend on this ordering.
const (
	cameraCols  = `id, latitude, longitude, speed_limit_kmh, camera_kind, direction_degrees, verified, verification_count, confidence, reported_by, notes, created_at, updated_at`
	limitCols   = `id, path, speed_limit_kmh, road_name, road_type, direction, source_id, verified, verification_count, confidence, reported_by, notes, created_at, updated_at`
	hazardCols  = `id, latitude, longitude, hazard_type, severity, is_active, expires_at, description, image_url, verified, verification_count, confidence, detected_by, created_at, updated_at`
	segmentCols = `id, path, hazard_type, severity, road_name, source_id, verified, verification_count, confidence, reported_by, notes, created_at, updated_at`
	zoneCols    = `id, kind, latitude, longitude, name, address, source_id, created_by, created_at, updated_at`
	reportCols  = `id, user_id, latitude, longitude, target_type, target_id, kind, reason, image_url, created_at`
	importCols  = `id, source, imported, merged, skipped, failed, started_at, duration_ms`
)

// nullStr maps empty strings to NULL so partial unique indexes on optional
// columns (source_id) never collide on "".
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanCamera(row scannable) (*model.SpeedCamera, error) {
	var (
		cam        model.SpeedCamera
		direction  sql.NullInt64
		reportedBy sql.NullString
		notes      sql.NullString
	)
	err := row.Scan(
		&cam.ID, &cam.Lat, &cam.Lon, &cam.SpeedLimitKmh, &cam.Kind, &direction,
		&cam.Verified, &cam.VerificationCount, &cam.Confidence, &reportedBy, &notes,
		&cam.CreatedAt, &cam.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan camera")
	}
	if direction.Valid {
		d := int(direction.Int64)
		cam.DirectionDegrees = &d
	}
	cam.ReportedBy = reportedBy.String
	cam.Notes = notes.String
	return &cam, nil
}

func scanSpeedLimit(row scannable) (*model.RoadSpeedLimit, error) {
	var (
		limit      model.RoadSpeedLimit
		path       []byte
		roadName   sql.NullString
		roadType   sql.NullString
		sourceID   sql.NullString
		reportedBy sql.NullString
		notes      sql.NullString
	)
	err := row.Scan(
		&limit.ID, &path, &limit.SpeedLimitKmh, &roadName, &roadType, &limit.Direction,
		&sourceID, &limit.Verified, &limit.VerificationCount, &limit.Confidence,
		&reportedBy, &notes, &limit.CreatedAt, &limit.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan speed limit")
	}
	limit.Path, err = geodesy.PolylineFromEWKB(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: speed limit %s path", limit.ID)
	}
	limit.RoadName = roadName.String
	limit.RoadType = roadType.String
	limit.SourceID = sourceID.String
	limit.ReportedBy = reportedBy.String
	limit.Notes = notes.String
	return &limit, nil
}

func scanHazard(row scannable) (*model.HazardDetection, error) {
	var (
		h           model.HazardDetection
		expiresAt   sql.NullTime
		description sql.NullString
		imageURL    sql.NullString
		detectedBy  sql.NullString
	)
	err := row.Scan(
		&h.ID, &h.Lat, &h.Lon, &h.HazardType, &h.Severity, &h.IsActive, &expiresAt,
		&description, &imageURL, &h.Verified, &h.VerificationCount, &h.Confidence,
		&detectedBy, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan hazard")
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		h.ExpiresAt = &t
	}
	h.Description = description.String
	h.ImageURL = imageURL.String
	h.DetectedBy = detectedBy.String
	return &h, nil
}

func scanSegment(row scannable) (*model.HazardousRoadSegment, error) {
	var (
		seg        model.HazardousRoadSegment
		path       []byte
		roadName   sql.NullString
		sourceID   sql.NullString
		reportedBy sql.NullString
		notes      sql.NullString
	)
	err := row.Scan(
		&seg.ID, &path, &seg.HazardType, &seg.Severity, &roadName, &sourceID,
		&seg.Verified, &seg.VerificationCount, &seg.Confidence, &reportedBy, &notes,
		&seg.CreatedAt, &seg.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan segment")
	}
	seg.Path, err = geodesy.PolylineFromEWKB(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: segment %s path", seg.ID)
	}
	seg.RoadName = roadName.String
	seg.SourceID = sourceID.String
	seg.ReportedBy = reportedBy.String
	seg.Notes = notes.String
	return &seg, nil
}

func scanZone(row scannable) (*model.Zone, error) {
	var (
		z         model.Zone
		sourceID  sql.NullString
		createdBy sql.NullString
	)
	err := row.Scan(
		&z.ID, &z.Kind, &z.Lat, &z.Lon, &z.Name, &z.Address, &sourceID, &createdBy,
		&z.CreatedAt, &z.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan zone")
	}
	z.SourceID = sourceID.String
	z.CreatedBy = createdBy.String
	return &z, nil
}

func scanReport(row scannable) (*model.UserReport, error) {
	var (
		r        model.UserReport
		targetID sql.NullString
		reason   sql.NullString
		imageURL sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.UserID, &r.Lat, &r.Lon, &r.TargetType, &targetID, &r.Kind,
		&reason, &imageURL, &r.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan report")
	}
	r.TargetID = targetID.String
	r.Reason = reason.String
	r.ImageURL = imageURL.String
	return &r, nil
}

func scanImportRun(row scannable) (*model.ImportRun, error) {
	var (
		run        model.ImportRun
		durationMs int64
	)
	err := row.Scan(
		&run.ID, &run.Source, &run.Imported, &run.Merged, &run.Skipped, &run.Failed,
		&run.StartedAt, &durationMs,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: scan import run")
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}
