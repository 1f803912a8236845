package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/waypoint-labs/roadwatch/internal/model"
)

// SQLiteStore implements Store on a local file via the pure-Go
// modernc.org/sqlite driver.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Session pragmas: WAL keeps readers unblocked during writes, the busy
// timeout makes concurrent writers wait instead of erroring.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// NewSQLite opens the database at dsn, creating the file if needed.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, p := range sqlitePragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", p)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS speed_cameras (
	id                 TEXT PRIMARY KEY,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	speed_limit_kmh    INTEGER NOT NULL,
	camera_kind        TEXT NOT NULL,
	direction_degrees  INTEGER,
	verified           INTEGER NOT NULL DEFAULT 0,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         REAL NOT NULL,
	reported_by        TEXT,
	notes              TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS road_speed_limits (
	id                 TEXT PRIMARY KEY,
	path               BLOB NOT NULL,
	speed_limit_kmh    INTEGER NOT NULL,
	road_name          TEXT,
	road_type          TEXT,
	direction          TEXT NOT NULL,
	source_id          TEXT UNIQUE,
	verified           INTEGER NOT NULL DEFAULT 0,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         REAL NOT NULL,
	reported_by        TEXT,
	notes              TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS hazard_detections (
	id                 TEXT PRIMARY KEY,
	latitude           REAL NOT NULL,
	longitude          REAL NOT NULL,
	hazard_type        TEXT NOT NULL,
	severity           TEXT NOT NULL,
	is_active          INTEGER NOT NULL DEFAULT 1,
	expires_at         DATETIME,
	description        TEXT,
	image_url          TEXT,
	verified           INTEGER NOT NULL DEFAULT 0,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         REAL NOT NULL,
	detected_by        TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS hazardous_road_segments (
	id                 TEXT PRIMARY KEY,
	path               BLOB NOT NULL,
	hazard_type        TEXT NOT NULL,
	severity           TEXT NOT NULL,
	road_name          TEXT,
	source_id          TEXT UNIQUE,
	verified           INTEGER NOT NULL DEFAULT 0,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         REAL NOT NULL,
	reported_by        TEXT,
	notes              TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	source_id  TEXT,
	created_by TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (kind, source_id)
);

CREATE TABLE IF NOT EXISTS user_reports (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT,
	kind        TEXT NOT NULL,
	reason      TEXT,
	image_url   TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS import_runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	imported    INTEGER NOT NULL,
	merged      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cameras_location ON speed_cameras (latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_hazards_active ON hazard_detections (is_active);
CREATE INDEX IF NOT EXISTS idx_zones_kind ON zones (kind);
CREATE INDEX IF NOT EXISTS idx_reports_created ON user_reports (created_at);
`

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return transient(err, "sqlite: ping")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return eris.Wrap(err, "sqlite: close")
	}
	return nil
}

func (s *SQLiteStore) SaveCamera(ctx context.Context, cam *model.SpeedCamera) error {
	const q = `INSERT INTO speed_cameras (` + cameraCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			speed_limit_kmh = excluded.speed_limit_kmh,
			camera_kind = excluded.camera_kind,
			direction_degrees = excluded.direction_degrees,
			verified = excluded.verified,
			verification_count = excluded.verification_count,
			confidence = excluded.confidence,
			reported_by = excluded.reported_by,
			notes = excluded.notes,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		cam.ID, cam.Lat, cam.Lon, cam.SpeedLimitKmh, cam.Kind, nullInt(cam.DirectionDegrees),
		cam.Verified, cam.VerificationCount, cam.Confidence, nullStr(cam.ReportedBy),
		nullStr(cam.Notes), cam.CreatedAt.UTC(), cam.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "sqlite: save camera")
	}
	return nil
}

func (s *SQLiteStore) DeleteCamera(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM speed_cameras WHERE id = ?`, id)
	if err != nil {
		return transient(err, "sqlite: delete camera")
	}
	return checkRowsAffected(res, "camera", id)
}

func (s *SQLiteStore) ListCameras(ctx context.Context) ([]*model.SpeedCamera, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cameraCols+` FROM speed_cameras ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "sqlite: list cameras")
	}
	defer rows.Close()

	var out []*model.SpeedCamera
	for rows.Next() {
		cam, err := scanCamera(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cam)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list cameras")
	}
	return out, nil
}

func (s *SQLiteStore) SaveSpeedLimit(ctx context.Context, limit *model.RoadSpeedLimit) error {
	path, err := limit.Path.EWKB()
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode path for speed limit %s", limit.ID)
	}
	const q = `INSERT INTO road_speed_limits (` + limitCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			speed_limit_kmh = excluded.speed_limit_kmh,
			road_name = excluded.road_name,
			road_type = excluded.road_type,
			direction = excluded.direction,
			source_id = excluded.source_id,
			verified = excluded.verified,
			verification_count = excluded.verification_count,
			confidence = excluded.confidence,
			reported_by = excluded.reported_by,
			notes = excluded.notes,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, q,
		limit.ID, path, limit.SpeedLimitKmh, nullStr(limit.RoadName), nullStr(limit.RoadType),
		limit.Direction, nullStr(limit.SourceID), limit.Verified, limit.VerificationCount,
		limit.Confidence, nullStr(limit.ReportedBy), nullStr(limit.Notes),
		limit.CreatedAt.UTC(), limit.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "sqlite: save speed limit")
	}
	return nil
}

func (s *SQLiteStore) DeleteSpeedLimit(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM road_speed_limits WHERE id = ?`, id)
	if err != nil {
		return transient(err, "sqlite: delete speed limit")
	}
	return checkRowsAffected(res, "speed limit", id)
}

func (s *SQLiteStore) ListSpeedLimits(ctx context.Context) ([]*model.RoadSpeedLimit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+limitCols+` FROM road_speed_limits ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "sqlite: list speed limits")
	}
	defer rows.Close()

	var out []*model.RoadSpeedLimit
	for rows.Next() {
		limit, err := scanSpeedLimit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, limit)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list speed limits")
	}
	return out, nil
}

func (s *SQLiteStore) SaveHazard(ctx context.Context, h *model.HazardDetection) error {
	const q = `INSERT INTO hazard_detections (` + hazardCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			hazard_type = excluded.hazard_type,
			severity = excluded.severity,
			is_active = excluded.is_active,
			expires_at = excluded.expires_at,
			description = excluded.description,
			image_url = excluded.image_url,
			verified = excluded.verified,
			verification_count = excluded.verification_count,
			confidence = excluded.confidence,
			detected_by = excluded.detected_by,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		h.ID, h.Lat, h.Lon, h.HazardType, h.Severity, h.IsActive, nullTime(h.ExpiresAt),
		nullStr(h.Description), nullStr(h.ImageURL), h.Verified, h.VerificationCount,
		h.Confidence, nullStr(h.DetectedBy), h.CreatedAt.UTC(), h.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "sqlite: save hazard")
	}
	return nil
}

func (s *SQLiteStore) DeleteHazard(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hazard_detections WHERE id = ?`, id)
	if err != nil {
		return transient(err, "sqlite: delete hazard")
	}
	return checkRowsAffected(res, "hazard", id)
}

func (s *SQLiteStore) ListHazards(ctx context.Context) ([]*model.HazardDetection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+hazardCols+` FROM hazard_detections ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "sqlite: list hazards")
	}
	defer rows.Close()

	var out []*model.HazardDetection
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list hazards")
	}
	return out, nil
}

func (s *SQLiteStore) SaveSegment(ctx context.Context, seg *model.HazardousRoadSegment) error {
	path, err := seg.Path.EWKB()
	if err != nil {
		return eris.Wrapf(err, "sqlite: encode path for segment %s", seg.ID)
	}
	const q = `INSERT INTO hazardous_road_segments (` + segmentCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			path = excluded.path,
			hazard_type = excluded.hazard_type,
			severity = excluded.severity,
			road_name = excluded.road_name,
			source_id = excluded.source_id,
			verified = excluded.verified,
			verification_count = excluded.verification_count,
			confidence = excluded.confidence,
			reported_by = excluded.reported_by,
			notes = excluded.notes,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, q,
		seg.ID, path, seg.HazardType, seg.Severity, nullStr(seg.RoadName), nullStr(seg.SourceID),
		seg.Verified, seg.VerificationCount, seg.Confidence, nullStr(seg.ReportedBy),
		nullStr(seg.Notes), seg.CreatedAt.UTC(), seg.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "sqlite: save segment")
	}
	return nil
}

func (s *SQLiteStore) DeleteSegment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM hazardous_road_segments WHERE id = ?`, id)
	if err != nil {
		return transient(err, "sqlite: delete segment")
	}
	return checkRowsAffected(res, "segment", id)
}

func (s *SQLiteStore) ListSegments(ctx context.Context) ([]*model.HazardousRoadSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+segmentCols+` FROM hazardous_road_segments ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "sqlite: list segments")
	}
	defer rows.Close()

	var out []*model.HazardousRoadSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list segments")
	}
	return out, nil
}

func (s *SQLiteStore) SaveZone(ctx context.Context, z *model.Zone) error {
	const q = `INSERT INTO zones (` + zoneCols + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			name = excluded.name,
			address = excluded.address,
			source_id = excluded.source_id,
			created_by = excluded.created_by,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		z.ID, z.Kind, z.Lat, z.Lon, z.Name, z.Address, nullStr(z.SourceID),
		nullStr(z.CreatedBy), z.CreatedAt.UTC(), z.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "sqlite: save zone")
	}
	return nil
}

func (s *SQLiteStore) DeleteZone(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return transient(err, "sqlite: delete zone")
	}
	return checkRowsAffected(res, "zone", id)
}

func (s *SQLiteStore) ListZones(ctx context.Context) ([]*model.Zone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+zoneCols+` FROM zones ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "sqlite: list zones")
	}
	defer rows.Close()

	var out []*model.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list zones")
	}
	return out, nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, r *model.UserReport) error {
	const q = `INSERT INTO user_reports (` + reportCols + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		r.ID, r.UserID, r.Lat, r.Lon, r.TargetType, nullStr(r.TargetID), r.Kind,
		nullStr(r.Reason), nullStr(r.ImageURL), r.CreatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "sqlite: save report")
	}
	return nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]*model.UserReport, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportCols+` FROM user_reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, transient(err, "sqlite: list reports")
	}
	defer rows.Close()

	var out []*model.UserReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list reports")
	}
	return out, nil
}

func (s *SQLiteStore) RecordImport(ctx context.Context, run *model.ImportRun) error {
	const q = `INSERT INTO import_runs (` + importCols + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.Source, run.Imported, run.Merged, run.Skipped, run.Failed,
		run.StartedAt.UTC(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return transient(err, "sqlite: record import")
	}
	return nil
}

func (s *SQLiteStore) ListImports(ctx context.Context, limit int) ([]*model.ImportRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+importCols+` FROM import_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, transient(err, "sqlite: list imports")
	}
	defer rows.Close()

	var out []*model.ImportRun
	for rows.Next() {
		run, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, transient(err, "sqlite: list imports")
	}
	return out, nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(collectionTables))
	for _, ct := range collectionTables {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+ct.table).Scan(&n); err != nil {
			return nil, transient(err, "sqlite: count "+ct.table)
		}
		counts[ct.name] = n
	}
	return counts, nil
}

// defaultListLimit caps ListReports and ListImports when the caller passes
// a non-positive limit.
const defaultListLimit = 100

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
