package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig sizes the pgx connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// The hot write paths are prepared on every new connection under these
// names.
var preparedStatements = map[string]string{
	"upsert_camera": `INSERT INTO speed_cameras (` + cameraCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
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
			updated_at = excluded.updated_at`,
	"insert_report": `INSERT INTO user_reports (` + reportCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"insert_import": `INSERT INTO import_runs (` + importCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
}

// NewPostgres opens a pooled connection to connString and verifies it
// with a ping.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pc, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pc.MaxConns = 10
	pc.MinConns = 2
	if poolCfg != nil && poolCfg.MaxConns > 0 {
		pc.MaxConns = poolCfg.MaxConns
	}
	if poolCfg != nil && poolCfg.MinConns > 0 {
		pc.MinConns = poolCfg.MinConns
	}
	pc.MaxConnLifetime = 30 * time.Minute
	pc.MaxConnIdleTime = 5 * time.Minute
	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS speed_cameras (
	id                 TEXT PRIMARY KEY,
	latitude           DOUBLE PRECISION NOT NULL,
	longitude          DOUBLE PRECISION NOT NULL,
	speed_limit_kmh    INTEGER NOT NULL,
	camera_kind        TEXT NOT NULL,
	direction_degrees  INTEGER,
	verified           BOOLEAN NOT NULL DEFAULT FALSE,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         DOUBLE PRECISION NOT NULL,
	reported_by        TEXT,
	notes              TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS road_speed_limits (
	id                 TEXT PRIMARY KEY,
	path               BYTEA NOT NULL,
	speed_limit_kmh    INTEGER NOT NULL,
	road_name          TEXT,
	road_type          TEXT,
	direction          TEXT NOT NULL,
	source_id          TEXT UNIQUE,
	verified           BOOLEAN NOT NULL DEFAULT FALSE,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         DOUBLE PRECISION NOT NULL,
	reported_by        TEXT,
	notes              TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS hazard_detections (
	id                 TEXT PRIMARY KEY,
	latitude           DOUBLE PRECISION NOT NULL,
	longitude          DOUBLE PRECISION NOT NULL,
	hazard_type        TEXT NOT NULL,
	severity           TEXT NOT NULL,
	is_active          BOOLEAN NOT NULL DEFAULT TRUE,
	expires_at         TIMESTAMPTZ,
	description        TEXT,
	image_url          TEXT,
	verified           BOOLEAN NOT NULL DEFAULT FALSE,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         DOUBLE PRECISION NOT NULL,
	detected_by        TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS hazardous_road_segments (
	id                 TEXT PRIMARY KEY,
	path               BYTEA NOT NULL,
	hazard_type        TEXT NOT NULL,
	severity           TEXT NOT NULL,
	road_name          TEXT,
	source_id          TEXT UNIQUE,
	verified           BOOLEAN NOT NULL DEFAULT FALSE,
	verification_count INTEGER NOT NULL DEFAULT 0,
	confidence         DOUBLE PRECISION NOT NULL,
	reported_by        TEXT,
	notes              TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL,
	source_id  TEXT,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (kind, source_id)
);

CREATE TABLE IF NOT EXISTS user_reports (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT,
	kind        TEXT NOT NULL,
	reason      TEXT,
	image_url   TEXT,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS import_runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	imported    INTEGER NOT NULL,
	merged      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cameras_location ON speed_cameras(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_hazards_active ON hazard_detections(is_active);
CREATE INDEX IF NOT EXISTS idx_zones_kind ON zones(kind);
CREATE INDEX IF NOT EXISTS idx_reports_created ON user_reports(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT 1"); err != nil {
		return transient(err, "postgres: ping")
	}
	return nil
}

// Migrate applies the idempotent schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveCamera(ctx context.Context, cam *model.SpeedCamera) error {
	_, err := s.pool.Exec(ctx, preparedStatements["upsert_camera"],
		cam.ID, cam.Lat, cam.Lon, cam.SpeedLimitKmh, cam.Kind, nullInt(cam.DirectionDegrees),
		cam.Verified, cam.VerificationCount, cam.Confidence, nullStr(cam.ReportedBy),
		nullStr(cam.Notes), cam.CreatedAt.UTC(), cam.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "postgres: save camera")
	}
	return nil
}

func (s *PostgresStore) DeleteCamera(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM speed_cameras WHERE id = $1`, id)
	if err != nil {
		return transient(err, "postgres: delete camera")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("camera not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]*model.SpeedCamera, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+cameraCols+` FROM speed_cameras ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "postgres: list cameras")
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
		return nil, transient(err, "postgres: list cameras")
	}
	return out, nil
}

func (s *PostgresStore) SaveSpeedLimit(ctx context.Context, limit *model.RoadSpeedLimit) error {
	path, err := limit.Path.EWKB()
	if err != nil {
		return eris.Wrapf(err, "postgres: encode path for speed limit %s", limit.ID)
	}
	const q = `INSERT INTO road_speed_limits (` + limitCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
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
	_, err = s.pool.Exec(ctx, q,
		limit.ID, path, limit.SpeedLimitKmh, nullStr(limit.RoadName), nullStr(limit.RoadType),
		limit.Direction, nullStr(limit.SourceID), limit.Verified, limit.VerificationCount,
		limit.Confidence, nullStr(limit.ReportedBy), nullStr(limit.Notes),
		limit.CreatedAt.UTC(), limit.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "postgres: save speed limit")
	}
	return nil
}

func (s *PostgresStore) DeleteSpeedLimit(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM road_speed_limits WHERE id = $1`, id)
	if err != nil {
		return transient(err, "postgres: delete speed limit")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("speed limit not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListSpeedLimits(ctx context.Context) ([]*model.RoadSpeedLimit, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+limitCols+` FROM road_speed_limits ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "postgres: list speed limits")
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
		return nil, transient(err, "postgres: list speed limits")
	}
	return out, nil
}

func (s *PostgresStore) SaveHazard(ctx context.Context, h *model.HazardDetection) error {
	const q = `INSERT INTO hazard_detections (` + hazardCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
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
	_, err := s.pool.Exec(ctx, q,
		h.ID, h.Lat, h.Lon, h.HazardType, h.Severity, h.IsActive, nullTime(h.ExpiresAt),
		nullStr(h.Description), nullStr(h.ImageURL), h.Verified, h.VerificationCount,
		h.Confidence, nullStr(h.DetectedBy), h.CreatedAt.UTC(), h.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "postgres: save hazard")
	}
	return nil
}

func (s *PostgresStore) DeleteHazard(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hazard_detections WHERE id = $1`, id)
	if err != nil {
		return transient(err, "postgres: delete hazard")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("hazard not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListHazards(ctx context.Context) ([]*model.HazardDetection, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+hazardCols+` FROM hazard_detections ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "postgres: list hazards")
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
		return nil, transient(err, "postgres: list hazards")
	}
	return out, nil
}

func (s *PostgresStore) SaveSegment(ctx context.Context, seg *model.HazardousRoadSegment) error {
	path, err := seg.Path.EWKB()
	if err != nil {
		return eris.Wrapf(err, "postgres: encode path for segment %s", seg.ID)
	}
	const q = `INSERT INTO hazardous_road_segments (` + segmentCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
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
	_, err = s.pool.Exec(ctx, q,
		seg.ID, path, seg.HazardType, seg.Severity, nullStr(seg.RoadName), nullStr(seg.SourceID),
		seg.Verified, seg.VerificationCount, seg.Confidence, nullStr(seg.ReportedBy),
		nullStr(seg.Notes), seg.CreatedAt.UTC(), seg.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "postgres: save segment")
	}
	return nil
}

func (s *PostgresStore) DeleteSegment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM hazardous_road_segments WHERE id = $1`, id)
	if err != nil {
		return transient(err, "postgres: delete segment")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("segment not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListSegments(ctx context.Context) ([]*model.HazardousRoadSegment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+segmentCols+` FROM hazardous_road_segments ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "postgres: list segments")
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
		return nil, transient(err, "postgres: list segments")
	}
	return out, nil
}

func (s *PostgresStore) SaveZone(ctx context.Context, z *model.Zone) error {
	const q = `INSERT INTO zones (` + zoneCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			name = excluded.name,
			address = excluded.address,
			source_id = excluded.source_id,
			created_by = excluded.created_by,
			updated_at = excluded.updated_at`
	_, err := s.pool.Exec(ctx, q,
		z.ID, z.Kind, z.Lat, z.Lon, z.Name, z.Address, nullStr(z.SourceID),
		nullStr(z.CreatedBy), z.CreatedAt.UTC(), z.UpdatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "postgres: save zone")
	}
	return nil
}

func (s *PostgresStore) DeleteZone(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM zones WHERE id = $1`, id)
	if err != nil {
		return transient(err, "postgres: delete zone")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("zone not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListZones(ctx context.Context) ([]*model.Zone, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+zoneCols+` FROM zones ORDER BY created_at`)
	if err != nil {
		return nil, transient(err, "postgres: list zones")
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
		return nil, transient(err, "postgres: list zones")
	}
	return out, nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, r *model.UserReport) error {
	_, err := s.pool.Exec(ctx, preparedStatements["insert_report"],
		r.ID, r.UserID, r.Lat, r.Lon, r.TargetType, nullStr(r.TargetID), r.Kind,
		nullStr(r.Reason), nullStr(r.ImageURL), r.CreatedAt.UTC(),
	)
	if err != nil {
		return transient(err, "postgres: save report")
	}
	return nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]*model.UserReport, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+reportCols+` FROM user_reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, transient(err, "postgres: list reports")
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
		return nil, transient(err, "postgres: list reports")
	}
	return out, nil
}

func (s *PostgresStore) RecordImport(ctx context.Context, run *model.ImportRun) error {
	_, err := s.pool.Exec(ctx, preparedStatements["insert_import"],
		run.ID, run.Source, run.Imported, run.Merged, run.Skipped, run.Failed,
		run.StartedAt.UTC(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return transient(err, "postgres: record import")
	}
	return nil
}

func (s *PostgresStore) ListImports(ctx context.Context, limit int) ([]*model.ImportRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+importCols+` FROM import_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, transient(err, "postgres: list imports")
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
		return nil, transient(err, "postgres: list imports")
	}
	return out, nil
}

func (s *PostgresStore) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(collectionTables))
	for _, ct := range collectionTables {
		var n int
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+ct.table).Scan(&n); err != nil {
			return nil, transient(err, "postgres: count "+ct.table)
		}
		counts[ct.name] = n
	}
	return counts, nil
}
