package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/spatial"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

// CameraInput is a candidate speed camera from any source.
type CameraInput struct {
	Point            geodesy.Point
	SpeedLimitKmh    int
	Kind             model.CameraKind
	DirectionDegrees *int
	Notes            string
	ReportedBy       string
	Source           Source
}

// CameraStore owns the speed camera index. The mutex serializes the dedup
// search-then-act region so two near-simultaneous submissions of the same
// camera cannot both create it.
type CameraStore struct {
	mu     sync.Mutex
	idx    *spatial.Index[*model.SpeedCamera]
	db     store.Store
	policy Policy
	log    *zap.Logger
}

func newCameraStore(db store.Store, pol Policy) *CameraStore {
	return &CameraStore{
		idx:    spatial.New[*model.SpeedCamera](spatial.DefaultCellDegrees),
		db:     db,
		policy: pol,
		log:    zap.L().With(zap.String("component", "catalog.cameras")),
	}
}

func (in CameraInput) validate() error {
	if err := in.Point.Validate(); err != nil {
		return invalidf("location", "%v", err)
	}
	if in.SpeedLimitKmh <= 0 || in.SpeedLimitKmh > 200 {
		return invalidf("speed_limit_kmh", "must be in (0,200], got %d", in.SpeedLimitKmh)
	}
	if !in.Kind.Valid() {
		return invalidf("camera_kind", "unknown kind %q", in.Kind)
	}
	if d := in.DirectionDegrees; d != nil && (*d < 0 || *d >= 360) {
		return invalidf("direction_degrees", "must be in [0,360), got %d", *d)
	}
	return nil
}

// Ingest creates a camera, or merges the submission as a confirmation of an
// existing camera within dedup tolerance. The returned bool is true when
// merged.
func (s *CameraStore) Ingest(ctx context.Context, in CameraInput) (*model.SpeedCamera, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if match, ok := s.idx.Nearest(in.Point, s.policy.Dedup.PointToleranceM); ok {
		merged := *match.Item
		merged.VerificationCount++
		merged.Confidence = confirmedConfidence(merged.Confidence, in.Source, s.policy.Confidence)
		if authoritative(in.Source) {
			merged.Verified = true
		}
		merged.UpdatedAt = time.Now().UTC()
		if err := s.db.SaveCamera(ctx, &merged); err != nil {
			return nil, false, err
		}
		if err := s.idx.Insert(&merged); err != nil {
			return nil, false, err
		}
		s.log.Debug("camera merged",
			zap.String("id", merged.ID),
			zap.Float64("distance_m", match.Distance),
			zap.Int("verification_count", merged.VerificationCount))
		return &merged, true, nil
	}

	now := time.Now().UTC()
	cam := &model.SpeedCamera{
		ID:               uuid.New().String(),
		Point:            in.Point,
		SpeedLimitKmh:    in.SpeedLimitKmh,
		Kind:             in.Kind,
		DirectionDegrees: in.DirectionDegrees,
		Notes:            in.Notes,
		ReportedBy:       in.ReportedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	cam.Confidence, cam.Verified, cam.VerificationCount = sourcePreset(in.Source, s.policy.Confidence)
	if err := s.db.SaveCamera(ctx, cam); err != nil {
		return nil, false, err
	}
	if err := s.idx.Insert(cam); err != nil {
		return nil, false, err
	}
	return cam, false, nil
}

// Nearby returns cameras within the radius, closest first.
func (s *CameraStore) Nearby(q NearbyQuery) ([]spatial.Match[*model.SpeedCamera], error) {
	radius, limit, err := q.resolve(s.policy.Cameras)
	if err != nil {
		return nil, err
	}
	return s.idx.Nearby(q.Center, radius, limit, func(c *model.SpeedCamera) bool {
		if c.Confidence < q.MinConfidence {
			return false
		}
		if q.VerifiedOnly && !c.Verified {
			return false
		}
		return true
	}), nil
}

// AlongRoute returns cameras within buffer meters of the route, in
// insertion order.
func (s *CameraStore) AlongRoute(route geodesy.Polyline, bufferM float64) []*model.SpeedCamera {
	return s.idx.Along(route, bufferM, nil)
}

// Get returns the camera with the given id.
func (s *CameraStore) Get(id string) (*model.SpeedCamera, error) {
	cam, ok := s.idx.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return cam, nil
}

// All returns up to limit cameras in insertion order; limit <= 0 returns
// everything.
func (s *CameraStore) All(limit int) []*model.SpeedCamera {
	return s.idx.All(limit)
}

// Count returns the number of indexed cameras.
func (s *CameraStore) Count() int {
	return s.idx.Len()
}

// Delete removes a camera. Only the original reporter may delete; imported
// and anonymous cameras cannot be deleted through the API.
func (s *CameraStore) Delete(ctx context.Context, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cam, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	if cam.ReportedBy == "" || cam.ReportedBy != requester {
		return ErrForbidden
	}
	if err := s.db.DeleteCamera(ctx, id); err != nil {
		return err
	}
	s.idx.Remove(id)
	s.log.Info("camera deleted", zap.String("id", id), zap.String("requester", requester))
	return nil
}

// Confirm records an independent confirmation of camera id.
func (s *CameraStore) Confirm(ctx context.Context, id string) error {
	return s.adjust(ctx, id, func(cam *model.SpeedCamera) {
		cam.VerificationCount++
		cam.Confidence = confirmedConfidence(cam.Confidence, SourceUser, s.policy.Confidence)
	})
}

// Contradict lowers camera id's confidence after a contradiction report.
func (s *CameraStore) Contradict(ctx context.Context, id string) error {
	return s.adjust(ctx, id, func(cam *model.SpeedCamera) {
		cam.Confidence = contradictedConfidence(cam.Confidence, s.policy.Confidence)
	})
}

// NearestID returns the closest camera within the dedup tolerance of p.
func (s *CameraStore) NearestID(p geodesy.Point, withinM float64) (string, bool) {
	match, ok := s.idx.Nearest(p, withinM)
	if !ok {
		return "", false
	}
	return match.Item.ID, true
}

func (s *CameraStore) adjust(ctx context.Context, id string, mutate func(*model.SpeedCamera)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cam, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	updated := *cam
	mutate(&updated)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.db.SaveCamera(ctx, &updated); err != nil {
		return err
	}
	return s.idx.Insert(&updated)
}

// restore re-indexes a persisted camera during catalog rebuild.
func (s *CameraStore) restore(cam *model.SpeedCamera) error {
	return s.idx.Insert(cam)
}
