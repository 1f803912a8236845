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

// SpeedLimitInput is a candidate speed limit polyline from any source.
type SpeedLimitInput struct {
	Path          geodesy.Polyline
	SpeedLimitKmh int
	RoadName      string
	RoadType      string
	Direction     model.TravelDirection
	SourceID      string
	Notes         string
	ReportedBy    string
	Source        Source
}

// SpeedLimitStore owns the road speed limit index. Polyline dedup keys on
// the external source id; there is no line-geometry matching.
type SpeedLimitStore struct {
	mu       sync.Mutex
	idx      *spatial.Index[*model.RoadSpeedLimit]
	bySource map[string]string
	db       store.Store
	policy   Policy
	log      *zap.Logger
}

func newSpeedLimitStore(db store.Store, pol Policy) *SpeedLimitStore {
	return &SpeedLimitStore{
		idx:      spatial.New[*model.RoadSpeedLimit](spatial.DefaultCellDegrees),
		bySource: make(map[string]string),
		db:       db,
		policy:   pol,
		log:      zap.L().With(zap.String("component", "catalog.speedlimits")),
	}
}

func (in SpeedLimitInput) validate() error {
	if err := in.Path.Validate(); err != nil {
		return invalidf("path", "%v", err)
	}
	if in.SpeedLimitKmh <= 0 || in.SpeedLimitKmh > 200 {
		return invalidf("speed_limit_kmh", "must be in (0,200], got %d", in.SpeedLimitKmh)
	}
	if !in.Direction.Valid() {
		return invalidf("direction", "unknown direction %q", in.Direction)
	}
	return nil
}

// Ingest creates a speed limit, or merges the submission as a confirmation
// when its source id already exists. The returned bool is true when merged.
func (s *SpeedLimitStore) Ingest(ctx context.Context, in SpeedLimitInput) (*model.RoadSpeedLimit, bool, error) {
	if err := in.validate(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.SourceID != "" {
		if id, ok := s.bySource[in.SourceID]; ok {
			existing, found := s.idx.Get(id)
			if !found {
				return nil, false, ErrNotFound
			}
			merged := *existing
			merged.VerificationCount++
			merged.Confidence = confirmedConfidence(merged.Confidence, in.Source, s.policy.Confidence)
			if authoritative(in.Source) {
				merged.Verified = true
			}
			merged.UpdatedAt = time.Now().UTC()
			if err := s.db.SaveSpeedLimit(ctx, &merged); err != nil {
				return nil, false, err
			}
			if err := s.idx.Insert(&merged); err != nil {
				return nil, false, err
			}
			s.log.Debug("speed limit merged",
				zap.String("id", merged.ID),
				zap.String("source_id", in.SourceID))
			return &merged, true, nil
		}
	}

	now := time.Now().UTC()
	limit := &model.RoadSpeedLimit{
		ID:            uuid.New().String(),
		Path:          in.Path,
		SpeedLimitKmh: in.SpeedLimitKmh,
		RoadName:      in.RoadName,
		RoadType:      in.RoadType,
		Direction:     in.Direction,
		SourceID:      in.SourceID,
		Notes:         in.Notes,
		ReportedBy:    in.ReportedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	limit.Confidence, limit.Verified, limit.VerificationCount = sourcePreset(in.Source, s.policy.Confidence)
	if err := s.db.SaveSpeedLimit(ctx, limit); err != nil {
		return nil, false, err
	}
	if err := s.idx.Insert(limit); err != nil {
		return nil, false, err
	}
	if in.SourceID != "" {
		s.bySource[in.SourceID] = limit.ID
	}
	return limit, false, nil
}

// Nearby returns speed limits whose polyline passes within the radius,
// closest first. Distance is to the nearest segment, not the centroid.
func (s *SpeedLimitStore) Nearby(q NearbyQuery) ([]spatial.Match[*model.RoadSpeedLimit], error) {
	radius, limit, err := q.resolve(s.policy.SpeedLimits)
	if err != nil {
		return nil, err
	}
	return s.idx.Nearby(q.Center, radius, limit, func(l *model.RoadSpeedLimit) bool {
		return l.Confidence >= q.MinConfidence && (!q.VerifiedOnly || l.Verified)
	}), nil
}

// AlongRoute returns speed limits within buffer meters of the route.
func (s *SpeedLimitStore) AlongRoute(route geodesy.Polyline, bufferM float64) []*model.RoadSpeedLimit {
	return s.idx.Along(route, bufferM, nil)
}

// Get returns the speed limit with the given id.
func (s *SpeedLimitStore) Get(id string) (*model.RoadSpeedLimit, error) {
	l, ok := s.idx.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

// All returns up to limit speed limits in insertion order.
func (s *SpeedLimitStore) All(limit int) []*model.RoadSpeedLimit {
	return s.idx.All(limit)
}

// Count returns the number of indexed speed limits.
func (s *SpeedLimitStore) Count() int {
	return s.idx.Len()
}

// Delete removes a speed limit; reporter-only, like cameras.
func (s *SpeedLimitStore) Delete(ctx context.Context, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	if l.ReportedBy == "" || l.ReportedBy != requester {
		return ErrForbidden
	}
	if err := s.db.DeleteSpeedLimit(ctx, id); err != nil {
		return err
	}
	s.idx.Remove(id)
	if l.SourceID != "" {
		delete(s.bySource, l.SourceID)
	}
	return nil
}

// restore re-indexes a persisted speed limit during catalog rebuild.
func (s *SpeedLimitStore) restore(l *model.RoadSpeedLimit) error {
	if err := s.idx.Insert(l); err != nil {
		return err
	}
	if l.SourceID != "" {
		s.bySource[l.SourceID] = l.ID
	}
	return nil
}
