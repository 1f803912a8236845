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

// HazardInput is a candidate transient hazard. Confidence is honored only
// for SourceDetect, where the detector's own score seeds the entity.
type HazardInput struct {
	Point       geodesy.Point
	HazardType  string
	Severity    model.Severity
	Description string
	ImageURL    string
	ExpiresAt   *time.Time
	DetectedBy  string
	Source      Source
	Confidence  float64
}

// HazardStore owns the transient hazard index.
type HazardStore struct {
	mu     sync.Mutex
	idx    *spatial.Index[*model.HazardDetection]
	db     store.Store
	policy Policy
	log    *zap.Logger
}

func newHazardStore(db store.Store, pol Policy) *HazardStore {
	return &HazardStore{
		idx:    spatial.New[*model.HazardDetection](spatial.DefaultCellDegrees),
		db:     db,
		policy: pol,
		log:    zap.L().With(zap.String("component", "catalog.hazards")),
	}
}

func (in HazardInput) validate() error {
	if err := in.Point.Validate(); err != nil {
		return invalidf("location", "%v", err)
	}
	if in.HazardType == "" {
		return invalidf("hazard_type", "must not be empty")
	}
	if !in.Severity.Valid() {
		return invalidf("severity", "unknown severity %q", in.Severity)
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return invalidf("confidence", "must be in [0,1], got %g", in.Confidence)
	}
	return nil
}

// Ingest creates a hazard, or merges the submission as a confirmation of an
// existing hazard within dedup tolerance. The returned bool is true when
// merged.
func (s *HazardStore) Ingest(ctx context.Context, in HazardInput) (*model.HazardDetection, bool, error) {
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
		if err := s.db.SaveHazard(ctx, &merged); err != nil {
			return nil, false, err
		}
		if err := s.idx.Insert(&merged); err != nil {
			return nil, false, err
		}
		s.log.Debug("hazard merged",
			zap.String("id", merged.ID),
			zap.String("hazard_type", merged.HazardType),
			zap.Float64("distance_m", match.Distance))
		return &merged, true, nil
	}

	now := time.Now().UTC()
	h := &model.HazardDetection{
		ID:          uuid.New().String(),
		Point:       in.Point,
		HazardType:  in.HazardType,
		Severity:    in.Severity,
		IsActive:    true,
		ExpiresAt:   in.ExpiresAt,
		Description: in.Description,
		ImageURL:    in.ImageURL,
		DetectedBy:  in.DetectedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	h.Confidence, h.Verified, h.VerificationCount = sourcePreset(in.Source, s.policy.Confidence)
	if in.Source == SourceDetect {
		h.Confidence = in.Confidence
	}
	if err := s.db.SaveHazard(ctx, h); err != nil {
		return nil, false, err
	}
	if err := s.idx.Insert(h); err != nil {
		return nil, false, err
	}
	return h, false, nil
}

// Nearby returns hazards within the radius, closest first. ActiveOnly
// evaluates expiry at query time, so an is_active row whose expires_at has
// passed is excluded without any background sweep.
func (s *HazardStore) Nearby(q NearbyQuery) ([]spatial.Match[*model.HazardDetection], error) {
	radius, limit, err := q.resolve(s.policy.Hazards)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return s.idx.Nearby(q.Center, radius, limit, func(h *model.HazardDetection) bool {
		if q.ActiveOnly && !h.ActiveAt(now) {
			return false
		}
		if h.Confidence < q.MinConfidence {
			return false
		}
		if q.VerifiedOnly && !h.Verified {
			return false
		}
		return true
	}), nil
}

// AlongRoute returns hazards active at query time within buffer meters of
// the route. Results carry no ordering guarantee.
func (s *HazardStore) AlongRoute(route geodesy.Polyline, bufferM float64) []*model.HazardDetection {
	now := time.Now().UTC()
	return s.idx.Along(route, bufferM, func(h *model.HazardDetection) bool {
		return h.ActiveAt(now)
	})
}

// Get returns the hazard with the given id.
func (s *HazardStore) Get(id string) (*model.HazardDetection, error) {
	h, ok := s.idx.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// All returns up to limit hazards in insertion order.
func (s *HazardStore) All(limit int) []*model.HazardDetection {
	return s.idx.All(limit)
}

// Count returns the number of indexed hazards, expired ones included.
func (s *HazardStore) Count() int {
	return s.idx.Len()
}

// ActiveCount returns the hazards that are live right now.
func (s *HazardStore) ActiveCount() int {
	now := time.Now().UTC()
	n := 0
	for _, h := range s.idx.All(0) {
		if h.ActiveAt(now) {
			n++
		}
	}
	return n
}

// Delete removes a hazard; only its detector/reporter may delete it.
func (s *HazardStore) Delete(ctx context.Context, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	if h.DetectedBy == "" || h.DetectedBy != requester {
		return ErrForbidden
	}
	if err := s.db.DeleteHazard(ctx, id); err != nil {
		return err
	}
	s.idx.Remove(id)
	return nil
}

// Confirm records an independent confirmation of hazard id.
func (s *HazardStore) Confirm(ctx context.Context, id string) error {
	return s.adjust(ctx, id, func(h *model.HazardDetection) {
		h.VerificationCount++
		h.Confidence = confirmedConfidence(h.Confidence, SourceUser, s.policy.Confidence)
	})
}

// Contradict lowers hazard id's confidence after a contradiction report.
func (s *HazardStore) Contradict(ctx context.Context, id string) error {
	return s.adjust(ctx, id, func(h *model.HazardDetection) {
		h.Confidence = contradictedConfidence(h.Confidence, s.policy.Confidence)
	})
}

// NearestID returns the closest hazard within the dedup tolerance of p.
func (s *HazardStore) NearestID(p geodesy.Point, withinM float64) (string, bool) {
	match, ok := s.idx.Nearest(p, withinM)
	if !ok {
		return "", false
	}
	return match.Item.ID, true
}

func (s *HazardStore) adjust(ctx context.Context, id string, mutate func(*model.HazardDetection)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	updated := *h
	mutate(&updated)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.db.SaveHazard(ctx, &updated); err != nil {
		return err
	}
	return s.idx.Insert(&updated)
}

// restore re-indexes a persisted hazard during catalog rebuild.
func (s *HazardStore) restore(h *model.HazardDetection) error {
	return s.idx.Insert(h)
}
