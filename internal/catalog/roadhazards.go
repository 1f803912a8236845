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

// SegmentInput is a candidate hazardous road segment.
type SegmentInput struct {
	Path       geodesy.Polyline
	HazardType string
	Severity   model.Severity
	RoadName   string
	SourceID   string
	Notes      string
	ReportedBy string
	Source     Source
}

// SegmentStore owns the hazardous road segment index. Like speed limits,
// dedup keys on the external source id.
type SegmentStore struct {
	mu       sync.Mutex
	idx      *spatial.Index[*model.HazardousRoadSegment]
	bySource map[string]string
	db       store.Store
	policy   Policy
	log      *zap.Logger
}

func newSegmentStore(db store.Store, pol Policy) *SegmentStore {
	return &SegmentStore{
		idx:      spatial.New[*model.HazardousRoadSegment](spatial.DefaultCellDegrees),
		bySource: make(map[string]string),
		db:       db,
		policy:   pol,
		log:      zap.L().With(zap.String("component", "catalog.segments")),
	}
}

func (in SegmentInput) validate() error {
	if err := in.Path.Validate(); err != nil {
		return invalidf("path", "%v", err)
	}
	if in.HazardType == "" {
		return invalidf("hazard_type", "must not be empty")
	}
	if !in.Severity.Valid() {
		return invalidf("severity", "unknown severity %q", in.Severity)
	}
	return nil
}

// Ingest creates a segment, or merges the submission as a confirmation when
// its source id already exists. The returned bool is true when merged.
func (s *SegmentStore) Ingest(ctx context.Context, in SegmentInput) (*model.HazardousRoadSegment, bool, error) {
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
			if err := s.db.SaveSegment(ctx, &merged); err != nil {
				return nil, false, err
			}
			if err := s.idx.Insert(&merged); err != nil {
				return nil, false, err
			}
			s.log.Debug("segment merged",
				zap.String("id", merged.ID),
				zap.String("source_id", in.SourceID))
			return &merged, true, nil
		}
	}

	now := time.Now().UTC()
	seg := &model.HazardousRoadSegment{
		ID:         uuid.New().String(),
		Path:       in.Path,
		HazardType: in.HazardType,
		Severity:   in.Severity,
		RoadName:   in.RoadName,
		SourceID:   in.SourceID,
		Notes:      in.Notes,
		ReportedBy: in.ReportedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	seg.Confidence, seg.Verified, seg.VerificationCount = sourcePreset(in.Source, s.policy.Confidence)
	if err := s.db.SaveSegment(ctx, seg); err != nil {
		return nil, false, err
	}
	if err := s.idx.Insert(seg); err != nil {
		return nil, false, err
	}
	if in.SourceID != "" {
		s.bySource[in.SourceID] = seg.ID
	}
	return seg, false, nil
}

// Nearby returns segments whose polyline passes within the radius, closest
// first.
func (s *SegmentStore) Nearby(q NearbyQuery) ([]spatial.Match[*model.HazardousRoadSegment], error) {
	radius, limit, err := q.resolve(s.policy.Segments)
	if err != nil {
		return nil, err
	}
	return s.idx.Nearby(q.Center, radius, limit, func(seg *model.HazardousRoadSegment) bool {
		return seg.Confidence >= q.MinConfidence && (!q.VerifiedOnly || seg.Verified)
	}), nil
}

// AlongRoute returns segments within buffer meters of the route. Results
// carry no ordering guarantee.
func (s *SegmentStore) AlongRoute(route geodesy.Polyline, bufferM float64) []*model.HazardousRoadSegment {
	return s.idx.Along(route, bufferM, nil)
}

// Get returns the segment with the given id.
func (s *SegmentStore) Get(id string) (*model.HazardousRoadSegment, error) {
	seg, ok := s.idx.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return seg, nil
}

// All returns up to limit segments in insertion order.
func (s *SegmentStore) All(limit int) []*model.HazardousRoadSegment {
	return s.idx.All(limit)
}

// Count returns the number of indexed segments.
func (s *SegmentStore) Count() int {
	return s.idx.Len()
}

// Delete removes a segment; reporter-only.
func (s *SegmentStore) Delete(ctx context.Context, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	if seg.ReportedBy == "" || seg.ReportedBy != requester {
		return ErrForbidden
	}
	if err := s.db.DeleteSegment(ctx, id); err != nil {
		return err
	}
	s.idx.Remove(id)
	if seg.SourceID != "" {
		delete(s.bySource, seg.SourceID)
	}
	return nil
}

// Confirm records an independent confirmation of segment id.
func (s *SegmentStore) Confirm(ctx context.Context, id string) error {
	return s.adjust(ctx, id, func(seg *model.HazardousRoadSegment) {
		seg.VerificationCount++
		seg.Confidence = confirmedConfidence(seg.Confidence, SourceUser, s.policy.Confidence)
	})
}

// Contradict lowers segment id's confidence after a contradiction report.
func (s *SegmentStore) Contradict(ctx context.Context, id string) error {
	return s.adjust(ctx, id, func(seg *model.HazardousRoadSegment) {
		seg.Confidence = contradictedConfidence(seg.Confidence, s.policy.Confidence)
	})
}

// NearestID returns the closest segment within the dedup tolerance of p.
// Distance is to the segment's polyline, not its centroid.
func (s *SegmentStore) NearestID(p geodesy.Point, withinM float64) (string, bool) {
	match, ok := s.idx.Nearest(p, withinM)
	if !ok {
		return "", false
	}
	return match.Item.ID, true
}

func (s *SegmentStore) adjust(ctx context.Context, id string, mutate func(*model.HazardousRoadSegment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	updated := *seg
	mutate(&updated)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.db.SaveSegment(ctx, &updated); err != nil {
		return err
	}
	return s.idx.Insert(&updated)
}

// restore re-indexes a persisted segment during catalog rebuild.
func (s *SegmentStore) restore(seg *model.HazardousRoadSegment) error {
	if err := s.idx.Insert(seg); err != nil {
		return err
	}
	if seg.SourceID != "" {
		s.bySource[seg.SourceID] = seg.ID
	}
	return nil
}
