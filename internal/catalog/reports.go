package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

// ReportInput is a user observation about an existing entity.
type ReportInput struct {
	UserID     string
	Point      geodesy.Point
	TargetType model.TargetType
	TargetID   string
	Kind       model.ReportKind
	Reason     string
	ImageURL   string
}

// ReportService appends user reports and routes their feedback to the
// target entity's confidence. Reports themselves are append-only.
type ReportService struct {
	db       store.Store
	policy   Policy
	cameras  *CameraStore
	hazards  *HazardStore
	segments *SegmentStore
	log      *zap.Logger
}

func newReportService(db store.Store, pol Policy, cameras *CameraStore, hazards *HazardStore, segments *SegmentStore) *ReportService {
	return &ReportService{
		db:       db,
		policy:   pol,
		cameras:  cameras,
		hazards:  hazards,
		segments: segments,
		log:      zap.L().With(zap.String("component", "catalog.reports")),
	}
}

func (in ReportInput) validate() error {
	if in.UserID == "" {
		return invalidf("user_id", "must not be empty")
	}
	if err := in.Point.Validate(); err != nil {
		return invalidf("location", "%v", err)
	}
	if !in.TargetType.Valid() {
		return invalidf("target_type", "unknown target type %q", in.TargetType)
	}
	if !in.Kind.Valid() {
		return invalidf("kind", "unknown report kind %q", in.Kind)
	}
	return nil
}

// Submit stores the report, then applies its feedback to the target. The
// target is the explicit id when given, otherwise the nearest entity of
// the target type within the dedup tolerance. A report that resolves no
// target is still stored; its feedback is simply dropped. Zone targets
// never receive feedback because zones carry no confidence.
func (s *ReportService) Submit(ctx context.Context, in ReportInput) (*model.UserReport, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	r := &model.UserReport{
		ID:         uuid.New().String(),
		UserID:     in.UserID,
		Point:      in.Point,
		TargetType: in.TargetType,
		TargetID:   in.TargetID,
		Kind:       in.Kind,
		Reason:     in.Reason,
		ImageURL:   in.ImageURL,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.SaveReport(ctx, r); err != nil {
		return nil, err
	}

	if err := s.applyFeedback(ctx, r); err != nil {
		// The report is already durable; a lost feedback application is
		// logged rather than surfaced as a submission failure.
		s.log.Warn("report feedback not applied",
			zap.String("report_id", r.ID),
			zap.String("target_type", string(r.TargetType)),
			zap.Error(err))
	}
	return r, nil
}

func (s *ReportService) applyFeedback(ctx context.Context, r *model.UserReport) error {
	if r.TargetType == model.TargetZone {
		return nil
	}

	targetID := r.TargetID
	if targetID == "" {
		id, ok := s.resolveTarget(r.TargetType, r.Point)
		if !ok {
			s.log.Debug("report target unresolved",
				zap.String("report_id", r.ID),
				zap.String("target_type", string(r.TargetType)))
			return nil
		}
		targetID = id
	}

	var err error
	switch r.TargetType {
	case model.TargetCamera:
		if r.Kind == model.ReportConfirm {
			err = s.cameras.Confirm(ctx, targetID)
		} else {
			err = s.cameras.Contradict(ctx, targetID)
		}
	case model.TargetHazard:
		if r.Kind == model.ReportConfirm {
			err = s.hazards.Confirm(ctx, targetID)
		} else {
			err = s.hazards.Contradict(ctx, targetID)
		}
	case model.TargetHazardRoad:
		if r.Kind == model.ReportConfirm {
			err = s.segments.Confirm(ctx, targetID)
		} else {
			err = s.segments.Contradict(ctx, targetID)
		}
	}
	if err == nil {
		s.log.Debug("report feedback applied",
			zap.String("report_id", r.ID),
			zap.String("target_id", targetID),
			zap.String("kind", string(r.Kind)))
	}
	// An explicit id pointing at a deleted entity is not a submission
	// error either.
	if err != nil && eris.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// resolveTarget finds the entity a locationless-id report is about: the
// nearest one of its type within the point dedup tolerance.
func (s *ReportService) resolveTarget(t model.TargetType, p geodesy.Point) (string, bool) {
	tol := s.policy.Dedup.PointToleranceM
	switch t {
	case model.TargetCamera:
		return s.cameras.NearestID(p, tol)
	case model.TargetHazard:
		return s.hazards.NearestID(p, tol)
	case model.TargetHazardRoad:
		return s.segments.NearestID(p, tol)
	}
	return "", false
}

// Recent returns the newest reports, newest first.
func (s *ReportService) Recent(ctx context.Context, limit int) ([]*model.UserReport, error) {
	return s.db.ListReports(ctx, limit)
}
