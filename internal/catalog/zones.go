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

// ZoneInput is a candidate school or hospital zone.
type ZoneInput struct {
	Kind      model.ZoneKind
	Point     geodesy.Point
	Name      string
	Address   string
	SourceID  string
	CreatedBy string
}

// ZoneStore owns school and hospital zones in one index. Zones are facts,
// not observations: a known source id is never merged, only skipped.
type ZoneStore struct {
	mu       sync.Mutex
	idx      *spatial.Index[*model.Zone]
	bySource map[string]string
	db       store.Store
	policy   Policy
	log      *zap.Logger
}

func newZoneStore(db store.Store, pol Policy) *ZoneStore {
	return &ZoneStore{
		idx:      spatial.New[*model.Zone](spatial.DefaultCellDegrees),
		bySource: make(map[string]string),
		db:       db,
		policy:   pol,
		log:      zap.L().With(zap.String("component", "catalog.zones")),
	}
}

// sourceKey scopes external ids by kind so one OSM node tagged as both a
// school and a hospital yields two zone records.
func sourceKey(kind model.ZoneKind, sourceID string) string {
	return string(kind) + ":" + sourceID
}

func (in ZoneInput) validate() error {
	if !in.Kind.Valid() {
		return invalidf("kind", "unknown zone kind %q", in.Kind)
	}
	if err := in.Point.Validate(); err != nil {
		return invalidf("location", "%v", err)
	}
	return nil
}

// Create adds a zone. A duplicate source id returns ErrConflict; bulk
// import counts that as a skip, the API surfaces 409.
func (s *ZoneStore) Create(ctx context.Context, in ZoneInput) (*model.Zone, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.SourceID != "" {
		if _, exists := s.bySource[sourceKey(in.Kind, in.SourceID)]; exists {
			return nil, ErrConflict
		}
	}

	name := in.Name
	if name == "" {
		name = "Unnamed " + string(in.Kind)
	}
	address := in.Address
	if address == "" {
		address = "Address not available"
	}

	now := time.Now().UTC()
	z := &model.Zone{
		ID:        uuid.New().String(),
		Kind:      in.Kind,
		Point:     in.Point,
		Name:      name,
		Address:   address,
		SourceID:  in.SourceID,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.SaveZone(ctx, z); err != nil {
		return nil, err
	}
	if err := s.idx.Insert(z); err != nil {
		return nil, err
	}
	if in.SourceID != "" {
		s.bySource[sourceKey(in.Kind, in.SourceID)] = z.ID
	}
	return z, nil
}

// Nearby returns zones of one kind within the radius, closest first.
func (s *ZoneStore) Nearby(kind model.ZoneKind, q NearbyQuery) ([]spatial.Match[*model.Zone], error) {
	if !kind.Valid() {
		return nil, invalidf("kind", "unknown zone kind %q", kind)
	}
	radius, limit, err := q.resolve(s.policy.Zones)
	if err != nil {
		return nil, err
	}
	return s.idx.Nearby(q.Center, radius, limit, func(z *model.Zone) bool {
		return z.Kind == kind
	}), nil
}

// AlongRoute returns zones of one kind within buffer meters of the route.
func (s *ZoneStore) AlongRoute(kind model.ZoneKind, route geodesy.Polyline, bufferM float64) []*model.Zone {
	return s.idx.Along(route, bufferM, func(z *model.Zone) bool {
		return z.Kind == kind
	})
}

// Get returns the zone with the given id.
func (s *ZoneStore) Get(id string) (*model.Zone, error) {
	z, ok := s.idx.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return z, nil
}

// All returns up to limit zones of both kinds in insertion order.
func (s *ZoneStore) All(limit int) []*model.Zone {
	return s.idx.All(limit)
}

// Count returns the number of indexed zones of both kinds.
func (s *ZoneStore) Count() int {
	return s.idx.Len()
}

// CountKind returns the number of zones of one kind.
func (s *ZoneStore) CountKind(kind model.ZoneKind) int {
	n := 0
	for _, z := range s.idx.All(0) {
		if z.Kind == kind {
			n++
		}
	}
	return n
}

// Delete removes a zone. Only its creator may delete; imported zones have
// no creator and stay.
func (s *ZoneStore) Delete(ctx context.Context, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.idx.Get(id)
	if !ok {
		return ErrNotFound
	}
	if z.CreatedBy == "" || z.CreatedBy != requester {
		return ErrForbidden
	}
	if err := s.db.DeleteZone(ctx, id); err != nil {
		return err
	}
	s.idx.Remove(id)
	if z.SourceID != "" {
		delete(s.bySource, sourceKey(z.Kind, z.SourceID))
	}
	s.log.Info("zone deleted", zap.String("id", id), zap.String("kind", string(z.Kind)))
	return nil
}

// restore re-indexes a persisted zone during catalog rebuild.
func (s *ZoneStore) restore(z *model.Zone) error {
	if err := s.idx.Insert(z); err != nil {
		return err
	}
	if z.SourceID != "" {
		s.bySource[sourceKey(z.Kind, z.SourceID)] = z.ID
	}
	return nil
}
