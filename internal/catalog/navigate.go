package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/spatial"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

// NavigationResult is the combined road-safety picture around a point or
// along a route. Categories are independent; there is no cross-category
// deduplication.
type NavigationResult struct {
	Cameras     []spatial.Match[*model.SpeedCamera]
	SpeedLimits []spatial.Match[*model.RoadSpeedLimit]
	Hazards     []spatial.Match[*model.HazardDetection]
	HazardRoads []spatial.Match[*model.HazardousRoadSegment]
	Counts      map[string]int
}

func (r *NavigationResult) fillCounts() {
	r.Counts = map[string]int{
		store.CollectionCameras:     len(r.Cameras),
		store.CollectionSpeedLimits: len(r.SpeedLimits),
		store.CollectionHazards:     len(r.Hazards),
		store.CollectionSegments:    len(r.HazardRoads),
	}
}

// NavigationNear fans out one center/radius to the four entity stores and
// assembles their answers. Hazards are filtered to active ones. Any
// category failure fails the whole call; there is no partial aggregate.
func (c *Catalog) NavigationNear(ctx context.Context, center geodesy.Point, radiusM float64) (*NavigationResult, error) {
	res := &NavigationResult{}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		ms, err := c.Cameras.Nearby(NearbyQuery{Center: center, RadiusM: radiusM})
		res.Cameras = ms
		return err
	})
	g.Go(func() error {
		ms, err := c.SpeedLimits.Nearby(NearbyQuery{Center: center, RadiusM: radiusM})
		res.SpeedLimits = ms
		return err
	})
	g.Go(func() error {
		ms, err := c.Hazards.Nearby(NearbyQuery{Center: center, RadiusM: radiusM, ActiveOnly: true})
		res.Hazards = ms
		return err
	})
	g.Go(func() error {
		ms, err := c.Segments.Nearby(NearbyQuery{Center: center, RadiusM: radiusM})
		res.HazardRoads = ms
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.fillCounts()
	return res, nil
}

// RouteResult is the safety picture along a route corridor: cameras and
// speed limits whose geometry comes within the per-category buffer of the
// route polyline.
type RouteResult struct {
	Cameras     []*model.SpeedCamera
	SpeedLimits []*model.RoadSpeedLimit
	Counts      map[string]int
}

// NavigationAlongRoute collects cameras and speed limits near the route.
// Buffers come from policy (cameras wider than limits, since a camera a
// block away still matters while a parallel street's limit does not).
func (c *Catalog) NavigationAlongRoute(ctx context.Context, route geodesy.Polyline) (*RouteResult, error) {
	if err := route.Validate(); err != nil {
		return nil, invalidf("route", "%v", err)
	}

	res := &RouteResult{}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		res.Cameras = c.Cameras.AlongRoute(route, c.policy.Route.CameraBufferM)
		return nil
	})
	g.Go(func() error {
		res.SpeedLimits = c.SpeedLimits.AlongRoute(route, c.policy.Route.SpeedLimitBufferM)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	res.Counts = map[string]int{
		store.CollectionCameras:     len(res.Cameras),
		store.CollectionSpeedLimits: len(res.SpeedLimits),
	}
	return res, nil
}
