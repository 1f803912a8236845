package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

func TestNavigationNear_AggregatesAllCategories(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)

	_, _, err = c.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t, basePoint, offsetNorth(basePoint, 400)),
		SpeedLimitKmh: 50,
		Direction:     model.DirectionBoth,
		Source:        SourceOSM,
		SourceID:      "osm-way-1",
	})
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	_, _, err = c.Hazards.Ingest(ctx, HazardInput{
		Point:      offsetNorth(basePoint, 30),
		HazardType: "pothole",
		Severity:   model.SeverityLow,
		Source:     SourceUser,
	})
	require.NoError(t, err)
	_, _, err = c.Hazards.Ingest(ctx, HazardInput{
		Point:      offsetNorth(basePoint, 60),
		HazardType: "debris",
		Severity:   model.SeverityLow,
		ExpiresAt:  &past,
		Source:     SourceUser,
	})
	require.NoError(t, err)

	_, _, err = c.Segments.Ingest(ctx, SegmentInput{
		Path:       testPath(t, basePoint, offsetEast(basePoint, 300)),
		HazardType: "accident_blackspot",
		Severity:   model.SeverityHigh,
		Source:     SourceImport,
	})
	require.NoError(t, err)

	res, err := c.NavigationNear(ctx, basePoint, 1000)
	require.NoError(t, err)

	assert.Len(t, res.Cameras, 1)
	assert.Len(t, res.SpeedLimits, 1)
	assert.Len(t, res.Hazards, 1, "the expired hazard stays out of the aggregate")
	assert.Len(t, res.HazardRoads, 1)
	assert.Equal(t, map[string]int{
		store.CollectionCameras:     1,
		store.CollectionSpeedLimits: 1,
		store.CollectionHazards:     1,
		store.CollectionSegments:    1,
	}, res.Counts)
}

func TestNavigationNear_OneCategoryFailureFailsTheCall(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)

	// 50 km is fine for cameras but over every other category's ceiling.
	res, err := c.NavigationNear(ctx, basePoint, 50_000)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Nil(t, res, "no partial aggregate on failure")
}

func TestNavigationNear_EmptyAreaReturnsZeroCounts(t *testing.T) {
	c, _ := newTestCatalog(t)

	res, err := c.NavigationNear(context.Background(), basePoint, 1000)
	require.NoError(t, err)
	assert.Empty(t, res.Cameras)
	assert.Equal(t, 0, res.Counts[store.CollectionCameras])
	assert.Equal(t, 0, res.Counts[store.CollectionHazards])
}

func TestNavigationAlongRoute_AppliesPerCategoryBuffers(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	route := testPath(t)
	mid := geodesy.Point{Lat: 13.005, Lon: 80.0}

	near, _, err := c.Cameras.Ingest(ctx, userCamera(offsetEast(mid, 75)))
	require.NoError(t, err)
	_, _, err = c.Cameras.Ingest(ctx, userCamera(offsetEast(mid, 150)))
	require.NoError(t, err)

	// One limit ~30 m off the route, one ~80 m off.
	_, _, err = c.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t, offsetEast(geodesy.Point{Lat: 13.0, Lon: 80.0}, 30), offsetEast(geodesy.Point{Lat: 13.01, Lon: 80.0}, 30)),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		Source:        SourceOSM,
		SourceID:      "osm-way-10",
	})
	require.NoError(t, err)
	_, _, err = c.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t, offsetEast(geodesy.Point{Lat: 13.0, Lon: 80.0}, 80), offsetEast(geodesy.Point{Lat: 13.01, Lon: 80.0}, 80)),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		Source:        SourceOSM,
		SourceID:      "osm-way-11",
	})
	require.NoError(t, err)

	res, err := c.NavigationAlongRoute(ctx, route)
	require.NoError(t, err)

	// Camera buffer is 100 m, speed limit buffer 50 m.
	require.Len(t, res.Cameras, 1)
	assert.Equal(t, near.ID, res.Cameras[0].ID)
	require.Len(t, res.SpeedLimits, 1)
	assert.Equal(t, "osm-way-10", res.SpeedLimits[0].SourceID)
	assert.Equal(t, 1, res.Counts[store.CollectionCameras])
	assert.Equal(t, 1, res.Counts[store.CollectionSpeedLimits])
}

func TestNavigationAlongRoute_RejectsZeroValueRoute(t *testing.T) {
	c, _ := newTestCatalog(t)

	_, err := c.NavigationAlongRoute(context.Background(), geodesy.Polyline{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}
