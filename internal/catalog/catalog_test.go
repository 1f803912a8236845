package catalog

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

func newTestCatalog(t *testing.T) (*Catalog, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, DefaultPolicy()), st
}

// anna nagar, chennai
var basePoint = geodesy.Point{Lat: 13.0827, Lon: 80.2707}

// offsetNorth moves p north by roughly the given meters.
func offsetNorth(p geodesy.Point, meters float64) geodesy.Point {
	return geodesy.Point{Lat: p.Lat + meters/111_320, Lon: p.Lon}
}

// offsetEast moves p east by roughly the given meters.
func offsetEast(p geodesy.Point, meters float64) geodesy.Point {
	return geodesy.Point{Lat: p.Lat, Lon: p.Lon + meters/(111_320*math.Cos(p.Lat*math.Pi/180))}
}

func userCamera(p geodesy.Point) CameraInput {
	return CameraInput{
		Point:         p,
		SpeedLimitKmh: 60,
		Kind:          model.CameraFixed,
		ReportedBy:    "user-1",
		Source:        SourceUser,
	}
}

func testPath(t *testing.T, pts ...geodesy.Point) geodesy.Polyline {
	t.Helper()
	if len(pts) == 0 {
		pts = []geodesy.Point{{Lat: 13.0, Lon: 80.0}, {Lat: 13.01, Lon: 80.0}}
	}
	line, err := geodesy.NewPolyline(pts)
	require.NoError(t, err)
	return line
}

// --- Cameras ---

func TestCameras_Ingest_CreateAndNearby(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	cam, merged, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)
	assert.False(t, merged)
	assert.NotEmpty(t, cam.ID)
	assert.Equal(t, 0.50, cam.Confidence)
	assert.False(t, cam.Verified)
	assert.Equal(t, 1, cam.VerificationCount)

	ms, err := c.Cameras.Nearby(NearbyQuery{
		Center:  geodesy.Point{Lat: 13.0830, Lon: 80.2705},
		RadiusM: 500,
	})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, cam.ID, ms[0].Item.ID)
	assert.Less(t, ms[0].Distance, 100.0)
}

func TestCameras_Ingest_MergesWithinTolerance(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	first, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)

	in := userCamera(offsetNorth(basePoint, 5))
	in.ReportedBy = "user-2"
	second, merged, err := c.Cameras.Ingest(ctx, in)
	require.NoError(t, err)

	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.VerificationCount)
	assert.InDelta(t, 0.55, second.Confidence, 1e-9)
	assert.Equal(t, "user-1", second.ReportedBy, "merge keeps the original reporter")
	assert.Equal(t, 1, c.Cameras.Count())
}

func TestCameras_Ingest_CreatesBeyondTolerance(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)
	_, merged, err := c.Cameras.Ingest(ctx, userCamera(offsetNorth(basePoint, 50)))
	require.NoError(t, err)

	assert.False(t, merged)
	assert.Equal(t, 2, c.Cameras.Count())
}

func TestCameras_Ingest_AuthoritativeMergeVerifies(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	cam, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)
	require.False(t, cam.Verified)

	in := userCamera(offsetNorth(basePoint, 3))
	in.ReportedBy = ""
	in.Source = SourceImport
	merged, wasMerge, err := c.Cameras.Ingest(ctx, in)
	require.NoError(t, err)

	assert.True(t, wasMerge)
	assert.True(t, merged.Verified)
	assert.InDelta(t, 0.80, merged.Confidence, 1e-9)
	assert.Equal(t, 2, merged.VerificationCount)
}

func TestCameras_Ingest_DoubleImportIsIdempotent(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	in := userCamera(basePoint)
	in.ReportedBy = ""
	in.Source = SourceImport

	first, _, err := c.Cameras.Ingest(ctx, in)
	require.NoError(t, err)
	second, merged, err := c.Cameras.Ingest(ctx, in)
	require.NoError(t, err)

	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, c.Cameras.Count())
	assert.InDelta(t, 0.80, second.Confidence, 1e-9, "re-import does not inflate confidence past the preset")
	assert.Equal(t, 2, second.VerificationCount)
}

func TestCameras_Nearby_SortsAndBounds(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	for _, m := range []float64{90, 30, 60, 400} {
		_, _, err := c.Cameras.Ingest(ctx, userCamera(offsetNorth(basePoint, m)))
		require.NoError(t, err)
	}

	ms, err := c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: 200})
	require.NoError(t, err)
	require.Len(t, ms, 3, "the 400 m camera is outside the radius")
	assert.InDelta(t, 30, ms[0].Distance, 1)
	assert.InDelta(t, 60, ms[1].Distance, 1)
	assert.InDelta(t, 90, ms[2].Distance, 1)
}

func TestCameras_Nearby_MinConfidenceFilters(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)
	imported := userCamera(offsetNorth(basePoint, 100))
	imported.Source = SourceImport
	cam, _, err := c.Cameras.Ingest(ctx, imported)
	require.NoError(t, err)

	ms, err := c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: 500, MinConfidence: 0.7})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, cam.ID, ms[0].Item.ID)

	ms, err = c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: 500, VerifiedOnly: true})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, cam.ID, ms[0].Item.ID)
}

func TestCameras_Nearby_RejectsOutOfRangeRequests(t *testing.T) {
	c, _ := newTestCatalog(t)

	_, err := c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: 200_000})
	require.Error(t, err)
	assert.True(t, IsValidation(err), "over-ceiling radius is rejected, not clamped")

	_, err = c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: -5})
	assert.True(t, IsValidation(err))

	_, err = c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: 100, Limit: 501})
	assert.True(t, IsValidation(err))

	_, err = c.Cameras.Nearby(NearbyQuery{Center: geodesy.Point{Lat: 91, Lon: 0}, RadiusM: 100})
	assert.True(t, IsValidation(err))
}

func TestCameras_Nearby_ZeroTakesDefaults(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.Cameras.Ingest(ctx, userCamera(offsetNorth(basePoint, 900)))
	require.NoError(t, err)
	_, _, err = c.Cameras.Ingest(ctx, userCamera(offsetNorth(basePoint, 1500)))
	require.NoError(t, err)

	// Default camera radius is 1 km, so only the 900 m one shows up.
	ms, err := c.Cameras.Nearby(NearbyQuery{Center: basePoint})
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}

func TestCameras_Delete_OwnerOnly(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	cam, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)

	err = c.Cameras.Delete(ctx, cam.ID, "somebody-else")
	assert.True(t, eris.Is(err, ErrForbidden))

	// Still queryable after the refused delete.
	_, err = c.Cameras.Get(cam.ID)
	require.NoError(t, err)

	require.NoError(t, c.Cameras.Delete(ctx, cam.ID, "user-1"))
	_, err = c.Cameras.Get(cam.ID)
	assert.True(t, eris.Is(err, ErrNotFound))

	err = c.Cameras.Delete(ctx, cam.ID, "user-1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestCameras_Delete_AnonymousOwnerIsForbidden(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	in := userCamera(basePoint)
	in.ReportedBy = ""
	in.Source = SourceImport
	cam, _, err := c.Cameras.Ingest(ctx, in)
	require.NoError(t, err)

	err = c.Cameras.Delete(ctx, cam.ID, "user-1")
	assert.True(t, eris.Is(err, ErrForbidden))
}

func TestCameras_Contradict_FloorsAtZeroWithoutDeleting(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	cam, _, err := c.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, c.Cameras.Contradict(ctx, cam.ID))
	}

	got, err := c.Cameras.Get(cam.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Confidence)

	// Zero confidence does not remove it from queries.
	ms, err := c.Cameras.Nearby(NearbyQuery{Center: basePoint, RadiusM: 100})
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}

func TestCameras_Ingest_RejectsBadInput(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	bad := userCamera(basePoint)
	bad.SpeedLimitKmh = 250
	_, _, err := c.Cameras.Ingest(ctx, bad)
	assert.True(t, IsValidation(err))

	bad = userCamera(geodesy.Point{Lat: -91, Lon: 80})
	_, _, err = c.Cameras.Ingest(ctx, bad)
	assert.True(t, IsValidation(err))

	dir := 360
	bad = userCamera(basePoint)
	bad.DirectionDegrees = &dir
	_, _, err = c.Cameras.Ingest(ctx, bad)
	assert.True(t, IsValidation(err))

	bad = userCamera(basePoint)
	bad.Kind = "drone"
	_, _, err = c.Cameras.Ingest(ctx, bad)
	assert.True(t, IsValidation(err))
}

// --- Speed limits ---

func TestSpeedLimits_Ingest_SourceIDIsIdempotent(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	in := SpeedLimitInput{
		Path:          testPath(t),
		SpeedLimitKmh: 40,
		RoadName:      "Poonamallee High Road",
		Direction:     model.DirectionBoth,
		SourceID:      "osm-way-100",
		Source:        SourceOSM,
	}
	first, merged, err := c.SpeedLimits.Ingest(ctx, in)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.InDelta(t, 0.85, first.Confidence, 1e-9)
	assert.True(t, first.Verified)

	second, merged, err := c.SpeedLimits.Ingest(ctx, in)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.VerificationCount)
	assert.Equal(t, 1, c.SpeedLimits.Count())
}

func TestSpeedLimits_Ingest_NoSourceIDAlwaysCreates(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	in := SpeedLimitInput{
		Path:          testPath(t),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		ReportedBy:    "user-1",
		Source:        SourceUser,
	}
	_, _, err := c.SpeedLimits.Ingest(ctx, in)
	require.NoError(t, err)
	_, merged, err := c.SpeedLimits.Ingest(ctx, in)
	require.NoError(t, err)

	// Identical geometry, but line dedup keys on source id only.
	assert.False(t, merged)
	assert.Equal(t, 2, c.SpeedLimits.Count())
}

func TestSpeedLimits_Nearby_PerpendicularDistanceBounds(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	path := testPath(t)
	_, _, err := c.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          path,
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		Source:        SourceUser,
	})
	require.NoError(t, err)

	// On the line: any radius finds it.
	onLine := geodesy.Point{Lat: 13.005, Lon: 80.0}
	ms, err := c.SpeedLimits.Nearby(NearbyQuery{Center: onLine, RadiusM: 50})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Less(t, ms[0].Distance, 1.0)

	// ~108 m east of the line: inside 200 m, outside 50 m.
	offLine := geodesy.Point{Lat: 13.005, Lon: 80.001}
	ms, err = c.SpeedLimits.Nearby(NearbyQuery{Center: offLine, RadiusM: 200})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.InDelta(t, path.DistanceTo(offLine), ms[0].Distance, 0.5)
	assert.InDelta(t, 108.5, ms[0].Distance, 3)

	ms, err = c.SpeedLimits.Nearby(NearbyQuery{Center: offLine, RadiusM: 50})
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestSpeedLimits_Delete_OwnerOnly(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	l, _, err := c.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		SourceID:      "osm-way-200",
		ReportedBy:    "user-1",
		Source:        SourceUser,
	})
	require.NoError(t, err)

	err = c.SpeedLimits.Delete(ctx, l.ID, "user-2")
	assert.True(t, eris.Is(err, ErrForbidden))
	require.NoError(t, c.SpeedLimits.Delete(ctx, l.ID, "user-1"))

	// The source id is free again after deletion.
	_, merged, err := c.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		SourceID:      "osm-way-200",
		Source:        SourceOSM,
	})
	require.NoError(t, err)
	assert.False(t, merged)
}

// --- Hazards ---

func TestHazards_Ingest_DetectorConfidenceIsHonored(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	h, _, err := c.Hazards.Ingest(ctx, HazardInput{
		Point:      basePoint,
		HazardType: "pothole",
		Severity:   model.SeverityHigh,
		DetectedBy: "user-9",
		Source:     SourceDetect,
		Confidence: 0.81,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.81, h.Confidence, 1e-9)
	assert.False(t, h.Verified)
	assert.True(t, h.IsActive)
}

func TestHazards_Ingest_UserSourceIgnoresInputConfidence(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	h, _, err := c.Hazards.Ingest(ctx, HazardInput{
		Point:      basePoint,
		HazardType: "flooding",
		Severity:   model.SeverityMedium,
		DetectedBy: "user-1",
		Source:     SourceUser,
		Confidence: 0.99,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.50, h.Confidence)
}

func TestHazards_Nearby_ActiveOnlyExcludesExpired(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	live, _, err := c.Hazards.Ingest(ctx, HazardInput{
		Point:      basePoint,
		HazardType: "pothole",
		Severity:   model.SeverityLow,
		ExpiresAt:  &future,
		Source:     SourceUser,
	})
	require.NoError(t, err)
	expired, _, err := c.Hazards.Ingest(ctx, HazardInput{
		Point:      offsetNorth(basePoint, 50),
		HazardType: "debris",
		Severity:   model.SeverityLow,
		ExpiresAt:  &past,
		Source:     SourceUser,
	})
	require.NoError(t, err)
	require.True(t, expired.IsActive, "expiry is a query-time filter, not a stored flag")

	ms, err := c.Hazards.Nearby(NearbyQuery{Center: basePoint, RadiusM: 500, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, live.ID, ms[0].Item.ID)

	ms, err = c.Hazards.Nearby(NearbyQuery{Center: basePoint, RadiusM: 500})
	require.NoError(t, err)
	assert.Len(t, ms, 2)

	assert.Equal(t, 1, c.Hazards.ActiveCount())
	assert.Equal(t, 2, c.Hazards.Count())
}

func TestHazards_Delete_DetectorOwnerOnly(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	h, _, err := c.Hazards.Ingest(ctx, HazardInput{
		Point:      basePoint,
		HazardType: "accident",
		Severity:   model.SeverityHigh,
		DetectedBy: "user-3",
		Source:     SourceUser,
	})
	require.NoError(t, err)

	err = c.Hazards.Delete(ctx, h.ID, "user-4")
	assert.True(t, eris.Is(err, ErrForbidden))
	require.NoError(t, c.Hazards.Delete(ctx, h.ID, "user-3"))
}

func TestHazards_AlongRoute_ExcludesExpired(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	route := testPath(t)
	onRoute := geodesy.Point{Lat: 13.005, Lon: 80.0}
	past := time.Now().UTC().Add(-time.Hour)

	live, _, err := c.Hazards.Ingest(ctx, HazardInput{
		Point:      offsetEast(onRoute, 30),
		HazardType: "pothole",
		Severity:   model.SeverityLow,
		Source:     SourceUser,
	})
	require.NoError(t, err)
	_, _, err = c.Hazards.Ingest(ctx, HazardInput{
		Point:      offsetEast(onRoute, 60),
		HazardType: "debris",
		Severity:   model.SeverityLow,
		ExpiresAt:  &past,
		Source:     SourceUser,
	})
	require.NoError(t, err)
	_, _, err = c.Hazards.Ingest(ctx, HazardInput{
		Point:      offsetEast(onRoute, 500),
		HazardType: "flooding",
		Severity:   model.SeverityLow,
		Source:     SourceUser,
	})
	require.NoError(t, err)

	hs := c.Hazards.AlongRoute(route, 100)
	require.Len(t, hs, 1)
	assert.Equal(t, live.ID, hs[0].ID)
}

// --- Hazardous road segments ---

func TestSegments_Ingest_SourceIDIsIdempotent(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	in := SegmentInput{
		Path:       testPath(t),
		HazardType: "accident_blackspot",
		Severity:   model.SeverityHigh,
		RoadName:   "NH48",
		SourceID:   "inventory-77",
		Source:     SourceImport,
	}
	first, merged, err := c.Segments.Ingest(ctx, in)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.InDelta(t, 0.80, first.Confidence, 1e-9)

	second, merged, err := c.Segments.Ingest(ctx, in)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, c.Segments.Count())
}

func TestSegments_Nearby_FindsByLineDistance(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, _, err := c.Segments.Ingest(ctx, SegmentInput{
		Path:       testPath(t),
		HazardType: "flooding",
		Severity:   model.SeverityMedium,
		Source:     SourceUser,
	})
	require.NoError(t, err)

	ms, err := c.Segments.Nearby(NearbyQuery{Center: geodesy.Point{Lat: 13.005, Lon: 80.0005}, RadiusM: 100})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.InDelta(t, 54, ms[0].Distance, 3)
}

func TestSegments_AlongRoute_UsesLineDistance(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	near, _, err := c.Segments.Ingest(ctx, SegmentInput{
		Path:       testPath(t, geodesy.Point{Lat: 13.002, Lon: 80.0003}, geodesy.Point{Lat: 13.008, Lon: 80.0003}),
		HazardType: "accident_blackspot",
		Severity:   model.SeverityHigh,
		Source:     SourceUser,
	})
	require.NoError(t, err)
	_, _, err = c.Segments.Ingest(ctx, SegmentInput{
		Path:       testPath(t, geodesy.Point{Lat: 13.002, Lon: 80.01}, geodesy.Point{Lat: 13.008, Lon: 80.01}),
		HazardType: "flooding",
		Severity:   model.SeverityMedium,
		Source:     SourceUser,
	})
	require.NoError(t, err)

	// The first segment runs ~33 m east of the route, the second ~1.1 km.
	segs := c.Segments.AlongRoute(testPath(t), 100)
	require.Len(t, segs, 1)
	assert.Equal(t, near.ID, segs[0].ID)
}

// --- Zones ---

func TestZones_Create_AppliesNameFallbacks(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	school, err := c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: basePoint})
	require.NoError(t, err)
	assert.Equal(t, "Unnamed school", school.Name)
	assert.Equal(t, "Address not available", school.Address)

	hospital, err := c.Zones.Create(ctx, ZoneInput{
		Kind:    model.ZoneHospital,
		Point:   offsetNorth(basePoint, 40),
		Name:    "Apollo Hospital",
		Address: "21 Greams Lane",
	})
	require.NoError(t, err)
	assert.Equal(t, "Apollo Hospital", hospital.Name)
	assert.Equal(t, "21 Greams Lane", hospital.Address)
}

func TestZones_Create_DuplicateSourceIDConflicts(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	in := ZoneInput{Kind: model.ZoneSchool, Point: basePoint, Name: "DAV School", SourceID: "osm-node-3003"}
	_, err := c.Zones.Create(ctx, in)
	require.NoError(t, err)

	_, err = c.Zones.Create(ctx, in)
	assert.True(t, eris.Is(err, ErrConflict))
	assert.Equal(t, 1, c.Zones.Count())
}

func TestZones_Create_KindScopesSourceID(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: basePoint, SourceID: "osm-node-1"})
	require.NoError(t, err)
	_, err = c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneHospital, Point: basePoint, SourceID: "osm-node-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Zones.Count())
}

func TestZones_Nearby_FiltersByKind(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	school, err := c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: basePoint})
	require.NoError(t, err)
	_, err = c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneHospital, Point: offsetNorth(basePoint, 20)})
	require.NoError(t, err)

	ms, err := c.Zones.Nearby(model.ZoneSchool, NearbyQuery{Center: basePoint, RadiusM: 300})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, school.ID, ms[0].Item.ID)

	assert.Equal(t, 1, c.Zones.CountKind(model.ZoneHospital))
}

func TestZones_Delete_CreatorOnlyAndFreesSourceID(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	z, err := c.Zones.Create(ctx, ZoneInput{
		Kind:      model.ZoneSchool,
		Point:     basePoint,
		SourceID:  "osm-node-9",
		CreatedBy: "user-1",
	})
	require.NoError(t, err)

	err = c.Zones.Delete(ctx, z.ID, "user-2")
	assert.True(t, eris.Is(err, ErrForbidden))
	require.NoError(t, c.Zones.Delete(ctx, z.ID, "user-1"))

	_, err = c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: basePoint, SourceID: "osm-node-9"})
	require.NoError(t, err)
}

func TestZones_AlongRoute_FiltersByKind(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	onRoute := geodesy.Point{Lat: 13.005, Lon: 80.0}
	school, err := c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: offsetEast(onRoute, 20)})
	require.NoError(t, err)
	_, err = c.Zones.Create(ctx, ZoneInput{Kind: model.ZoneHospital, Point: offsetEast(onRoute, 40)})
	require.NoError(t, err)

	zs := c.Zones.AlongRoute(model.ZoneSchool, testPath(t), 100)
	require.Len(t, zs, 1)
	assert.Equal(t, school.ID, zs[0].ID)
}

// --- Rebuild ---

func TestCatalog_Rebuild_RestoresIndexesAndSourceIDs(t *testing.T) {
	c1, st := newTestCatalog(t)
	ctx := context.Background()

	cam, _, err := c1.Cameras.Ingest(ctx, userCamera(basePoint))
	require.NoError(t, err)
	_, _, err = c1.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		SourceID:      "osm-way-100",
		Source:        SourceOSM,
	})
	require.NoError(t, err)
	_, err = c1.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: basePoint, SourceID: "osm-node-1"})
	require.NoError(t, err)

	// A fresh catalog over the same database starts empty until rebuilt.
	c2 := New(st, DefaultPolicy())
	assert.Equal(t, 0, c2.Cameras.Count())
	require.NoError(t, c2.Rebuild(ctx))

	assert.Equal(t, 1, c2.Cameras.Count())
	assert.Equal(t, 1, c2.SpeedLimits.Count())
	assert.Equal(t, 1, c2.Zones.Count())

	got, err := c2.Cameras.Get(cam.ID)
	require.NoError(t, err)
	assert.Equal(t, cam.SpeedLimitKmh, got.SpeedLimitKmh)

	// Source-id dedup survives the restart.
	_, merged, err := c2.SpeedLimits.Ingest(ctx, SpeedLimitInput{
		Path:          testPath(t),
		SpeedLimitKmh: 40,
		Direction:     model.DirectionBoth,
		SourceID:      "osm-way-100",
		Source:        SourceOSM,
	})
	require.NoError(t, err)
	assert.True(t, merged)

	_, err = c2.Zones.Create(ctx, ZoneInput{Kind: model.ZoneSchool, Point: basePoint, SourceID: "osm-node-1"})
	assert.True(t, eris.Is(err, ErrConflict))
}
