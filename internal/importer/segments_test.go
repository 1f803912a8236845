package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

func TestSegmentSource_Overpass(t *testing.T) {
	cat, st := newImportCatalog(t)
	ctx := context.Background()

	// Way 202 carries no hazard tag and never becomes a record.
	path := writeDataset(t, "hazard_roads.json", `{
	  "elements": [
	    {
	      "type": "way", "id": 201,
	      "tags": {"hazard": "landslide", "severity": "High", "name": "Ghat Road"},
	      "geometry": [{"lat": 11.40, "lon": 76.70}, {"lat": 11.41, "lon": 76.71}]
	    },
	    {
	      "type": "way", "id": 202,
	      "tags": {"name": "Safe Street"},
	      "geometry": [{"lat": 11.50, "lon": 76.80}, {"lat": 11.51, "lon": 76.81}]
	    },
	    {
	      "type": "way", "id": 203,
	      "tags": {"hazard": "flood_prone"},
	      "geometry": [{"lat": 11.60, "lon": 76.90}]
	    }
	  ]
	}`)

	run, err := NewEngine(cat, st, testRetry()).Run(ctx, NewSegmentSource(path, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, run.Imported)
	assert.Equal(t, 1, run.Skipped) // way 203 has a single geometry point
	assert.Equal(t, 1, cat.Segments.Count())

	ms, err := cat.Segments.Nearby(catalog.NearbyQuery{
		Center:  geodesy.Point{Lat: 11.40, Lon: 76.70},
		RadiusM: 200,
	})
	require.NoError(t, err)
	require.Len(t, ms, 1)

	seg := ms[0].Item
	assert.Equal(t, "landslide", seg.HazardType)
	assert.Equal(t, model.SeverityHigh, seg.Severity)
	assert.Equal(t, "Ghat Road", seg.RoadName)
	assert.Equal(t, "osm-way-201", seg.SourceID)
	assert.Equal(t, 0.80, seg.Confidence)
	assert.True(t, seg.Verified)
}

func TestSegmentSource_RerunMergesByWayID(t *testing.T) {
	cat, st := newImportCatalog(t)
	ctx := context.Background()

	path := writeDataset(t, "hazard_roads.json", `{
	  "elements": [{
	    "type": "way", "id": 300,
	    "tags": {"hazard": "accident_blackspot"},
	    "geometry": [{"lat": 11.0, "lon": 77.0}, {"lat": 11.01, "lon": 77.0}]
	  }]
	}`)

	eng := NewEngine(cat, st, testRetry())
	_, err := eng.Run(ctx, NewSegmentSource(path, nil))
	require.NoError(t, err)
	second, err := eng.Run(ctx, NewSegmentSource(path, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, second.Merged)
	assert.Equal(t, 1, cat.Segments.Count())

	seg := cat.Segments.All(0)[0]
	assert.Equal(t, 2, seg.VerificationCount)
}

func TestSegmentSeverity(t *testing.T) {
	assert.Equal(t, model.SeverityHigh, segmentSeverity("High"))
	assert.Equal(t, model.SeverityHigh, segmentSeverity("3"))
	assert.Equal(t, model.SeverityLow, segmentSeverity("minor"))
	assert.Equal(t, model.SeverityMedium, segmentSeverity("medium"))
	assert.Equal(t, model.SeverityMedium, segmentSeverity(""))
	assert.Equal(t, model.SeverityMedium, segmentSeverity("whatever"))
}
