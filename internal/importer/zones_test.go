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

func TestZoneSource_OverpassJSON(t *testing.T) {
	cat, st := newImportCatalog(t)
	ctx := context.Background()

	// Node 3 has no tags at all, node 4 repeats node 1's id, node 5 is
	// missing its coordinates, and the way contributes nothing.
	path := writeDataset(t, "schools.json", `{
	  "elements": [
	    {"type": "node", "id": 1, "lat": 13.01, "lon": 80.21,
	     "tags": {"name": "Chennai Public School", "addr:full": "24 Kilpauk Garden Road, Chennai"}},
	    {"type": "node", "id": 2, "lat": 13.02, "lon": 80.22,
	     "tags": {"name:en": "DAV School", "addr:street": "Lloyds Road", "addr:city": "Chennai"}},
	    {"type": "node", "id": 3, "lat": 13.03, "lon": 80.23},
	    {"type": "node", "id": 1, "lat": 13.04, "lon": 80.24, "tags": {"name": "Duplicate"}},
	    {"type": "node", "id": 5, "tags": {"name": "Floating School"}},
	    {"type": "way", "id": 6, "tags": {"name": "Not a node"}}
	  ]
	}`)

	src := NewZoneSource(model.ZoneSchool, path, nil)
	assert.Equal(t, "school-zones", src.Name())

	run, err := NewEngine(cat, st, testRetry()).Run(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, 3, run.Imported)
	assert.Equal(t, 2, run.Skipped) // duplicate id and missing coordinates
	assert.Equal(t, 3, cat.Zones.CountKind(model.ZoneSchool))

	ms, err := cat.Zones.Nearby(model.ZoneSchool, catalog.NearbyQuery{
		Center:  geodesy.Point{Lat: 13.01, Lon: 80.21},
		RadiusM: 100,
	})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "Chennai Public School", ms[0].Item.Name)
	assert.Equal(t, "24 Kilpauk Garden Road, Chennai", ms[0].Item.Address)
	assert.Equal(t, "osm-node-1", ms[0].Item.SourceID)

	ms, err = cat.Zones.Nearby(model.ZoneSchool, catalog.NearbyQuery{
		Center:  geodesy.Point{Lat: 13.02, Lon: 80.22},
		RadiusM: 100,
	})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "DAV School", ms[0].Item.Name)
	assert.Equal(t, "Lloyds Road, Chennai", ms[0].Item.Address)

	// Untagged nodes get the catalog's placeholders.
	ms, err = cat.Zones.Nearby(model.ZoneSchool, catalog.NearbyQuery{
		Center:  geodesy.Point{Lat: 13.03, Lon: 80.23},
		RadiusM: 100,
	})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "Unnamed school", ms[0].Item.Name)
	assert.Equal(t, "Address not available", ms[0].Item.Address)
}

func TestZoneSource_OSMXML(t *testing.T) {
	cat, st := newImportCatalog(t)
	ctx := context.Background()

	path := writeDataset(t, "hospitals.osm", `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="71" lat="13.0569" lon="80.2425">
    <tag k="amenity" v="hospital"/>
    <tag k="name" v="Apollo Hospital"/>
    <tag k="addr:street" v="Greams Lane"/>
    <tag k="addr:city" v="Chennai"/>
  </node>
  <node id="72" lat="13.0700">
    <tag k="name" v="No Longitude Clinic"/>
  </node>
</osm>`)

	src := NewZoneSource(model.ZoneHospital, path, nil)
	assert.Equal(t, "hospital-zones", src.Name())

	run, err := NewEngine(cat, st, testRetry()).Run(ctx, src)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Imported)
	assert.Equal(t, 1, run.Skipped)

	ms, err := cat.Zones.Nearby(model.ZoneHospital, catalog.NearbyQuery{
		Center:  geodesy.Point{Lat: 13.0569, Lon: 80.2425},
		RadiusM: 100,
	})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "Apollo Hospital", ms[0].Item.Name)
	assert.Equal(t, "Greams Lane, Chennai", ms[0].Item.Address)
	assert.Equal(t, "osm-node-71", ms[0].Item.SourceID)
}

func TestZoneSource_RerunSkipsExisting(t *testing.T) {
	cat, st := newImportCatalog(t)
	ctx := context.Background()

	path := writeDataset(t, "schools.json", `{
	  "elements": [{"type": "node", "id": 10, "lat": 13.0, "lon": 80.2, "tags": {"name": "KV School"}}]
	}`)

	eng := NewEngine(cat, st, testRetry())
	first, err := eng.Run(ctx, NewZoneSource(model.ZoneSchool, path, nil))
	require.NoError(t, err)
	second, err := eng.Run(ctx, NewZoneSource(model.ZoneSchool, path, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Imported)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 1, cat.Zones.Count())

	// The same node may still seed the other zone kind.
	third, err := eng.Run(ctx, NewZoneSource(model.ZoneHospital, path, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, third.Imported)
}

func TestZoneAddress(t *testing.T) {
	assert.Equal(t, "12 High Road", zoneAddress(map[string]string{"addr:full": "12 High Road", "addr:street": "ignored"}))
	assert.Equal(t, "High Road, Chennai", zoneAddress(map[string]string{"addr:street": "High Road", "addr:city": "Chennai"}))
	assert.Equal(t, "High Road", zoneAddress(map[string]string{"addr:street": "High Road"}))
	assert.Equal(t, "Chennai", zoneAddress(map[string]string{"addr:city": "Chennai"}))
	assert.Equal(t, "", zoneAddress(map[string]string{}))
}
