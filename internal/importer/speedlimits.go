package importer

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/fetcher"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

const speedLimitBatchSize = 50

// SpeedLimitSource loads road speed limits from an Overpass API export.
// Only way elements with a maxspeed tag become catalog entries; the way id
// doubles as the dedup key, so re-running an import merges instead of
// duplicating.
type SpeedLimitSource struct {
	location string
	client   fetcher.Fetcher
}

func NewSpeedLimitSource(location string, client fetcher.Fetcher) *SpeedLimitSource {
	return &SpeedLimitSource{location: location, client: client}
}

func (s *SpeedLimitSource) Name() string   { return "speed-limits" }
func (s *SpeedLimitSource) BatchSize() int { return speedLimitBatchSize }

func (s *SpeedLimitSource) Fetch(ctx context.Context) ([]Record, error) {
	rc, err := open(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	resp, err := fetcher.DecodeJSONObject[overpassResponse](rc)
	if err != nil {
		return nil, eris.Wrapf(err, "speed-limits: parse %s", s.location)
	}

	var records []Record
	for _, el := range resp.Elements {
		if el.Type != "way" {
			continue
		}
		records = append(records, speedLimitRecord{el: el})
	}
	return records, nil
}

type speedLimitRecord struct {
	el overpassElement
}

func (r speedLimitRecord) Key() string {
	return fmt.Sprintf("way %d", r.el.ID)
}

func (r speedLimitRecord) Apply(ctx context.Context, cat *catalog.Catalog) (Outcome, error) {
	speed, ok := parseMaxspeed(r.el.tag("maxspeed"))
	if !ok {
		return OutcomeSkipped, nil
	}
	line, err := r.el.line()
	if err != nil {
		return OutcomeSkipped, nil
	}

	roadType := r.el.tag("highway")
	if roadType == "" {
		roadType = "unknown"
	}
	direction := model.DirectionBoth
	if r.el.Tags["oneway"] == "yes" {
		direction = model.DirectionForward
	}

	_, merged, err := cat.SpeedLimits.Ingest(ctx, catalog.SpeedLimitInput{
		Path:          line,
		SpeedLimitKmh: speed,
		RoadName:      r.el.tag("name", "ref"),
		RoadType:      roadType,
		Direction:     direction,
		SourceID:      fmt.Sprintf("osm-way-%d", r.el.ID),
		Notes:         fmt.Sprintf("Imported from OpenStreetMap (way %d)", r.el.ID),
		Source:        catalog.SourceOSM,
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	if merged {
		return OutcomeMerged, nil
	}
	return OutcomeCreated, nil
}
