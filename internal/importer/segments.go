package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/fetcher"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

const segmentBatchSize = 100

// SegmentSource loads hazardous road segment inventories. Overpass JSON
// exports contribute ways carrying a hazard tag; ESRI shapefiles, bare or
// zipped with their companion files, contribute polylines with name, hazard
// type, and severity attributes.
type SegmentSource struct {
	location string
	client   fetcher.Fetcher
}

func NewSegmentSource(location string, client fetcher.Fetcher) *SegmentSource {
	return &SegmentSource{location: location, client: client}
}

func (s *SegmentSource) Name() string   { return "hazard-roads" }
func (s *SegmentSource) BatchSize() int { return segmentBatchSize }

func (s *SegmentSource) Fetch(ctx context.Context) ([]Record, error) {
	switch datasetExt(s.location) {
	case ".shp":
		path, cleanup, err := localPath(ctx, s.client, s.location)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		return s.readShapefile(path)
	case ".zip":
		return s.fetchZIP(ctx)
	default:
		return s.fetchJSON(ctx)
	}
}

func (s *SegmentSource) fetchZIP(ctx context.Context) ([]Record, error) {
	path, cleanup, err := localPath(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dir, err := os.MkdirTemp("", "roadwatch-shp-")
	if err != nil {
		return nil, eris.Wrap(err, "hazard-roads: create temp dir")
	}
	defer os.RemoveAll(dir)

	files, err := fetcher.ExtractZIP(path, dir)
	if err != nil {
		return nil, eris.Wrapf(err, "hazard-roads: extract %s", s.location)
	}
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			return s.readShapefile(f)
		}
	}
	return nil, eris.Errorf("hazard-roads: no shapefile in %s", s.location)
}

func (s *SegmentSource) fetchJSON(ctx context.Context) ([]Record, error) {
	rc, err := open(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	resp, err := fetcher.DecodeJSONObject[overpassResponse](rc)
	if err != nil {
		return nil, eris.Wrapf(err, "hazard-roads: parse %s", s.location)
	}

	var records []Record
	for _, el := range resp.Elements {
		if el.Type != "way" || el.tag("hazard") == "" {
			continue
		}
		records = append(records, segmentWayRecord{el: el})
	}
	return records, nil
}

func (s *SegmentSource) readShapefile(path string) ([]Record, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "hazard-roads: open shapefile %s", s.location)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	attr := func(idx int) string {
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}
	field := func(candidates ...string) string {
		for _, c := range candidates {
			if idx, ok := fieldIdx[c]; ok {
				if v := attr(idx); v != "" {
					return v
				}
			}
		}
		return ""
	}

	dataset := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var records []Record
	var skipped int
	num := 0
	for reader.Next() {
		num++
		_, shape := reader.Shape()

		line, ok := shape.(*shp.PolyLine)
		if !ok || len(line.Points) < 2 {
			skipped++
			continue
		}
		pts := make([]geodesy.Point, len(line.Points))
		for i, p := range line.Points {
			pts[i] = geodesy.Point{Lat: p.Y, Lon: p.X}
		}
		poly, err := geodesy.NewPolyline(pts)
		if err != nil {
			skipped++
			continue
		}

		records = append(records, segmentShapeRecord{
			sourceID:   fmt.Sprintf("%s-%d", dataset, num),
			path:       poly,
			roadName:   field("name", "road_name", "fullname"),
			hazardType: field("hazard_type", "hazard", "type"),
			severity:   field("severity", "risk"),
			dataset:    dataset,
		})
	}

	if skipped > 0 {
		zap.L().Debug("hazard-roads: skipped shapefile records",
			zap.String("dataset", dataset),
			zap.Int("skipped", skipped),
		)
	}
	return records, nil
}

type segmentWayRecord struct {
	el overpassElement
}

func (r segmentWayRecord) Key() string {
	return fmt.Sprintf("way %d", r.el.ID)
}

func (r segmentWayRecord) Apply(ctx context.Context, cat *catalog.Catalog) (Outcome, error) {
	line, err := r.el.line()
	if err != nil {
		return OutcomeSkipped, nil
	}

	_, merged, err := cat.Segments.Ingest(ctx, catalog.SegmentInput{
		Path:       line,
		HazardType: r.el.tag("hazard"),
		Severity:   segmentSeverity(r.el.tag("severity")),
		RoadName:   r.el.tag("name", "ref"),
		SourceID:   fmt.Sprintf("osm-way-%d", r.el.ID),
		Notes:      fmt.Sprintf("Imported from OpenStreetMap (way %d)", r.el.ID),
		Source:     catalog.SourceImport,
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	if merged {
		return OutcomeMerged, nil
	}
	return OutcomeCreated, nil
}

type segmentShapeRecord struct {
	sourceID   string
	path       geodesy.Polyline
	roadName   string
	hazardType string
	severity   string
	dataset    string
}

func (r segmentShapeRecord) Key() string { return r.sourceID }

func (r segmentShapeRecord) Apply(ctx context.Context, cat *catalog.Catalog) (Outcome, error) {
	hazardType := r.hazardType
	if hazardType == "" {
		hazardType = "road_hazard"
	}

	_, merged, err := cat.Segments.Ingest(ctx, catalog.SegmentInput{
		Path:       r.path,
		HazardType: hazardType,
		Severity:   segmentSeverity(r.severity),
		RoadName:   r.roadName,
		SourceID:   r.sourceID,
		Notes:      fmt.Sprintf("Imported from %s", r.dataset),
		Source:     catalog.SourceImport,
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	if merged {
		return OutcomeMerged, nil
	}
	return OutcomeCreated, nil
}

// segmentSeverity maps inventory severity codes, defaulting unknown values
// to medium.
func segmentSeverity(raw string) model.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "h", "severe", "3":
		return model.SeverityHigh
	case "low", "l", "minor", "1":
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}
