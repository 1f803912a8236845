package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/fetcher"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

const zoneBatchSize = 500

// ZoneSource loads school or hospital zones from an OSM node extract,
// either Overpass JSON or a raw OSM XML stream. Every node is keyed by its
// OSM id; nodes already in the catalog, or repeated within the feed itself,
// are skipped rather than merged.
type ZoneSource struct {
	kind     model.ZoneKind
	location string
	client   fetcher.Fetcher
}

func NewZoneSource(kind model.ZoneKind, location string, client fetcher.Fetcher) *ZoneSource {
	return &ZoneSource{kind: kind, location: location, client: client}
}

func (s *ZoneSource) Name() string   { return string(s.kind) + "-zones" }
func (s *ZoneSource) BatchSize() int { return zoneBatchSize }

func (s *ZoneSource) Fetch(ctx context.Context) ([]Record, error) {
	switch datasetExt(s.location) {
	case ".xml", ".osm":
		return s.fetchXML(ctx)
	default:
		return s.fetchJSON(ctx)
	}
}

func (s *ZoneSource) fetchJSON(ctx context.Context) ([]Record, error) {
	rc, err := open(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	resp, err := fetcher.DecodeJSONObject[overpassResponse](rc)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: parse %s", s.Name(), s.location)
	}

	var records []Record
	for _, el := range resp.Elements {
		if el.Type != "node" {
			continue
		}
		records = append(records, zoneRecord{
			kind:    s.kind,
			id:      el.ID,
			lat:     el.Lat,
			lon:     el.Lon,
			name:    el.tag("name", "name:en"),
			address: zoneAddress(el.Tags),
		})
	}
	return records, nil
}

// osmNode is a <node> element in raw OSM XML.
type osmNode struct {
	ID  int64    `xml:"id,attr"`
	Lat *float64 `xml:"lat,attr"`
	Lon *float64 `xml:"lon,attr"`
	Tag []osmTag `xml:"tag"`
}

type osmTag struct {
	K string `xml:"k,attr"`
	V string `xml:"v,attr"`
}

func (s *ZoneSource) fetchXML(ctx context.Context) ([]Record, error) {
	rc, err := open(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	nodeCh, errCh := fetcher.StreamXML[osmNode](ctx, rc, "node")

	var records []Record
	for node := range nodeCh {
		tags := make(map[string]string, len(node.Tag))
		for _, t := range node.Tag {
			tags[t.K] = t.V
		}
		records = append(records, zoneRecord{
			kind:    s.kind,
			id:      node.ID,
			lat:     node.Lat,
			lon:     node.Lon,
			name:    firstTag(tags, "name", "name:en"),
			address: zoneAddress(tags),
		})
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "%s: parse %s", s.Name(), s.location)
	}
	return records, nil
}

// zoneAddress prefers the full address tag, then joins street and city,
// leaving the catalog to fill its placeholder when nothing is tagged.
func zoneAddress(tags map[string]string) string {
	if full := tags["addr:full"]; full != "" {
		return full
	}
	return strings.Trim(tags["addr:street"]+", "+tags["addr:city"], ", ")
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}

type zoneRecord struct {
	kind     model.ZoneKind
	id       int64
	lat, lon *float64
	name     string
	address  string
}

func (r zoneRecord) Key() string {
	return fmt.Sprintf("node %d", r.id)
}

func (r zoneRecord) Apply(ctx context.Context, cat *catalog.Catalog) (Outcome, error) {
	if r.lat == nil || r.lon == nil {
		return OutcomeSkipped, nil
	}

	_, err := cat.Zones.Create(ctx, catalog.ZoneInput{
		Kind:     r.kind,
		Point:    geodesy.Point{Lat: *r.lat, Lon: *r.lon},
		Name:     r.name,
		Address:  r.address,
		SourceID: fmt.Sprintf("osm-node-%d", r.id),
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeCreated, nil
}
