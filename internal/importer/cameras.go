package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/fetcher"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

const (
	cameraBatchSize = 100

	// Registry exports mark unposted limits with "/"; those cameras default
	// to 60 km/h.
	defaultCameraSpeedKmh = 60
)

// CameraSource loads speed camera registry exports. JSON feeds carry the
// cameras under a top-level "cameras" key, though some mirrors strip the
// wrapper and serve a bare array; CSV and XLSX exports carry one row per
// camera under a header naming the same fields.
type CameraSource struct {
	location string
	client   fetcher.Fetcher
}

func NewCameraSource(location string, client fetcher.Fetcher) *CameraSource {
	return &CameraSource{location: location, client: client}
}

func (s *CameraSource) Name() string   { return "cameras" }
func (s *CameraSource) BatchSize() int { return cameraBatchSize }

func (s *CameraSource) Fetch(ctx context.Context) ([]Record, error) {
	var (
		rows []cameraRow
		err  error
	)
	switch datasetExt(s.location) {
	case ".csv":
		rows, err = s.fetchCSV(ctx)
	case ".xlsx":
		rows, err = s.fetchXLSX(ctx)
	default:
		rows, err = s.fetchJSON(ctx)
	}
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = cameraRecord{row: row, pos: i}
	}
	return records, nil
}

type cameraFeed struct {
	Cameras []cameraRow `json:"cameras"`
}

// cameraRow tolerates the loose typing of registry exports, where
// coordinates, speeds, and ids arrive quoted in some files and bare in
// others.
type cameraRow struct {
	ID         looseString `json:"id"`
	Latitude   looseString `json:"latitude"`
	Longitude  looseString `json:"longitude"`
	SpeedLimit looseString `json:"speed_limit"`
	CameraType looseString `json:"camera_type"`
	Direction  looseString `json:"direction"`
	Street     looseString `json:"street"`
	City       looseString `json:"city"`
}

func (s *CameraSource) fetchJSON(ctx context.Context) ([]cameraRow, error) {
	rc, err := open(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	bare, err := startsWithArray(br)
	if err != nil {
		return nil, eris.Wrapf(err, "cameras: parse %s", s.location)
	}
	if !bare {
		feed, err := fetcher.DecodeJSONObject[cameraFeed](br)
		if err != nil {
			return nil, eris.Wrapf(err, "cameras: parse %s", s.location)
		}
		return feed.Cameras, nil
	}

	rowCh, errCh := fetcher.DecodeJSONArray[cameraRow](ctx, br)
	var rows []cameraRow
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "cameras: parse %s", s.location)
	}
	return rows, nil
}

// startsWithArray peeks past leading whitespace for a '[' and leaves the
// byte unconsumed.
func startsWithArray(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			if err := br.UnreadByte(); err != nil {
				return false, err
			}
			return b == '[', nil
		}
	}
}

func (s *CameraSource) fetchCSV(ctx context.Context) ([]cameraRow, error) {
	rc, err := open(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, rc, fetcher.CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var raw [][]string
	for row := range rowCh {
		raw = append(raw, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "cameras: parse %s", s.location)
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
	}
	return tabularCameraRows(header, raw), nil
}

func (s *CameraSource) fetchXLSX(ctx context.Context) ([]cameraRow, error) {
	path, cleanup, err := localPath(ctx, s.client, s.location)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	headerCh := make(chan []string, 1)
	raw, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: 1, HeaderCh: headerCh})
	if err != nil {
		return nil, eris.Wrapf(err, "cameras: parse %s", s.location)
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
	}
	return tabularCameraRows(header, raw), nil
}

func tabularCameraRows(header []string, raw [][]string) []cameraRow {
	idx := mapColumns(header)
	rows := make([]cameraRow, len(raw))
	for i, rec := range raw {
		rows[i] = cameraRow{
			ID:         looseString(getCol(rec, idx, "id")),
			Latitude:   looseString(getCol(rec, idx, "latitude")),
			Longitude:  looseString(getCol(rec, idx, "longitude")),
			SpeedLimit: looseString(getCol(rec, idx, "speed_limit")),
			CameraType: looseString(getCol(rec, idx, "camera_type")),
			Direction:  looseString(getCol(rec, idx, "direction")),
			Street:     looseString(getCol(rec, idx, "street")),
			City:       looseString(getCol(rec, idx, "city")),
		}
	}
	return rows
}

type cameraRecord struct {
	row cameraRow
	pos int
}

func (r cameraRecord) Key() string {
	if r.row.ID != "" {
		return string(r.row.ID)
	}
	return fmt.Sprintf("row %d", r.pos)
}

func (r cameraRecord) Apply(ctx context.Context, cat *catalog.Catalog) (Outcome, error) {
	lat, latErr := r.row.Latitude.float()
	lon, lonErr := r.row.Longitude.float()
	if latErr != nil || lonErr != nil {
		return OutcomeSkipped, nil
	}

	_, merged, err := cat.Cameras.Ingest(ctx, catalog.CameraInput{
		Point:            geodesy.Point{Lat: lat, Lon: lon},
		SpeedLimitKmh:    cameraSpeed(string(r.row.SpeedLimit)),
		Kind:             cameraKind(string(r.row.CameraType)),
		DirectionDegrees: cameraDirection(string(r.row.Direction)),
		Notes:            fmt.Sprintf("Imported from %s, %s", orUnknown(string(r.row.Street)), orUnknown(string(r.row.City))),
		Source:           catalog.SourceImport,
	})
	if err != nil {
		return OutcomeSkipped, err
	}
	if merged {
		return OutcomeMerged, nil
	}
	return OutcomeCreated, nil
}

func cameraSpeed(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "/" {
		return defaultCameraSpeedKmh
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultCameraSpeedKmh
	}
	return v
}

func cameraKind(code string) model.CameraKind {
	switch strings.TrimSpace(code) {
	case "M":
		return model.CameraMobile
	case "A":
		return model.CameraAverageSpeed
	default:
		return model.CameraFixed
	}
}

func cameraDirection(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d < 0 || d >= 360 {
		return nil
	}
	return &d
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "Unknown"
	}
	return v
}

// looseString decodes a JSON value that may arrive quoted or bare.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*s = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	*s = looseString(raw)
	return nil
}

func (s looseString) float() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
}

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol returns a column value by name, or empty string if absent.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}
