package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/resilience"
	"github.com/waypoint-labs/roadwatch/internal/spatial"
)

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

// respondGeoJSON is respondJSON with the GeoJSON media type.
func respondGeoJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("response encode failed", zap.Error(err))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// respondErr maps catalog and infrastructure errors onto HTTP statuses.
// Internal failures are logged and answered with a generic message.
func (s *server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case catalog.IsValidation(err):
		respondJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case eris.Is(err, catalog.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case eris.Is(err, catalog.ErrForbidden):
		respondJSON(w, http.StatusForbidden, errorBody(err.Error()))
	case eris.Is(err, catalog.ErrConflict):
		respondJSON(w, http.StatusConflict, errorBody(err.Error()))
	case resilience.IsTransient(err) || eris.Is(err, resilience.ErrCircuitOpen):
		s.log.Warn("upstream unavailable", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, errorBody("service temporarily unavailable"))
	default:
		s.log.Error("request failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// requester returns the caller identity from the X-User-ID header, empty
// for anonymous requests.
func requester(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &catalog.ValidationError{Field: "body", Reason: "must be valid JSON"}
	}
	return nil
}

func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &catalog.ValidationError{Field: name, Reason: "must be a number"}
	}
	return v, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &catalog.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return v, nil
}

// formFloat reads a required multipart form value.
func formFloat(r *http.Request, name string) (float64, error) {
	raw := r.FormValue(name)
	if raw == "" {
		return 0, &catalog.ValidationError{Field: name, Reason: "is required"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &catalog.ValidationError{Field: name, Reason: "must be a number"}
	}
	return v, nil
}

func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &catalog.ValidationError{Field: name, Reason: "must be true or false"}
	}
	return v, nil
}

// queryPoint reads the required latitude and longitude parameters. Range
// checks happen in the catalog.
func queryPoint(r *http.Request) (geodesy.Point, error) {
	for _, name := range []string{"latitude", "longitude"} {
		if r.URL.Query().Get(name) == "" {
			return geodesy.Point{}, &catalog.ValidationError{Field: name, Reason: "is required"}
		}
	}
	lat, err := queryFloat(r, "latitude", 0)
	if err != nil {
		return geodesy.Point{}, err
	}
	lon, err := queryFloat(r, "longitude", 0)
	if err != nil {
		return geodesy.Point{}, err
	}
	return geodesy.Point{Lat: lat, Lon: lon}, nil
}

// nearbyQuery assembles the parameters shared by every nearby endpoint.
// Zero radius and limit let the catalog apply its per-type defaults.
func nearbyQuery(r *http.Request) (catalog.NearbyQuery, error) {
	center, err := queryPoint(r)
	if err != nil {
		return catalog.NearbyQuery{}, err
	}
	radius, err := queryFloat(r, "radius_meters", 0)
	if err != nil {
		return catalog.NearbyQuery{}, err
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return catalog.NearbyQuery{}, err
	}
	minConf, err := queryFloat(r, "min_confidence", 0)
	if err != nil {
		return catalog.NearbyQuery{}, err
	}
	return catalog.NearbyQuery{
		Center:        center,
		RadiusM:       radius,
		Limit:         limit,
		MinConfidence: minConf,
	}, nil
}

// queryFormat reads the optional response format parameter of the polyline
// nearby endpoints. Only the JSON default and GeoJSON are supported.
func queryFormat(r *http.Request) (string, error) {
	switch f := r.URL.Query().Get("format"); f {
	case "", "json":
		return "json", nil
	case "geojson":
		return "geojson", nil
	default:
		return "", &catalog.ValidationError{Field: "format", Reason: "must be json or geojson"}
	}
}

// lineFeature renders a polyline entity as a GeoJSON Feature carrying the
// display properties a map layer needs.
func lineFeature(line geodesy.Polyline, props map[string]any) (map[string]any, error) {
	geometry, err := line.GeoJSON()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":       "Feature",
		"geometry":   json.RawMessage(geometry),
		"properties": props,
	}, nil
}

func featureCollection(features []map[string]any) map[string]any {
	return map[string]any{"type": "FeatureCollection", "features": features}
}

// items strips match distances; the API returns plain entity lists.
func items[T spatial.Entry](ms []spatial.Match[T]) []T {
	out := make([]T, len(ms))
	for i, m := range ms {
		out[i] = m.Item
	}
	return out
}
