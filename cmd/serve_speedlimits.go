package main

import (
	"net/http"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

type speedLimitRequest struct {
	Path          []geodesy.Point `json:"path"`
	SpeedLimitKmh int             `json:"speed_limit_kmh"`
	RoadName      string          `json:"road_name"`
	RoadType      string          `json:"road_type"`
	Direction     string          `json:"direction"`
	SourceID      string          `json:"source_id"`
	Notes         string          `json:"notes"`
}

func (s *server) handleSpeedLimitNearby(w http.ResponseWriter, r *http.Request) {
	q, err := nearbyQuery(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	format, err := queryFormat(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	ms, err := s.cat.SpeedLimits.Nearby(q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if format == "geojson" {
		features := make([]map[string]any, 0, len(ms))
		for _, m := range ms {
			f, err := lineFeature(m.Item.Path, map[string]any{
				"id":              m.Item.ID,
				"speed_limit_kmh": m.Item.SpeedLimitKmh,
				"road_name":       m.Item.RoadName,
				"direction":       m.Item.Direction,
				"confidence":      m.Item.Confidence,
			})
			if err != nil {
				s.respondErr(w, err)
				return
			}
			features = append(features, f)
		}
		respondGeoJSON(w, http.StatusOK, featureCollection(features))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"speed_limits": items(ms), "count": len(ms)})
}

func (s *server) handleSpeedLimitCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"count": s.cat.SpeedLimits.Count()})
}

func (s *server) handleSpeedLimitCreate(w http.ResponseWriter, r *http.Request) {
	var req speedLimitRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	path, err := geodesy.NewPolyline(req.Path)
	if err != nil {
		s.respondErr(w, &catalog.ValidationError{Field: "path", Reason: err.Error()})
		return
	}
	direction := model.TravelDirection(req.Direction)
	if direction == "" {
		direction = model.DirectionBoth
	}

	limit, merged, err := s.cat.SpeedLimits.Ingest(r.Context(), catalog.SpeedLimitInput{
		Path:          path,
		SpeedLimitKmh: req.SpeedLimitKmh,
		RoadName:      req.RoadName,
		RoadType:      req.RoadType,
		Direction:     direction,
		SourceID:      req.SourceID,
		Notes:         req.Notes,
		ReportedBy:    requester(r),
		Source:        catalog.SourceUser,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	respondJSON(w, status, limit)
}
