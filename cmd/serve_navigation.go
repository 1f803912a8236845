package main

import (
	"net/http"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

type reportRequest struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	TargetType string  `json:"target_type"`
	TargetID   string  `json:"target_id"`
	Kind       string  `json:"kind"`
	Reason     string  `json:"reason"`
	ImageURL   string  `json:"image_url"`
}

type routeRequest struct {
	Waypoints []geodesy.Point `json:"waypoints"`
}

// handleNavigationNearby answers one combined lookup across all four
// entity types. A zero radius lets each type use its own default.
func (s *server) handleNavigationNearby(w http.ResponseWriter, r *http.Request) {
	center, err := queryPoint(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	radius, err := queryFloat(r, "radius_meters", 0)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	res, err := s.cat.NavigationNear(r.Context(), center, radius)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cameras":         items(res.Cameras),
		"speed_limits":    items(res.SpeedLimits),
		"hazards":         items(res.Hazards),
		"hazardous_roads": items(res.HazardRoads),
		"counts":          res.Counts,
	})
}

func (s *server) handleNavigationRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	route, err := geodesy.NewPolyline(req.Waypoints)
	if err != nil {
		s.respondErr(w, &catalog.ValidationError{Field: "waypoints", Reason: err.Error()})
		return
	}

	res, err := s.cat.NavigationAlongRoute(r.Context(), route)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"cameras":      res.Cameras,
		"speed_limits": res.SpeedLimits,
		"counts":       res.Counts,
	})
}

func (s *server) handleReportCreate(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	rep, err := s.cat.Reports.Submit(r.Context(), catalog.ReportInput{
		UserID:     requester(r),
		Point:      geodesy.Point{Lat: req.Latitude, Lon: req.Longitude},
		TargetType: model.TargetType(req.TargetType),
		TargetID:   req.TargetID,
		Kind:       model.ReportKind(req.Kind),
		Reason:     req.Reason,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}
