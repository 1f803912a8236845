package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

type cameraRequest struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	SpeedLimitKmh    int     `json:"speed_limit_kmh"`
	CameraKind       string  `json:"camera_kind"`
	DirectionDegrees *int    `json:"direction_degrees"`
	Notes            string  `json:"notes"`
}

func (s *server) handleCameraNearby(w http.ResponseWriter, r *http.Request) {
	q, err := nearbyQuery(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	q.VerifiedOnly, err = queryBool(r, "verified_only", false)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	ms, err := s.cat.Cameras.Nearby(q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cameras": items(ms), "count": len(ms)})
}

func (s *server) handleCameraList(w http.ResponseWriter, r *http.Request) {
	pol := s.cat.Policy().Cameras
	limit, err := queryInt(r, "limit", pol.DefaultLimit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if limit < 1 || limit > pol.MaxLimit {
		s.respondErr(w, &catalog.ValidationError{Field: "limit", Reason: "out of range"})
		return
	}

	cams := s.cat.Cameras.All(limit)
	respondJSON(w, http.StatusOK, map[string]any{"cameras": cams, "count": len(cams)})
}

func (s *server) handleCameraCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]int{"count": s.cat.Cameras.Count()})
}

func (s *server) handleCameraCreate(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}

	kind := model.CameraKind(req.CameraKind)
	if kind == "" {
		kind = model.CameraFixed
	}

	cam, merged, err := s.cat.Cameras.Ingest(r.Context(), catalog.CameraInput{
		Point:            geodesy.Point{Lat: req.Latitude, Lon: req.Longitude},
		SpeedLimitKmh:    req.SpeedLimitKmh,
		Kind:             kind,
		DirectionDegrees: req.DirectionDegrees,
		Notes:            req.Notes,
		ReportedBy:       requester(r),
		Source:           catalog.SourceUser,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	respondJSON(w, status, cam)
}

func (s *server) handleCameraDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.respondErr(w, &catalog.ValidationError{Field: "id", Reason: "must be a UUID"})
		return
	}

	if err := s.cat.Cameras.Delete(r.Context(), id, requester(r)); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
