package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/pkg/detector"
)

const (
	maxUploadBytes = 10 << 20

	// Detections above this confidence are filed as high severity.
	highSeverityConfidence = 0.70
)

type hazardRequest struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	HazardType     string  `json:"hazard_type"`
	Severity       string  `json:"severity"`
	Description    string  `json:"description"`
	ImageURL       string  `json:"image_url"`
	ExpiresMinutes int     `json:"expires_minutes"`
}

func (s *server) handleHazardNearby(w http.ResponseWriter, r *http.Request) {
	q, err := nearbyQuery(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	q.ActiveOnly, err = queryBool(r, "active_only", true)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	ms, err := s.cat.Hazards.Nearby(q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"hazards": items(ms), "count": len(ms)})
}

func (s *server) handleHazardCreate(w http.ResponseWriter, r *http.Request) {
	var req hazardRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	severity := model.Severity(req.Severity)
	if severity == "" {
		severity = model.SeverityMedium
	}
	var expires *time.Time
	if req.ExpiresMinutes > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpiresMinutes) * time.Minute)
		expires = &t
	}

	hz, merged, err := s.cat.Hazards.Ingest(r.Context(), catalog.HazardInput{
		Point:       geodesy.Point{Lat: req.Latitude, Lon: req.Longitude},
		HazardType:  req.HazardType,
		Severity:    severity,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		ExpiresAt:   expires,
		DetectedBy:  requester(r),
		Source:      catalog.SourceUser,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	respondJSON(w, status, hz)
}

// handleHazardDetect classifies an uploaded road photo and files a hazard
// at the supplied location when the classifier is confident enough.
func (s *server) handleHazardDetect(w http.ResponseWriter, r *http.Request) {
	if s.det == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody("photo detection is not configured"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondErr(w, &catalog.ValidationError{Field: "body", Reason: "must be a multipart form"})
		return
	}
	lat, err := formFloat(r, "latitude")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	lon, err := formFloat(r, "longitude")
	if err != nil {
		s.respondErr(w, err)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondErr(w, &catalog.ValidationError{Field: "image", Reason: "is required"})
		return
	}
	defer file.Close()

	img, err := io.ReadAll(file)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}

	dets, err := s.det.Detect(r.Context(), img, mime)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	top, ok := detector.Primary(dets)
	if !ok || top.Confidence < s.minDetect {
		respondJSON(w, http.StatusOK, map[string]string{"status": "no_damage"})
		return
	}

	severity := model.SeverityMedium
	if top.Confidence > highSeverityConfidence {
		severity = model.SeverityHigh
	}

	hz, merged, err := s.cat.Hazards.Ingest(r.Context(), catalog.HazardInput{
		Point:       geodesy.Point{Lat: lat, Lon: lon},
		HazardType:  top.Label,
		Severity:    severity,
		Description: fmt.Sprintf("Auto-detected %s from road photo.", top.Label),
		DetectedBy:  requester(r),
		Source:      catalog.SourceDetect,
		Confidence:  top.Confidence,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}

	status := http.StatusCreated
	if merged {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{
		"status":      "damage_detected",
		"hazard_type": top.Label,
		"confidence":  top.Confidence,
		"hazard":      hz,
	})
}

func (s *server) handleHazardRoadNearby(w http.ResponseWriter, r *http.Request) {
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

	ms, err := s.cat.Segments.Nearby(q)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if format == "geojson" {
		features := make([]map[string]any, 0, len(ms))
		for _, m := range ms {
			f, err := lineFeature(m.Item.Path, map[string]any{
				"id":          m.Item.ID,
				"hazard_type": m.Item.HazardType,
				"severity":    m.Item.Severity,
				"road_name":   m.Item.RoadName,
				"confidence":  m.Item.Confidence,
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
	respondJSON(w, http.StatusOK, map[string]any{"hazardous_roads": items(ms), "count": len(ms)})
}
