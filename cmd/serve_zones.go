package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/geodesy"
	"github.com/waypoint-labs/roadwatch/internal/model"
)

type zoneRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	SourceID  string  `json:"source_id"`
}

func (s *server) handleZoneNearby(kind model.ZoneKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := nearbyQuery(r)
		if err != nil {
			s.respondErr(w, err)
			return
		}

		ms, err := s.cat.Zones.Nearby(kind, q)
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"zones": items(ms), "count": len(ms)})
	}
}

func (s *server) handleZoneCreate(kind model.ZoneKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req zoneRequest
		if err := decodeBody(r, &req); err != nil {
			s.respondErr(w, err)
			return
		}

		z, err := s.cat.Zones.Create(r.Context(), catalog.ZoneInput{
			Kind:      kind,
			Point:     geodesy.Point{Lat: req.Latitude, Lon: req.Longitude},
			Name:      req.Name,
			Address:   req.Address,
			SourceID:  req.SourceID,
			CreatedBy: requester(r),
		})
		if err != nil {
			s.respondErr(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, z)
	}
}

func (s *server) handleZoneDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.respondErr(w, &catalog.ValidationError{Field: "id", Reason: "must be a UUID"})
		return
	}

	if err := s.cat.Zones.Delete(r.Context(), id, requester(r)); err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
