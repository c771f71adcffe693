package handler

import (
	"errors"
	"net/http"
	"strings"

	"tfibus/internal/storage"
	"tfibus/internal/stops"
)

// SearchStops serves GET /api/stops?query=&limit= (name search only).
func (h *Handler) SearchStops(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	limit := queryInt(r, "limit", h.limits.Search)

	found, err := h.resolver.SearchByName(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("search stops", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stops by query")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(found))
}

type findResponse struct {
	Query   string         `json:"query"`
	Results []storage.Stop `json:"results"`
}

// FindStops serves GET /api/stops/find?q= through the full resolver cascade.
func (h *Handler) FindStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	found, err := h.resolver.Resolve(r.Context(), q, h.limits.Find)
	if err != nil {
		h.logger.Error("find stops", "query", q, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to find stops")
		return
	}
	writeJSON(w, http.StatusOK, findResponse{Query: q, Results: nonNil(found)})
}

type nearResponse struct {
	Count int                `json:"count"`
	Stops []stops.NearbyStop `json:"stops"`
}

// NearStops serves GET /api/stops/near?lat=&lon=&radius_m=500&limit=20.
func (h *Handler) NearStops(w http.ResponseWriter, r *http.Request) {
	lat, okLat := queryFloat(r, "lat")
	lon, okLon := queryFloat(r, "lon")
	if !okLat || !okLon {
		writeError(w, http.StatusBadRequest, "lat and lon are required numeric query params")
		return
	}
	radius := 500.0
	if v, ok := queryFloat(r, "radius_m"); ok && v > 0 {
		radius = v
	}
	limit := queryInt(r, "limit", stops.DefaultNearLimit)
	if limit > h.limits.NearMax {
		limit = h.limits.NearMax
	}

	found, err := h.resolver.Near(r.Context(), lat, lon, radius, limit)
	if errors.Is(err, stops.ErrInvalidCoordinates) {
		writeError(w, http.StatusBadRequest, "lat and lon must be valid WGS84 degrees")
		return
	}
	if err != nil {
		h.logger.Error("nearby stops", "lat", lat, "lon", lon, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to query nearby stops")
		return
	}
	if found == nil {
		found = []stops.NearbyStop{}
	}
	writeJSON(w, http.StatusOK, nearResponse{Count: len(found), Stops: found})
}

// StopByID serves GET /api/stops/{stopId}.
func (h *Handler) StopByID(w http.ResponseWriter, r *http.Request) {
	stopID := strings.TrimSpace(r.PathValue("stopId"))
	stop, ok, err := h.resolver.ByID(r.Context(), stopID)
	if err != nil {
		h.logger.Error("fetch stop", "stop_id", stopID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch stop")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Stop not found")
		return
	}
	writeJSON(w, http.StatusOK, stop)
}

func nonNil(s []storage.Stop) []storage.Stop {
	if s == nil {
		return []storage.Stop{}
	}
	return s
}
