package handler

import (
	"net/http"

	"tfibus/internal/realtime"
)

type arrivalsResponse struct {
	Arrivals []realtime.Arrival `json:"arrivals"`
}

// Arrivals serves GET /api/arrivals/{stopId}. An unavailable upstream looks
// the same as a stop with no trips: 404.
func (h *Handler) Arrivals(w http.ResponseWriter, r *http.Request) {
	stopID := r.PathValue("stopId")
	arrivals := h.arrivals.ForStop(r.Context(), stopID)
	if len(arrivals) == 0 {
		writeError(w, http.StatusNotFound, "No arrivals found")
		return
	}
	writeJSON(w, http.StatusOK, arrivalsResponse{Arrivals: arrivals})
}
