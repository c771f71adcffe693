package handler

import (
	"net/http"
)

type healthResponse struct {
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	Stops          int    `json:"stops"`
	FeedTTLSeconds int    `json:"feed_ttl_seconds"`
}

// Health serves GET /api/health. It checks the stop store only; the
// upstream feed is not contacted.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.CountStops(r.Context())
	if err != nil {
		h.logger.Error("health check", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Backend: h.store.Backend()})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Backend:        h.store.Backend(),
		Stops:          n,
		FeedTTLSeconds: int(h.feedTTL.Seconds()),
	})
}

// Home serves the root banner.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("TFI bus backend is running\n"))
}
