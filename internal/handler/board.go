package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"tfibus/internal/realtime"
	"tfibus/internal/view"
)

var dublin = loadDublin()

func loadDublin() *time.Location {
	loc, err := time.LoadLocation("Europe/Dublin")
	if err != nil {
		return time.UTC
	}
	return loc
}

// StopBoard serves the HTML page for a single stop.
func (h *Handler) StopBoard(w http.ResponseWriter, r *http.Request) {
	stopID := r.PathValue("stopId")
	ctx := r.Context()

	stop, ok, err := h.resolver.ByID(ctx, stopID)
	if err != nil {
		h.logger.Error("fetching stop", "stop_id", stopID, "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	now := h.now()
	data := view.StopBoardData{
		Page:     view.Page{Title: stop.StopName},
		StopID:   stop.StopID,
		StopCode: stop.StopCode,
		StopName: stop.StopName,
		Lat:      stop.StopLat,
		Lon:      stop.StopLon,
		Arrivals: boardRows(h.arrivals.ForStop(ctx, stop.StopID), stop.StopID, now),
		Updated:  now.In(dublin).Format("15:04:05"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.StopBoard(data).Render(ctx, w); err != nil {
		h.logger.Error("rendering stop board", "error", err)
	}
}

// SSEArrivals streams the arrivals list for a stop via Server-Sent Events,
// once per feed TTL.
func (h *Handler) SSEArrivals(w http.ResponseWriter, r *http.Request) {
	stopID := r.PathValue("stopId")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	h.sendArrivalsEvent(ctx, w, flusher, stopID)

	ticker := time.NewTicker(h.feedTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sendArrivalsEvent(ctx, w, flusher, stopID)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) sendArrivalsEvent(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, stopID string) {
	now := h.now()
	rows := boardRows(h.arrivals.ForStop(ctx, stopID), stopID, now)

	var buf bytes.Buffer
	if err := view.ArrivalList(rows, now.In(dublin).Format("15:04:05")).Render(ctx, &buf); err != nil {
		h.logger.Error("rendering SSE arrival list", "error", err)
		return
	}

	// SSE format: event name, then data lines (each line prefixed with "data: ")
	fmt.Fprintf(w, "event: arrivals\n")
	for _, line := range bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprintf(w, "\n")
	flusher.Flush()
}

type boardRow struct {
	row view.ArrivalRow
	at  int64 // POSIX seconds, 0 when the feed gave no time
}

// boardRows turns arrivals into board lines using each trip's update for
// stopID, soonest first. Trips without a predicted time sort last.
func boardRows(arrivals []realtime.Arrival, stopID string, now time.Time) []view.ArrivalRow {
	rows := make([]boardRow, 0, len(arrivals))
	for _, a := range arrivals {
		u, ok := updateFor(a, stopID)
		if !ok {
			continue
		}
		ev := u.Arrival
		if ev == nil {
			ev = u.Departure
		}
		var at int64
		var delay *int32
		if ev != nil {
			if ev.Time != nil {
				at = *ev.Time
			}
			delay = ev.Delay
		}
		rows = append(rows, boardRow{
			row: view.ArrivalRow{
				RouteID: a.RouteID,
				TripID:  a.TripID,
				Due:     formatDue(at, now),
				Status:  formatDelay(delay, u.ScheduleRelationship),
				Late:    delay != nil && *delay >= 60,
			},
			at: at,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if (rows[i].at == 0) != (rows[j].at == 0) {
			return rows[j].at == 0
		}
		return rows[i].at < rows[j].at
	})

	out := make([]view.ArrivalRow, len(rows))
	for i, r := range rows {
		out[i] = r.row
	}
	return out
}

func updateFor(a realtime.Arrival, stopID string) (realtime.StopUpdate, bool) {
	for _, u := range a.StopUpdates {
		if u.StopID == stopID {
			return u, true
		}
	}
	return realtime.StopUpdate{}, false
}

// formatDue renders a predicted POSIX time relative to now.
func formatDue(at int64, now time.Time) string {
	if at == 0 {
		return "Live"
	}
	mins := int(time.Unix(at, 0).Sub(now).Minutes())
	switch {
	case mins <= 0:
		return "Due"
	case mins < 60:
		return fmt.Sprintf("%d min", mins)
	default:
		return time.Unix(at, 0).In(dublin).Format("15:04")
	}
}

// formatDelay renders a delay in seconds; within a minute either way is on time.
func formatDelay(delay *int32, rel string) string {
	if rel == "SKIPPED" {
		return "Skipped"
	}
	if rel == "NO_DATA" || delay == nil {
		return "Scheduled"
	}
	d := int(*delay)
	switch {
	case d >= 60:
		return fmt.Sprintf("%d min late", d/60)
	case d <= -60:
		return fmt.Sprintf("%d min early", -d/60)
	default:
		return "On time"
	}
}
