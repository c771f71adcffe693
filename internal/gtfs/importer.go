package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"tfibus/internal/geo"
	"tfibus/internal/storage"
)

// Metadata keys written by the importer.
const (
	MetaImportedAt   = "imported_at"
	MetaLastModified = "last_modified"
	MetaETag         = "etag"
)

// Store is the part of storage.DB the importer and scheduler use.
type Store interface {
	ReplaceStops(ctx context.Context, stops []storage.Stop, meta map[string]string) error
	HasData(ctx context.Context) bool
	GetMetadata(ctx context.Context, key string) (string, error)
}

// Importer loads parsed GTFS stops into the stop registry.
type Importer struct {
	db     Store
	logger *slog.Logger
	now    func() time.Time
}

// NewImporter creates an Importer.
func NewImporter(db Store, logger *slog.Logger) *Importer {
	return &Importer{db: db, logger: logger, now: time.Now}
}

// Import replaces all stops with feed.Stops in a single transaction and
// returns the number imported. Rows without a stop_id, duplicates and rows
// that are not boardable (entrances, pathway nodes, boarding areas) are
// skipped. Rows with unusable coordinates are kept without a location.
func (imp *Importer) Import(ctx context.Context, feed *Feed) (int, error) {
	start := imp.now()

	stops, st := convertStops(feed.Stops)
	if len(stops) == 0 {
		return 0, fmt.Errorf("import stops: no usable rows out of %d", len(feed.Stops))
	}

	meta := map[string]string{
		MetaImportedAt:   imp.now().UTC().Format(time.RFC3339),
		MetaLastModified: feed.LastModified,
		MetaETag:         feed.ETag,
	}
	if err := imp.db.ReplaceStops(ctx, stops, meta); err != nil {
		return 0, fmt.Errorf("import stops: %w", err)
	}

	imp.logger.Info("GTFS import complete",
		"stops", len(stops),
		"stations", st.stations,
		"skipped", st.skipped,
		"not_boardable", st.notBoardable,
		"without_location", st.unlocated,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return len(stops), nil
}

type convertStats struct {
	skipped      int
	notBoardable int
	stations     int
	unlocated    int
}

func convertStops(rows []Stop) ([]storage.Stop, convertStats) {
	var st convertStats
	seen := make(map[string]struct{}, len(rows))
	stops := make([]storage.Stop, 0, len(rows))
	for _, r := range rows {
		if r.StopID == "" {
			st.skipped++
			continue
		}
		if !r.Boardable() {
			st.notBoardable++
			continue
		}
		if _, dup := seen[r.StopID]; dup {
			st.skipped++
			continue
		}
		seen[r.StopID] = struct{}{}
		if r.LocationType == LocationStation {
			st.stations++
		}

		s := storage.Stop{StopID: r.StopID, StopCode: r.StopCode, StopName: r.StopName}
		lat, errLat := strconv.ParseFloat(r.StopLat, 64)
		lon, errLon := strconv.ParseFloat(r.StopLon, 64)
		if errLat == nil && errLon == nil && (geo.Point{Lat: lat, Lon: lon}).Valid() {
			s.StopLat, s.StopLon = &lat, &lon
		} else {
			st.unlocated++
		}
		stops = append(stops, s)
	}
	return stops, st
}

// IsFresh reports whether the last import happened less than maxAge ago.
func IsFresh(ctx context.Context, db Store, maxAge time.Duration, now time.Time) bool {
	v, err := db.GetMetadata(ctx, MetaImportedAt)
	if err != nil || v == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return false
	}
	return now.Sub(at) < maxAge
}
