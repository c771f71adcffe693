package stops

import (
	"context"
	"errors"
	"sort"

	"tfibus/internal/geo"
	"tfibus/internal/storage"
)

// ErrInvalidCoordinates is returned by Near for points outside WGS84 range.
var ErrInvalidCoordinates = errors.New("coordinates out of range")

// DefaultNearLimit applies when Near is called with a non-positive limit.
const DefaultNearLimit = 20

// NearbyStop is a stop with its great-circle distance from the query point.
type NearbyStop struct {
	storage.Stop
	DistanceMeters float64 `json:"distance_m"`
}

// Near returns stops closest to (lat, lon), nearest first. The store orders
// by a planar approximation; distances are refined on the sphere here.
// A positive radiusMeters drops stops farther than that.
func (r *Resolver) Near(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyStop, error) {
	origin := geo.Point{Lat: lat, Lon: lon}
	if !origin.Valid() {
		return nil, ErrInvalidCoordinates
	}
	if limit <= 0 {
		limit = DefaultNearLimit
	}
	if limit > r.maxNearLimit {
		limit = r.maxNearLimit
	}

	candidates, err := r.store.NearestStops(ctx, lat, lon, limit)
	if err != nil {
		return nil, err
	}

	out := make([]NearbyStop, 0, len(candidates))
	for _, s := range candidates {
		if !s.HasLocation() {
			continue
		}
		d, ok := origin.Within(geo.Point{Lat: *s.StopLat, Lon: *s.StopLon}, radiusMeters)
		if !ok {
			continue
		}
		out = append(out, NearbyStop{Stop: s, DistanceMeters: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	return out, nil
}
