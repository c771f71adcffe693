package stops

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfibus/internal/storage"
)

func located(id string, lat, lon float64) storage.Stop {
	return storage.Stop{StopID: id, StopName: id, StopLat: &lat, StopLon: &lon}
}

func TestNear_InvalidCoordinates(t *testing.T) {
	st := &traceStore{}
	r := NewResolver(st)
	for _, c := range [][2]float64{{91, 0}, {0, 181}, {math.NaN(), 0}, {-90.5, -6}} {
		_, err := r.Near(context.Background(), c[0], c[1], 500, 10)
		assert.True(t, errors.Is(err, ErrInvalidCoordinates), "%v", c)
	}
	assert.Empty(t, st.calls)
}

func TestNear_RefinesAndFilters(t *testing.T) {
	// Candidates arrive out of distance order; Near re-sorts them.
	st := &traceStore{nearest: []storage.Stop{
		located("east", 53.3498, -6.2560),
		located("north", 53.3520, -6.2603),
		{StopID: "nowhere", StopName: "No Location"},
		located("far", 53.4000, -6.2603),
	}}
	got, err := NewResolver(st).Near(context.Background(), 53.3498, -6.2603, 1000, 10)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "north", got[0].StopID)
	assert.Equal(t, "east", got[1].StopID)
	assert.InDelta(t, 245, got[0].DistanceMeters, 5)
	assert.LessOrEqual(t, got[0].DistanceMeters, got[1].DistanceMeters)
}

func TestNear_NoRadiusKeepsAll(t *testing.T) {
	st := &traceStore{nearest: []storage.Stop{
		located("a", 53.35, -6.26),
		located("b", 53.40, -6.26),
	}}
	got, err := NewResolver(st).Near(context.Background(), 53.35, -6.26, 0, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestNear_LimitDefaultsAndCap(t *testing.T) {
	st := &traceStore{}
	r := NewResolver(st, WithMaxNearLimit(50))
	ctx := context.Background()

	_, err := r.Near(ctx, 53.35, -6.26, 0, 0)
	require.NoError(t, err)
	_, err = r.Near(ctx, 53.35, -6.26, 0, 1000)
	require.NoError(t, err)

	assert.Equal(t, []int{DefaultNearLimit, 50}, st.limits)
}

func TestNear_StoreError(t *testing.T) {
	st := &traceStore{err: &storage.QueryError{Op: "nearest_stops", Err: errors.New("gone")}}
	_, err := NewResolver(st).Near(context.Background(), 53.35, -6.26, 0, 5)
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
}
