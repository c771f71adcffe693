package stops

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tfibus/internal/storage"
)

// traceStore records every call so tests can assert where the cascade stopped.
type traceStore struct {
	calls  []string
	limits []int

	byID       map[string]storage.Stop
	idContains []storage.Stop
	byCode     []storage.Stop
	suffix     []storage.Stop
	name       []storage.Stop
	similar    []storage.Stop
	nearest    []storage.Stop
	err        error
}

func (s *traceStore) record(call string, limit int) {
	s.calls = append(s.calls, call)
	s.limits = append(s.limits, limit)
}

func take(stops []storage.Stop, limit int) []storage.Stop {
	if len(stops) > limit {
		return stops[:limit]
	}
	return stops
}

func (s *traceStore) StopByID(_ context.Context, id string) (storage.Stop, bool, error) {
	s.record("StopByID", 0)
	if s.err != nil {
		return storage.Stop{}, false, s.err
	}
	stop, ok := s.byID[id]
	return stop, ok, nil
}

func (s *traceStore) StopsByIDContains(_ context.Context, _ string, limit int) ([]storage.Stop, error) {
	s.record("StopsByIDContains", limit)
	return take(s.idContains, limit), s.err
}

func (s *traceStore) StopsByCode(_ context.Context, _ string, limit int) ([]storage.Stop, error) {
	s.record("StopsByCode", limit)
	return take(s.byCode, limit), s.err
}

func (s *traceStore) StopsByIDSuffix(_ context.Context, _ string, limit int) ([]storage.Stop, error) {
	s.record("StopsByIDSuffix", limit)
	return take(s.suffix, limit), s.err
}

func (s *traceStore) StopsByNameContains(_ context.Context, _ string, limit int) ([]storage.Stop, error) {
	s.record("StopsByNameContains", limit)
	return take(s.name, limit), s.err
}

func (s *traceStore) StopsBySimilarity(_ context.Context, _ string, limit int) ([]storage.Stop, error) {
	s.record("StopsBySimilarity", limit)
	return take(s.similar, limit), s.err
}

func (s *traceStore) NearestStops(_ context.Context, _, _ float64, limit int) ([]storage.Stop, error) {
	s.record("NearestStops", limit)
	return take(s.nearest, limit), s.err
}

func stop(id string) storage.Stop { return storage.Stop{StopID: id, StopName: "Stop " + id} }

func TestResolve_EmptyQueryNoStoreAccess(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		st := &traceStore{}
		r := NewResolver(st)
		got, err := r.Resolve(context.Background(), q, 10)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.Empty(t, st.calls, "query %q must not touch the store", q)
	}
}

func TestResolve_ExactIDShortCircuits(t *testing.T) {
	exact := stop("8220DB000001")
	st := &traceStore{
		byID:       map[string]storage.Stop{"8220DB000001": exact},
		idContains: []storage.Stop{stop("8220DB0000011"), stop("8220DB0000012")},
	}
	r := NewResolver(st)

	for _, limit := range []int{1, 10, 500} {
		st.calls = nil
		got, strategy, err := r.ResolveWithStrategy(context.Background(), " 8220DB000001 ", limit)
		require.NoError(t, err)
		assert.Equal(t, []storage.Stop{exact}, got)
		assert.Equal(t, StrategyExactID, strategy)
		assert.Equal(t, []string{"StopByID"}, st.calls)
	}
}

func TestResolve_FullIDFallsBackToContains(t *testing.T) {
	st := &traceStore{idContains: []storage.Stop{stop("8220DB000001")}}
	got, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "db00000", 10)
	require.NoError(t, err)
	assert.Equal(t, StrategyIDContains, strategy)
	assert.Len(t, got, 1)
	assert.Equal(t, []string{"StopByID", "StopsByIDContains"}, st.calls)
}

func TestResolve_NumericCodeShortCircuits(t *testing.T) {
	st := &traceStore{
		byCode: []storage.Stop{stop("8220DB000123")},
		suffix: []storage.Stop{stop("X123")},
	}
	got, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "123", 5)
	require.NoError(t, err)
	assert.Equal(t, StrategyCode, strategy)
	assert.Equal(t, "8220DB000123", got[0].StopID)
	assert.Equal(t, []string{"StopsByCode"}, st.calls, "short numeric skips full-id step and stops at code")
}

func TestResolve_NumericSuffix(t *testing.T) {
	st := &traceStore{suffix: []storage.Stop{stop("8220DB000319"), stop("8240DB007319")}}
	got, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "319", 5)
	require.NoError(t, err)
	assert.Equal(t, StrategyIDSuffix, strategy)
	assert.Len(t, got, 2)
	assert.Equal(t, []string{"StopsByCode", "StopsByIDSuffix"}, st.calls)
}

func TestResolve_NumericContains(t *testing.T) {
	st := &traceStore{idContains: []storage.Stop{stop("8220DB031900")}}
	_, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "319", 5)
	require.NoError(t, err)
	assert.Equal(t, StrategyNumericIDContains, strategy)
	assert.Equal(t, []string{"StopsByCode", "StopsByIDSuffix", "StopsByIDContains"}, st.calls)
}

func TestResolve_CascadeReachesSimilarity(t *testing.T) {
	st := &traceStore{similar: []storage.Stop{stop("8220DB001230")}}
	got, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "123", 5)
	require.NoError(t, err)
	assert.Equal(t, StrategySimilarity, strategy)
	assert.Equal(t, []storage.Stop{stop("8220DB001230")}, got)
	assert.Equal(t, []string{
		"StopsByCode", "StopsByIDSuffix", "StopsByIDContains",
		"StopsByNameContains", "StopsBySimilarity",
	}, st.calls)
}

func TestResolve_SevenDigitsRunsBothBranches(t *testing.T) {
	st := &traceStore{byCode: []storage.Stop{stop("A")}}
	_, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "1234567", 5)
	require.NoError(t, err)
	assert.Equal(t, StrategyCode, strategy)
	assert.Equal(t, []string{"StopByID", "StopsByIDContains", "StopsByCode"}, st.calls)
}

func TestResolve_TextGoesToName(t *testing.T) {
	st := &traceStore{name: []storage.Stop{stop("8220DB000001")}}
	_, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "Connell", 5)
	require.NoError(t, err)
	assert.Equal(t, StrategyName, strategy)
	assert.Equal(t, []string{"StopByID", "StopsByIDContains", "StopsByNameContains"}, st.calls)
}

func TestResolve_NothingFound(t *testing.T) {
	st := &traceStore{}
	got, strategy, err := NewResolver(st).ResolveWithStrategy(context.Background(), "nowhere", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, StrategyNone, strategy)
}

func TestResolve_DefaultLimit(t *testing.T) {
	st := &traceStore{}
	_, err := NewResolver(st).Resolve(context.Background(), "123", 0)
	require.NoError(t, err)
	for i, l := range st.limits {
		assert.Equal(t, DefaultLimit, l, "call %s", st.calls[i])
	}
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	boom := &storage.QueryError{Op: "stops_by_code", Err: errors.New("connection refused")}
	st := &traceStore{err: boom}
	got, err := NewResolver(st).Resolve(context.Background(), "123", 5)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
	assert.Equal(t, []string{"StopsByCode"}, st.calls)
}

func TestResolve_MatchHook(t *testing.T) {
	st := &traceStore{name: []storage.Stop{stop("1")}}
	var seen []Strategy
	r := NewResolver(st, WithMatchHook(func(s Strategy) { seen = append(seen, s) }))
	_, err := r.Resolve(context.Background(), "Parnell", 5)
	require.NoError(t, err)
	assert.Equal(t, []Strategy{StrategyName}, seen)
}

func TestSearchByName_StripsApostrophes(t *testing.T) {
	st := &traceStore{name: []storage.Stop{stop("8220DB000001")}}
	got, err := NewResolver(st).SearchByName(context.Background(), "O'Connell", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []int{DefaultLimit}, st.limits)
}

// End-to-end against the SQLite store.

func newSQLiteResolver(t *testing.T) *Resolver {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := storage.OpenSQLite(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lat, lon := 53.3498, -6.2603
	require.NoError(t, db.ReplaceStops(context.Background(), []storage.Stop{
		{StopID: "8220DB000001", StopCode: "001", StopName: "O'Connell Street", StopLat: &lat, StopLon: &lon},
		{StopID: "8220DB000319", StopCode: "319", StopName: "Drumcondra Road"},
		{StopID: "8240DB007319", StopCode: "7319", StopName: "Swords Road"},
		{StopID: "8220IR0025", StopName: "Connolly Station"},
		{StopID: "8250DB002345", StopName: "Dún Laoghaire"},
	}, nil))
	return NewResolver(db)
}

func TestResolve_SQLite(t *testing.T) {
	r := newSQLiteResolver(t)
	ctx := context.Background()

	tests := []struct {
		query    string
		strategy Strategy
		want     []string
	}{
		{"OConnell", StrategyName, []string{"8220DB000001"}},
		{"8220DB000001", StrategyExactID, []string{"8220DB000001"}},
		{"001", StrategyCode, []string{"8220DB000001"}},
		{"7319", StrategyCode, []string{"8240DB007319"}},
		{"00319", StrategyIDSuffix, []string{"8220DB000319"}},
		{"ir00", StrategyIDContains, []string{"8220IR0025"}},
		{"Conolly Staton", StrategySimilarity, []string{"8220IR0025"}},
		{"dún laoghaire", StrategyName, []string{"8250DB002345"}},
		{"DÚN", StrategyName, []string{"8250DB002345"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, strategy, err := r.ResolveWithStrategy(ctx, tt.query, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.strategy, strategy)
			gotIDs := make([]string, len(got))
			for i, s := range got {
				gotIDs[i] = s.StopID
			}
			assert.Equal(t, tt.want, gotIDs)
		})
	}
}
