package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tfibus/internal/handler"
	"tfibus/internal/realtime"
	"tfibus/internal/storage"
	"tfibus/internal/stops"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type noArrivals struct{}

func (noArrivals) ForStop(context.Context, string) []realtime.Arrival { return nil }

func newTestServer(t *testing.T, ready bool) *Server {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:", discard)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	lat, lon := 53.3498, -6.2603
	if err := db.ReplaceStops(context.Background(), []storage.Stop{
		{StopID: "8220DB000001", StopCode: "001", StopName: "O'Connell Street", StopLat: &lat, StopLon: &lon},
	}, nil); err != nil {
		t.Fatalf("ReplaceStops: %v", err)
	}
	h := handler.New(stops.NewResolver(db), noArrivals{}, db, handler.Limits{}, 30*time.Second, discard)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics\n")) })
	return New(h, Options{Port: 0, Metrics: metrics}, ready, discard)
}

func do(s *Server, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, true)
	rec := do(s, http.MethodGet, "/api/stops/8220DB000001", nil)

	want := map[string]string{
		"X-Content-Type-Options":      "nosniff",
		"X-Frame-Options":             "DENY",
		"Referrer-Policy":             "strict-origin-when-cross-origin",
		"Access-Control-Allow-Origin": "*",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, true)
	rec := do(s, http.MethodOptions, "/api/stops/find", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "GET",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "GET") {
		t.Errorf("Allow-Methods = %q", got)
	}
}

func TestWaitForData(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantType   string
	}{
		{"api while loading", "/api/stops/find?q=1", http.StatusServiceUnavailable, "application/json"},
		{"page while loading", "/stops/8220DB000001", http.StatusServiceUnavailable, "text/html"},
		{"health passes", "/api/health", http.StatusOK, "application/json"},
		{"metrics passes", "/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantType != "" && !strings.HasPrefix(rec.Header().Get("Content-Type"), tt.wantType) {
				t.Errorf("Content-Type = %q, want %s", rec.Header().Get("Content-Type"), tt.wantType)
			}
		})
	}

	rec := do(s, http.MethodGet, "/", nil)
	if rec.Header().Get("Retry-After") != "5" || !strings.Contains(rec.Body.String(), "Downloading stop data") {
		t.Errorf("loading page: Retry-After=%q body=%q", rec.Header().Get("Retry-After"), rec.Body.String())
	}

	s.SetReady()
	s.SetReady() // idempotent
	if rec := do(s, http.MethodGet, "/api/stops/find?q=001", nil); rec.Code != http.StatusOK {
		t.Errorf("after SetReady status = %d, want 200", rec.Code)
	}
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, true)
	tests := []struct {
		path string
		want int
	}{
		{"/", http.StatusOK},
		{"/api/stops?query=connell", http.StatusOK},
		{"/api/stops/near?lat=53.35&lon=-6.26", http.StatusOK},
		{"/api/stops/missing", http.StatusNotFound},
		{"/api/arrivals/8220DB000001", http.StatusNotFound},
		{"/stops/8220DB000001", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(s, http.MethodGet, tt.path, nil); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
	if rec := do(s, http.MethodPost, "/api/stops/find", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: 200}
	sw.WriteHeader(http.StatusTeapot)
	sw.Flush()
	if sw.status != http.StatusTeapot || !rec.Flushed {
		t.Errorf("status = %d flushed = %v", sw.status, rec.Flushed)
	}
}
