package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.FeedCacheResult("hit")
	c.FeedCacheResult("hit")
	c.FeedCacheResult("miss")
	c.UpstreamFetch(true, 120*time.Millisecond)
	c.UpstreamFetch(false, 3*time.Second)
	c.ResolverMatch("code")
	c.SetStopsLoaded(4321)
	c.EventPublished(nil)
	c.EventPublished(errors.New("x"))
	c.NATSSetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.FeedCacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FeedCacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.UpstreamFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.UpstreamFetches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ResolverMatches.WithLabelValues("code")))
	assert.Equal(t, 4321.0, testutil.ToFloat64(c.StopsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventsPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EventPublishErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	assert.Equal(t, 1, testutil.CollectAndCount(c.UpstreamDuration))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ResolverMatch("name")

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `tfibus_resolver_matches_total{strategy="name"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
