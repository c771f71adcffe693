package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
	drained bool
	closed  bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}
func (f *fakeConn) Drain() error { f.drained = true; return nil }
func (f *fakeConn) Close()       { f.closed = true }

type countMetrics struct{ ok, failed int }

func (c *countMetrics) EventPublished(err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}
func (c *countMetrics) NATSSetConnected(bool) {}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestFeedRefreshed_Publishes(t *testing.T) {
	fc := &fakeConn{}
	m := &countMetrics{}
	p := newPublisher(fc, "", m, discard)

	at := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, p.FeedRefreshed(context.Background(), FeedRefreshed{FetchedAt: at, Entities: 412, FeedTimestamp: 1740817800}))

	assert.Equal(t, DefaultSubject, fc.subject)
	var got FeedRefreshed
	require.NoError(t, json.Unmarshal(fc.data, &got))
	assert.Equal(t, 412, got.Entities)
	assert.True(t, at.Equal(got.FetchedAt))
	assert.Equal(t, uint64(1740817800), got.FeedTimestamp)
	assert.Equal(t, 1, m.ok)
}

func TestFeedRefreshed_PublishError(t *testing.T) {
	fc := &fakeConn{err: errors.New("slow consumer")}
	m := &countMetrics{}
	p := newPublisher(fc, "dublin.feed", m, discard)

	err := p.FeedRefreshed(context.Background(), FeedRefreshed{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dublin.feed")
	assert.Equal(t, 1, m.failed)
}

func TestNilPublisher(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.FeedRefreshed(context.Background(), FeedRefreshed{Entities: 1}))
	assert.Equal(t, "", p.Subject())
	p.Close()
}

func TestClose(t *testing.T) {
	fc := &fakeConn{}
	newPublisher(fc, "x", nil, discard).Close()
	assert.True(t, fc.drained)
	assert.True(t, fc.closed)
}

func TestSanitizeSubject(t *testing.T) {
	tests := []struct{ in, want string }{
		{"tfibus.feed.refreshed", "tfibus.feed.refreshed"},
		{" tfibus.feed ", "tfibus.feed"},
		{"tfibus.>", "tfibus._"},
		{"a..b", "a._.b"},
		{"my feed.*", "my_feed._"},
		{"...", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeSubject(tt.in), tt.in)
	}
}
