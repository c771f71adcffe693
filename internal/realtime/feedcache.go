package realtime

import (
	"context"
	"log/slog"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/proto"

	"tfibus/internal/events"
	"tfibus/internal/kvcache"
)

const (
	// FeedKey is the single cache key the decoded feed lives under.
	FeedKey = "feed"
	// DefaultTTL is how long a fetched feed is served before refetching.
	DefaultTTL = 30 * time.Second
)

// Fetcher is the upstream feed source. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (*gtfs.FeedMessage, error)
}

// RefreshListener is told about every successful upstream fetch.
// *events.Publisher implements it.
type RefreshListener interface {
	FeedRefreshed(ctx context.Context, ev events.FeedRefreshed) error
}

// Recorder receives cache and upstream counters. *metrics.Collector
// implements it.
type Recorder interface {
	FeedCacheResult(result string)
	UpstreamFetch(ok bool, elapsed time.Duration)
}

// Unknown fields and extensions survive the round trip, so a hit is
// byte-for-byte the feed that was fetched.
var (
	cacheCodec   = proto.MarshalOptions{Deterministic: true, AllowPartial: true}
	cacheDecoder = proto.UnmarshalOptions{AllowPartial: true}
)

// FeedCache serves the realtime feed cache-aside: a value in the cache is
// returned as is, a miss fetches upstream once and stores the encoded feed
// for the TTL. Concurrent misses share one upstream fetch.
type FeedCache struct {
	cache    kvcache.Cache
	upstream Fetcher
	ttl      time.Duration
	key      string
	logger   *slog.Logger
	listener RefreshListener
	recorder Recorder
	now      func() time.Time

	group singleflight.Group
}

// FeedCacheOption configures a FeedCache.
type FeedCacheOption func(*FeedCache)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) FeedCacheOption {
	return func(c *FeedCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) FeedCacheOption {
	return func(c *FeedCache) { c.logger = l }
}

// WithRefreshListener registers l for successful refreshes.
func WithRefreshListener(l RefreshListener) FeedCacheOption {
	return func(c *FeedCache) { c.listener = l }
}

// WithRecorder registers r for cache and upstream counters.
func WithRecorder(r Recorder) FeedCacheOption {
	return func(c *FeedCache) { c.recorder = r }
}

// NewFeedCache wires the cache handle and the upstream. The cache's
// lifetime belongs to the caller.
func NewFeedCache(cache kvcache.Cache, upstream Fetcher, opts ...FeedCacheOption) *FeedCache {
	c := &FeedCache{
		cache:    cache,
		upstream: upstream,
		ttl:      DefaultTTL,
		key:      FeedKey,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *FeedCache) TTL() time.Duration { return c.ttl }

// GetFeed returns the current feed. It never fails: when the feed is not
// cached and the upstream is unavailable it returns an empty feed.
func (c *FeedCache) GetFeed(ctx context.Context) *gtfs.FeedMessage {
	feed, err := c.Fetch(ctx)
	if err != nil {
		c.logger.Warn("serving empty feed", "error", err)
		return &gtfs.FeedMessage{}
	}
	return feed
}

// Fetch is GetFeed without degradation: an upstream failure on a miss is
// returned. The caller owns the returned message.
func (c *FeedCache) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	if feed, ok := c.lookup(ctx); ok {
		c.record("hit")
		return feed, nil
	}
	c.record("miss")

	ch := c.group.DoChan(c.key, func() (any, error) {
		// a flight that finished just before this one may have filled the cache
		if feed, ok := c.lookup(ctx); ok {
			return feed, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, &FetchError{Stage: "request", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		feed := res.Val.(*gtfs.FeedMessage)
		if res.Shared {
			feed = proto.Clone(feed).(*gtfs.FeedMessage)
		}
		return feed, nil
	}
}

func (c *FeedCache) lookup(ctx context.Context) (*gtfs.FeedMessage, bool) {
	b, ok, err := c.cache.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn("feed cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	feed := &gtfs.FeedMessage{}
	if err := cacheDecoder.Unmarshal(b, feed); err != nil {
		c.logger.Warn("discarding undecodable cached feed", "error", err, "bytes", len(b))
		return nil, false
	}
	return feed, true
}

func (c *FeedCache) refresh(ctx context.Context) (*gtfs.FeedMessage, error) {
	start := c.now()
	feed, err := c.upstream.Fetch(ctx)
	elapsed := c.now().Sub(start)
	if c.recorder != nil {
		c.recorder.UpstreamFetch(err == nil, elapsed)
	}
	if err != nil {
		return nil, err
	}

	b, err := cacheCodec.Marshal(feed)
	if err != nil {
		c.logger.Error("encode feed for cache", "error", err)
	} else if err := c.cache.Set(ctx, c.key, b, c.ttl); err != nil {
		c.logger.Warn("feed cache write failed", "error", err)
	}

	c.logger.Info("realtime feed refreshed",
		"entities", len(feed.GetEntity()),
		"bytes", len(b),
		"elapsed", elapsed)

	if c.listener != nil {
		ev := events.FeedRefreshed{
			FetchedAt:     start,
			Entities:      len(feed.GetEntity()),
			FeedTimestamp: feed.GetHeader().GetTimestamp(),
		}
		if err := c.listener.FeedRefreshed(ctx, ev); err != nil {
			c.logger.Warn("feed refreshed event not published", "error", err)
		}
	}
	return feed, nil
}

func (c *FeedCache) record(result string) {
	if c.recorder != nil {
		c.recorder.FeedCacheResult(result)
	}
}
