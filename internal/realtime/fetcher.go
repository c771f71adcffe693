package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/protobuf/proto"
)

// maxFeedBytes bounds the response body; the full Irish network feed is a
// few MiB.
const maxFeedBytes = 64 << 20

// Client fetches the GTFS-Realtime TripUpdates feed from the upstream API.
type Client struct {
	feedURL       string
	apiKey        string
	http          *http.Client
	retries       int
	retryInterval time.Duration
	logger        *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client and its timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds a single attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
func WithRetries(n int, interval time.Duration) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

// WithClientLogger sets the logger for retry warnings.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client for {baseURL}{feedPath}?format=protobuf.
func NewClient(baseURL, feedPath, apiKey string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream base url %q", baseURL)
	}
	u = u.JoinPath(feedPath)
	q := u.Query()
	q.Set("format", "protobuf")
	u.RawQuery = q.Encode()

	c := &Client{
		feedURL:       u.String(),
		apiKey:        apiKey,
		http:          &http.Client{Timeout: 10 * time.Second},
		retries:       2,
		retryInterval: 500 * time.Millisecond,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// URL returns the resolved feed URL.
func (c *Client) URL() string { return c.feedURL }

// Fetch downloads and decodes the feed. Transport errors, 5xx and 429 are
// retried with exponential backoff; other statuses and decode errors are not.
// Every returned error matches ErrUpstreamUnavailable.
func (c *Client) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	eb.MaxInterval = 8 * c.retryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retries)), ctx)

	feed, err := backoff.RetryNotifyWithData(
		func() (*gtfs.FeedMessage, error) { return c.fetchOnce(ctx) },
		b,
		func(err error, d time.Duration) {
			c.logger.Warn("upstream feed fetch failed, retrying", "error", err, "backoff", d)
		},
	)
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = &FetchError{Stage: "request", Err: err}
		}
		return nil, err
	}
	return feed, nil
}

func (c *Client) fetchOnce(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, backoff.Permanent(&FetchError{Stage: "request", Err: err})
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Stage: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		ferr := &FetchError{Stage: "status", StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, ferr
		}
		return nil, backoff.Permanent(ferr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{Stage: "read", Err: err}
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, backoff.Permanent(&FetchError{Stage: "decode", Err: err})
	}
	return feed, nil
}
