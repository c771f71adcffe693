package gtfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxArchiveBytes caps the static feed download. The combined Irish feed
// is a few hundred MiB.
const maxArchiveBytes = 1 << 30

// Downloader fetches the static GTFS archive with conditional requests.
type Downloader struct {
	client        *http.Client
	url           string
	apiKey        string
	dir           string
	retries       uint64
	retryInterval time.Duration
	logger        *slog.Logger
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadRetries sets how many times a failed transfer is retried
// and the initial wait between attempts.
func WithDownloadRetries(n int, interval time.Duration) DownloaderOption {
	return func(d *Downloader) {
		if n >= 0 {
			d.retries = uint64(n)
		}
		if interval > 0 {
			d.retryInterval = interval
		}
	}
}

// NewDownloader creates a Downloader for the given GTFS URL. apiKey, when
// set, is sent as x-api-key.
func NewDownloader(url, apiKey, dir string, logger *slog.Logger, opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		client:        &http.Client{Timeout: 10 * time.Minute},
		url:           url,
		apiKey:        apiKey,
		dir:           dir,
		retries:       3,
		retryInterval: 5 * time.Second,
		logger:        logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Archive is a downloaded feed on disk with the validators the server
// returned for it.
type Archive struct {
	Path         string
	Size         int64
	LastModified string
	ETag         string
}

// CheckResult holds the result of a conditional check.
type CheckResult struct {
	NeedsUpdate  bool
	LastModified string
	ETag         string
}

// statusError is an unexpected HTTP status from the feed host.
type statusError struct {
	method string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s", e.method, http.StatusText(e.code))
}

func retryable(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// Check asks the feed host whether the archive changed since the stored
// validators. A HEAD failure is an error, not a signal to re-download.
func (d *Downloader) Check(ctx context.Context, lastModified, etag string) (*CheckResult, error) {
	req, err := d.newRequest(ctx, http.MethodHead)
	if err != nil {
		return nil, err
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HEAD request: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		d.logger.Info("GTFS feed not modified")
		return &CheckResult{NeedsUpdate: false}, nil
	case resp.StatusCode >= 400:
		return nil, &statusError{method: http.MethodHead, code: resp.StatusCode}
	}

	newETag := resp.Header.Get("ETag")
	if etag != "" && newETag == etag {
		// Some hosts ignore If-None-Match on HEAD.
		d.logger.Info("GTFS feed not modified", "etag", etag)
		return &CheckResult{NeedsUpdate: false}, nil
	}
	return &CheckResult{
		NeedsUpdate:  true,
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         newETag,
	}, nil
}

// Download fetches the archive into a temp file under the data dir,
// retrying transient failures. The caller removes Archive.Path.
func (d *Downloader) Download(ctx context.Context) (*Archive, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.retryInterval
	b := backoff.WithContext(backoff.WithMaxRetries(policy, d.retries), ctx)

	notify := func(err error, wait time.Duration) {
		d.logger.Warn("GTFS download failed, retrying", "error", err, "wait", wait)
	}
	return backoff.RetryNotifyWithData(func() (*Archive, error) {
		return d.downloadOnce(ctx)
	}, b, notify)
}

func (d *Downloader) downloadOnce(ctx context.Context) (*Archive, error) {
	req, err := d.newRequest(ctx, http.MethodGet)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	d.logger.Info("downloading GTFS feed", "url", d.url)
	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		serr := &statusError{method: http.MethodGet, code: resp.StatusCode}
		if retryable(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	tmpFile, err := os.CreateTemp(d.dir, "gtfs-*.zip")
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	defer tmpFile.Close()

	written, err := io.Copy(tmpFile, io.LimitReader(resp.Body, maxArchiveBytes+1))
	if err != nil {
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("write file: %w", err)
	}
	if written > maxArchiveBytes {
		os.Remove(tmpFile.Name())
		return nil, backoff.Permanent(errors.New("archive exceeds size limit"))
	}

	a := &Archive{
		Path:         tmpFile.Name(),
		Size:         written,
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}
	d.logger.Info("GTFS feed downloaded",
		"path", filepath.Base(a.Path),
		"size_mb", fmt.Sprintf("%.1f", float64(written)/(1024*1024)),
	)
	return a, nil
}

func (d *Downloader) newRequest(ctx context.Context, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set("x-api-key", d.apiKey)
	}
	return req, nil
}
