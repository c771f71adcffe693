package gtfs

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// FreshFor is how long an import is considered current.
const FreshFor = 24 * time.Hour

// checkHour is the local hour of the daily feed check.
const checkHour = 3

// Scheduler keeps the stop registry in step with the static feed.
type Scheduler struct {
	downloader *Downloader
	importer   *Importer
	db         Store
	logger     *slog.Logger
	onImport   func(stops int)
	now        func() time.Time

	importMu sync.Mutex // one import at a time

	mu        sync.Mutex
	checkedOn string // Dublin date of the last successful check
}

// NewScheduler creates a Scheduler. onImport, if non-nil, is called with
// the stop count after every successful import.
func NewScheduler(downloader *Downloader, db Store, logger *slog.Logger, onImport func(stops int)) *Scheduler {
	return &Scheduler{
		downloader: downloader,
		importer:   NewImporter(db, logger),
		db:         db,
		logger:     logger,
		onImport:   onImport,
		now:        time.Now,
	}
}

// EnsureData imports the feed when the registry is empty.
func (s *Scheduler) EnsureData(ctx context.Context) error {
	if s.db.HasData(ctx) {
		s.logger.Info("stop registry already populated",
			"fresh", IsFresh(ctx, s.db, FreshFor, s.now()))
		return nil
	}
	s.logger.Info("stop registry empty, performing initial import")
	return s.Update(ctx)
}

// CheckAndUpdate re-imports when the feed host reports a newer archive.
// At most one successful check runs per Dublin calendar day.
func (s *Scheduler) CheckAndUpdate(ctx context.Context) error {
	today := s.now().In(dublinTZ()).Format(time.DateOnly)
	s.mu.Lock()
	done := s.checkedOn == today
	s.mu.Unlock()
	if done {
		return nil
	}

	lastModified, _ := s.db.GetMetadata(ctx, MetaLastModified)
	etag, _ := s.db.GetMetadata(ctx, MetaETag)

	result, err := s.downloader.Check(ctx, lastModified, etag)
	if err != nil {
		return err
	}
	if result.NeedsUpdate {
		if err := s.Update(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.checkedOn = today
	s.mu.Unlock()
	return nil
}

// StartBackground runs CheckAndUpdate daily at 03:00 Dublin time until
// ctx is cancelled.
func (s *Scheduler) StartBackground(ctx context.Context) {
	for {
		next := nextCheck(s.now())
		s.logger.Debug("next GTFS check scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			if err := s.CheckAndUpdate(ctx); err != nil {
				s.logger.Error("background GTFS update failed", "error", err)
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Update downloads the archive and replaces the registry with its stops.
func (s *Scheduler) Update(ctx context.Context) error {
	s.importMu.Lock()
	defer s.importMu.Unlock()

	archive, err := s.downloader.Download(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(archive.Path)

	feed, err := ParseZip(archive.Path, s.logger)
	if err != nil {
		return err
	}
	feed.LastModified = archive.LastModified
	feed.ETag = archive.ETag

	n, err := s.importer.Import(ctx, feed)
	if err != nil {
		return err
	}
	if s.onImport != nil {
		s.onImport(n)
	}
	return nil
}

// nextCheck returns the first checkHour o'clock, Dublin time, after now.
func nextCheck(now time.Time) time.Time {
	loc := dublinTZ()
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), checkHour, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func dublinTZ() *time.Location {
	loc, err := time.LoadLocation("Europe/Dublin")
	if err != nil {
		return time.UTC
	}
	return loc
}
