// Package report builds the per-entity, per-day report artifacts.
//
// A Builder fetches one window per lookback day (plus one extra, older window
// that only feeds the trend of the oldest day), aggregates each window and
// hands every successful day to an ArtifactSink. A failing day never aborts
// the remaining days of the same entity.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/naming"
	"github.com/rewired-gh/pulsereport/internal/stats"
)

// ErrNoFetcher is returned by NewBuilder when no event source is configured.
var ErrNoFetcher = errors.New("no event fetcher configured")

// Fetcher returns the raw events of one entity in [start, end).
type Fetcher interface {
	FetchEvents(ctx context.Context, entityID string, start, end time.Time) ([]models.RawEvent, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, entityID string, start, end time.Time) ([]models.RawEvent, error)

// FetchEvents calls f.
func (f FetcherFunc) FetchEvents(ctx context.Context, entityID string, start, end time.Time) ([]models.RawEvent, error) {
	return f(ctx, entityID, start, end)
}

// ArtifactSink persists one built report. Writing the same (entity, date)
// twice must replace the earlier artifact.
type ArtifactSink interface {
	WriteReport(ctx context.Context, r *models.Report) error
}

// Options tunes a Builder. Zero values select the defaults.
type Options struct {
	Now          func() time.Time
	FetchTimeout time.Duration // per window; 0 disables
	SampleEvents int           // most recent events kept on the report; 0 keeps none
	Ext          string        // artifact extension, "html" by default
}

// Status summarises how many days of an entity were built.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusFailed   Status = "failed"
)

// DaySkip records a lookback day that produced no artifact.
type DaySkip struct {
	Date   string
	Window models.Window
	Err    error
}

func (s DaySkip) Error() string {
	return fmt.Sprintf("%s: %v", s.Date, s.Err)
}

func (s DaySkip) Unwrap() error {
	return s.Err
}

// Result is the outcome of building one entity.
type Result struct {
	Entity  models.Entity
	Key     string
	Reports []models.Report // newest first
	Skipped []DaySkip
	Status  Status
}

// Builder builds daily reports for one entity at a time. It is safe for
// concurrent use when its Fetcher and ArtifactSink are.
type Builder struct {
	fetcher Fetcher
	sink    ArtifactSink
	opts    Options
}

// NewBuilder creates a Builder.
func NewBuilder(fetcher Fetcher, sink ArtifactSink, opts Options) (*Builder, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	if sink == nil {
		return nil, errors.New("artifact sink must not be nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Ext == "" {
		opts.Ext = "html"
	}
	if opts.SampleEvents < 0 {
		opts.SampleEvents = 0
	}
	return &Builder{fetcher: fetcher, sink: sink, opts: opts}, nil
}

type fetched struct {
	events []models.RawEvent
	stats  models.WindowStats
	err    error
}

// Build produces up to daysBack reports for entity, one per lookback day.
// Days whose fetch, validation or write fails are returned in Result.Skipped.
// The returned error is non-nil only for invalid arguments or a cancelled
// context; in the latter case the partial Result is returned as well.
func (b *Builder) Build(ctx context.Context, entity models.Entity, key string, daysBack int) (*Result, error) {
	if daysBack < 1 {
		return nil, fmt.Errorf("days back must be at least 1, got %d", daysBack)
	}
	if err := entity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid entity: %w", err)
	}
	if key == "" {
		return nil, errors.New("entity key must not be empty")
	}

	now := b.opts.Now().UTC()
	windows := DailyWindows(now, daysBack+1)
	result := &Result{Entity: entity, Key: key}

	data := make([]fetched, len(windows))
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			result.Status = statusOf(len(result.Reports), daysBack)
			return result, err
		}
		data[i] = b.fetchWindow(ctx, entity.ID, w)
	}

	surrogate := naming.SurrogateKey(entity.Kind, entity.ID)
	for i := 0; i < daysBack; i++ {
		w := windows[i]
		date := w.Date()
		day := data[i]
		if day.err != nil {
			b.skip(result, w, day.err)
			continue
		}

		rep := models.Report{
			EntityID:     entity.ID,
			Kind:         entity.Kind,
			Key:          key,
			SurrogateKey: surrogate,
			Name:         entity.Name(),
			Icon:         entity.Icon,
			Date:         date,
			Window:       w,
			Filename:     naming.ReportFilename(key, w.Start, b.opts.Ext),
			Stats:        day.stats,
			SampleEvents: mostRecent(day.events, b.opts.SampleEvents),
			GeneratedAt:  now,
		}
		if prev := data[i+1]; prev.err == nil {
			trend := stats.Compare(day.stats, prev.stats)
			rep.Trend = &trend
		} else {
			logger.Debug("trend unavailable: entity=%s date=%s reason=%v", entity.ID, date, prev.err)
		}

		if err := rep.Validate(); err != nil {
			b.skip(result, w, fmt.Errorf("invalid report: %w", err))
			continue
		}
		if err := b.sink.WriteReport(ctx, &rep); err != nil {
			b.skip(result, w, fmt.Errorf("write artifact: %w", err))
			continue
		}

		logger.Info("report ok: entity=%s date=%s events=%d actors=%d file=%s",
			entity.ID, date, rep.Stats.EventCount, rep.Stats.UniqueActors, rep.Filename)
		result.Reports = append(result.Reports, rep)
	}

	result.Status = statusOf(len(result.Reports), daysBack)
	return result, nil
}

func (b *Builder) fetchWindow(ctx context.Context, entityID string, w models.Window) fetched {
	fetchCtx := ctx
	if b.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, b.opts.FetchTimeout)
		defer cancel()
	}

	events, err := b.fetcher.FetchEvents(fetchCtx, entityID, w.Start, w.End)
	if err != nil {
		return fetched{err: fmt.Errorf("fetch events: %w", err)}
	}

	kept := stats.InWindow(events, w)
	if dropped := len(events) - len(kept); dropped > 0 {
		logger.Debug("dropped %d events outside window: entity=%s date=%s", dropped, entityID, w.Date())
	}
	return fetched{events: kept, stats: stats.Aggregate(kept, w)}
}

func (b *Builder) skip(result *Result, w models.Window, err error) {
	logger.Warn("report skipped: entity=%s date=%s reason=%v", result.Entity.ID, w.Date(), err)
	result.Skipped = append(result.Skipped, DaySkip{Date: w.Date(), Window: w, Err: err})
}

func statusOf(built, want int) Status {
	switch {
	case built == want:
		return StatusComplete
	case built == 0:
		return StatusFailed
	}
	return StatusPartial
}

// mostRecent returns up to n events, newest first. Ties keep fetch order.
func mostRecent(events []models.RawEvent, n int) []models.RawEvent {
	if n <= 0 || len(events) == 0 {
		return nil
	}
	sorted := append([]models.RawEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
