// Package pipeline orchestrates one batch run for an entity kind.
//
// A run loads the entity directory, takes the output lease, builds the daily
// reports of every entity, records their summaries in the ledger, rebuilds
// the metadata index and finally distributes the results. Only configuration
// problems, a held lease and index persistence failures abort a run; every
// other failure is logged and reported in the RunResult.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/pulsereport/internal/directory"
	"github.com/rewired-gh/pulsereport/internal/events"
	"github.com/rewired-gh/pulsereport/internal/index"
	"github.com/rewired-gh/pulsereport/internal/logger"
	"github.com/rewired-gh/pulsereport/internal/models"
	"github.com/rewired-gh/pulsereport/internal/naming"
	"github.com/rewired-gh/pulsereport/internal/report"
	"github.com/rewired-gh/pulsereport/internal/storage"
	"github.com/rewired-gh/pulsereport/internal/telegram"
)

// ErrConfig marks errors caused by missing or invalid configuration. They
// are raised before any fetch begins.
var ErrConfig = errors.New("configuration error")

// Ledger persists run records, report summaries and the output lease.
type Ledger interface {
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) error
	ReleaseLease(ctx context.Context, name, holder string) error
	BeginRun(ctx context.Context, run *storage.Run) error
	FinishRun(ctx context.Context, run *storage.Run) error
	UpsertSummaries(ctx context.Context, runID string, reports []models.Report) error
}

// Uploader copies the output directory to remote storage.
type Uploader interface {
	UploadDir(ctx context.Context, dir, sub string) (int, error)
}

// Notifier delivers run summaries to operators.
type Notifier interface {
	SendRunSummary(summary telegram.RunSummary) error
	SendError(kind models.Kind, err error) error
}

// Target locates the inputs and outputs of one kind.
type Target struct {
	DirectoryFile string
	OutputDir     string
	IndexPath     string
	UploadPrefix  string // sub-prefix under the uploader's prefix
}

// Options tunes a run.
type Options struct {
	DaysBack     int
	Workers      int // entities built in parallel, 1 for sequential
	FetchTimeout time.Duration
	SampleEvents int
	LeaseTTL     time.Duration
	Ext          string
	Now          func() time.Time
}

// Runner executes batch runs. Ledger, Targets and Fetchers are required;
// the delivery fields are optional.
type Runner struct {
	Options   Options
	Targets   map[models.Kind]Target
	Fetchers  map[models.Kind]report.Fetcher
	Ledger    Ledger
	Publisher events.Publisher
	Topics    events.Topics
	Uploader  Uploader
	Notifier  Notifier
}

// Outcome is the result of one entity within a run.
type Outcome struct {
	EntityID string
	Name     string
	Key      string
	Status   report.Status
	Reports  []models.Report
	Skipped  []report.DaySkip
	Err      error // set when the entity could not be built at all
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID     string
	Kind      models.Kind
	Status    report.Status
	Outcomes  []Outcome
	IndexPath string
}

// Reports returns the number of reports written by the run.
func (r *RunResult) Reports() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Reports)
	}
	return n
}

// SkippedDays returns the number of (entity, day) units that produced no report.
func (r *RunResult) SkippedDays() int {
	n := 0
	for _, o := range r.Outcomes {
		n += len(o.Skipped)
	}
	return n
}

// LeaseName is the lease guarding an output directory.
func LeaseName(outputDir string) string {
	if abs, err := filepath.Abs(outputDir); err == nil {
		outputDir = abs
	}
	return "output:" + filepath.Clean(outputDir)
}

func (r *Runner) now() time.Time {
	if r.Options.Now != nil {
		return r.Options.Now()
	}
	return time.Now()
}

type prepared struct {
	target   Target
	fetcher  report.Fetcher
	entities []models.Entity
	keys     *naming.Keymap
}

// prepare resolves everything a run needs before the lease is taken.
func (r *Runner) prepare(kind models.Kind) (*prepared, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: entity kind %q is not supported", ErrConfig, kind)
	}
	if r.Ledger == nil {
		return nil, fmt.Errorf("%w: no ledger configured", ErrConfig)
	}
	target, ok := r.Targets[kind]
	if !ok || target.OutputDir == "" || target.IndexPath == "" {
		return nil, fmt.Errorf("%w: no output target for %s", ErrConfig, kind)
	}
	fetcher := r.Fetchers[kind]
	if fetcher == nil {
		return nil, fmt.Errorf("%w: %v for %s", ErrConfig, report.ErrNoFetcher, kind)
	}
	if r.Options.DaysBack < 1 {
		return nil, fmt.Errorf("%w: days back must be at least 1", ErrConfig)
	}

	doc, err := directory.Load(target.DirectoryFile, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	entities := doc.DomainEntities()
	keys, err := naming.NewKeymap(entities)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &prepared{target: target, fetcher: fetcher, entities: entities, keys: keys}, nil
}

// Run executes one batch run for kind. The returned error is non-nil only
// for fatal conditions; the RunResult is returned whenever a run was started.
func (r *Runner) Run(ctx context.Context, kind models.Kind) (*RunResult, error) {
	p, err := r.prepare(kind)
	if err != nil {
		return nil, err
	}

	startedAt := r.now()
	result := &RunResult{RunID: uuid.NewString(), Kind: kind, IndexPath: p.target.IndexPath}
	logger.Info("Starting %s run %s (%d entities, %d days)", kind, result.RunID, len(p.entities), r.Options.DaysBack)

	lease := LeaseName(p.target.OutputDir)
	ttl := r.Options.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if err := r.Ledger.AcquireLease(ctx, lease, result.RunID, ttl, startedAt); err != nil {
		return nil, fmt.Errorf("failed to acquire run lease: %w", err)
	}
	defer func() {
		// The run context may already be cancelled.
		if err := r.Ledger.ReleaseLease(context.Background(), lease, result.RunID); err != nil {
			logger.Warn("Failed to release lease %s: %v", lease, err)
		}
	}()

	run := &storage.Run{ID: result.RunID, Kind: kind, StartedAt: startedAt, Entities: len(p.entities)}
	if err := r.Ledger.BeginRun(ctx, run); err != nil {
		logger.Warn("Failed to record run start: %v", err)
	}

	if err := r.execute(ctx, p, result); err != nil {
		result.Status = report.StatusFailed
		r.finish(run, result, err)
		r.publish(ctx, r.Topics.RunFailed, events.RunFailed{RunID: result.RunID, Kind: kind, Error: err.Error()})
		if r.Notifier != nil {
			if sendErr := r.Notifier.SendError(kind, err); sendErr != nil {
				logger.Warn("Failed to send error notification: %v", sendErr)
			}
		}
		return result, err
	}

	r.deliver(ctx, p, result, startedAt)
	r.finish(run, result, nil)
	logger.Info("Finished %s run %s: status=%s reports=%d skipped=%d duration=%v",
		kind, result.RunID, result.Status, result.Reports(), result.SkippedDays(), r.now().Sub(startedAt))
	return result, nil
}

// execute builds every entity, records summaries and saves the index.
func (r *Runner) execute(ctx context.Context, p *prepared, result *RunResult) error {
	sink, err := report.NewFileSink(p.target.OutputDir)
	if err != nil {
		return err
	}
	builder, err := report.NewBuilder(p.fetcher, sink, report.Options{
		Now:          r.Options.Now,
		FetchTimeout: r.Options.FetchTimeout,
		SampleEvents: r.Options.SampleEvents,
		Ext:          r.Options.Ext,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	result.Outcomes = r.buildAll(ctx, builder, p)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	result.Status = runStatus(result.Outcomes)

	reports := make(map[string][]models.Report, len(result.Outcomes))
	var all []models.Report
	for _, o := range result.Outcomes {
		reports[o.EntityID] = o.Reports
		all = append(all, o.Reports...)
	}

	if err := r.Ledger.UpsertSummaries(ctx, result.RunID, all); err != nil {
		logger.Warn("Failed to record report summaries: %v", err)
	}

	idx, err := index.Build(result.Kind, p.entities, p.keys, reports)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if err := index.Save(p.target.IndexPath, idx); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	logger.Info("Index saved to %s (%d entities)", p.target.IndexPath, len(idx.Entries))
	return nil
}

// buildAll builds entities sequentially or with bounded parallelism.
// Outcomes keep directory order either way.
func (r *Runner) buildAll(ctx context.Context, builder *report.Builder, p *prepared) []Outcome {
	outcomes := make([]Outcome, len(p.entities))

	buildOne := func(i int) {
		entity := p.entities[i]
		key, _ := p.keys.Key(entity.ID)
		outcome := Outcome{EntityID: entity.ID, Name: entity.Name(), Key: key, Status: report.StatusFailed}

		res, err := builder.Build(ctx, entity, key, r.Options.DaysBack)
		if res != nil {
			outcome.Status = res.Status
			outcome.Reports = res.Reports
			outcome.Skipped = res.Skipped
		}
		if err != nil {
			outcome.Status = report.StatusFailed
			outcome.Err = err
			logger.Error("entity %s failed: %v", entity.ID, err)
		} else {
			logger.Info("entity %s: %s (%d reports, %d skipped)", entity.ID, outcome.Status, len(outcome.Reports), len(outcome.Skipped))
		}
		outcomes[i] = outcome
	}

	workers := r.Options.Workers
	if workers <= 1 {
		for i := range p.entities {
			buildOne(i)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range p.entities {
		i := i
		g.Go(func() error {
			buildOne(i)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runStatus is complete only when every entity is complete.
func runStatus(outcomes []Outcome) report.Status {
	for _, o := range outcomes {
		if o.Status != report.StatusComplete {
			return report.StatusPartial
		}
	}
	return report.StatusComplete
}

// deliver uploads, publishes and notifies. Failures are only logged.
func (r *Runner) deliver(ctx context.Context, p *prepared, result *RunResult, startedAt time.Time) {
	if r.Uploader != nil {
		if _, err := r.Uploader.UploadDir(ctx, p.target.OutputDir, p.target.UploadPrefix); err != nil {
			logger.Warn("Failed to upload %s: %v", p.target.OutputDir, err)
		}
	}

	for _, o := range result.Outcomes {
		for i := range o.Reports {
			r.publish(ctx, r.Topics.ReportGenerated, events.NewReportGenerated(result.RunID, &o.Reports[i]))
		}
	}
	r.publish(ctx, r.Topics.RunCompleted, events.RunCompleted{
		RunID:       result.RunID,
		Kind:        result.Kind,
		Status:      string(result.Status),
		Entities:    len(result.Outcomes),
		Reports:     result.Reports(),
		SkippedDays: result.SkippedDays(),
		IndexPath:   result.IndexPath,
		FinishedAt:  r.now().UTC(),
	})

	if r.Notifier != nil {
		if err := r.Notifier.SendRunSummary(summarize(result, r.now().Sub(startedAt))); err != nil {
			logger.Warn("Failed to send run summary: %v", err)
		}
	}
}

func (r *Runner) publish(ctx context.Context, topic string, event any) {
	if r.Publisher == nil || topic == "" {
		return
	}
	if err := r.Publisher.Publish(ctx, topic, event); err != nil {
		logger.Warn("Failed to publish %s: %v", topic, err)
	}
}

func (r *Runner) finish(run *storage.Run, result *RunResult, runErr error) {
	run.Status = string(result.Status)
	run.FinishedAt = r.now()
	run.Reports = result.Reports()
	run.Skipped = result.SkippedDays()
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := r.Ledger.FinishRun(context.Background(), run); err != nil {
		logger.Warn("Failed to record run outcome: %v", err)
	}
}

func summarize(result *RunResult, duration time.Duration) telegram.RunSummary {
	s := telegram.RunSummary{
		RunID:       result.RunID,
		Kind:        result.Kind,
		Status:      string(result.Status),
		Entities:    len(result.Outcomes),
		Reports:     result.Reports(),
		SkippedDays: result.SkippedDays(),
		Duration:    duration,
	}
	for _, o := range result.Outcomes {
		switch o.Status {
		case report.StatusPartial:
			s.Partial++
		case report.StatusFailed:
			s.Failed++
			s.FailedEntities = append(s.FailedEntities, o.Name)
		}
	}
	return s
}
