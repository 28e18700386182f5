package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Pahihq/ctfd-parser/internal/config"
	"github.com/Pahihq/ctfd-parser/internal/model"
)

// Task processes one challenge locator.
type Task func(ctx context.Context, locator string) (*model.Outcome, error)

// Result is the tagged result of one task. Exactly one of Outcome and Err is set.
type Result struct {
	Locator string
	Outcome *model.Outcome
	Err     error
}

// Extractor turns a locator into an in-memory extraction.
type Extractor interface {
	Extract(ctx context.Context, locator string) (*model.Extraction, error)
}

// Persister writes an extraction to disk.
type Persister interface {
	Persist(ctx context.Context, ex *model.Extraction) (*model.Outcome, error)
}

// ScrapeTask composes extraction and persistence into a Task.
func ScrapeTask(extractor Extractor, persister Persister) Task {
	return func(ctx context.Context, locator string) (*model.Outcome, error) {
		ex, err := extractor.Extract(ctx, locator)
		if err != nil {
			return nil, err
		}
		return persister.Persist(ctx, ex)
	}
}

// BatchProcessor runs a Task over many locators with bounded concurrency.
// A failing task never cancels its siblings.
type BatchProcessor struct {
	task Task

	// concurrency is the maximum number of tasks in flight.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent tasks.
// Values below 1 are treated as 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		b.concurrency = max(n, 1)
	}
}

// NewBatchProcessor creates a BatchProcessor running task.
func NewBatchProcessor(task Task, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		task:        task,
		concurrency: config.DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(bp)
	}
	return bp
}

// Concurrency returns the effective concurrency limit.
func (bp *BatchProcessor) Concurrency() int {
	return bp.concurrency
}

// Process runs the task for every locator and returns one Result per
// locator in completion order. It returns only after all tasks finished.
// Tasks that start after ctx is done fail with ctx.Err().
func (bp *BatchProcessor) Process(ctx context.Context, locators []string) []Result {
	bp.logger.Info("starting batch processing",
		"total", len(locators),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(locators))
	)
	record := func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, locator := range locators {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(Result{Locator: locator, Err: err})
				return nil
			}

			bp.logger.Debug("processing challenge",
				"locator", locator,
				"index", i+1,
				"total", len(locators),
			)

			outcome, err := bp.task(ctx, locator)
			if err == nil && outcome == nil {
				err = errNoOutcome
			}
			if err != nil {
				bp.logger.Warn("challenge failed", "locator", locator, "error", err)
				record(Result{Locator: locator, Err: err})
				return nil
			}

			bp.logger.Info("challenge saved",
				"title", outcome.Record.Title,
				"files", outcome.SavedFiles,
			)
			record(Result{Locator: locator, Outcome: outcome})
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tasks never return errors

	bp.logger.Info("batch processing complete",
		"total", len(locators),
		"elapsed", time.Since(startTime),
	)
	return results
}

// Outcomes returns the successful outcomes in result order.
func Outcomes(results []Result) []model.Outcome {
	var outcomes []model.Outcome
	for _, r := range results {
		if r.Err == nil && r.Outcome != nil {
			outcomes = append(outcomes, *r.Outcome)
		}
	}
	return outcomes
}

// Failures returns the failed results in result order.
func Failures(results []Result) []Result {
	var failures []Result
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r)
		}
	}
	return failures
}
