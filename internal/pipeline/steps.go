package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pahihq/ctfd-parser/internal/archive"
	"github.com/Pahihq/ctfd-parser/internal/auth"
	"github.com/Pahihq/ctfd-parser/internal/config"
	"github.com/Pahihq/ctfd-parser/internal/ctfd"
	"github.com/Pahihq/ctfd-parser/internal/discover"
	"github.com/Pahihq/ctfd-parser/internal/extract"
	"github.com/Pahihq/ctfd-parser/internal/model"
	"github.com/Pahihq/ctfd-parser/internal/persist"
	"github.com/Pahihq/ctfd-parser/internal/report"
	"github.com/Pahihq/ctfd-parser/internal/transport"
)

// Step names.
const (
	StepLogin   = "login"
	StepResolve = "resolve"
	StepScrape  = "scrape"
	StepIndex   = "index"
	StepArchive = "archive"
	StepHistory = "history"
)

// Authenticator submits the platform login form.
type Authenticator interface {
	Login(ctx context.Context, loginURL, username, password string) (*auth.Result, error)
}

// LoginStep establishes a session before anything else is fetched.
// The session cookies stay in the shared transport.
type LoginStep struct {
	auth     Authenticator
	loginURL string
	username string
	password string
}

// NewLoginStep creates a login step. An empty loginURL means
// scheme://host/login of the first target.
func NewLoginStep(a Authenticator, loginURL, username, password string) *LoginStep {
	return &LoginStep{
		auth:     a,
		loginURL: loginURL,
		username: username,
		password: password,
	}
}

// Name returns the step name.
func (s *LoginStep) Name() string {
	return StepLogin
}

// Required reports that a failed login ends the run.
func (s *LoginStep) Required() bool {
	return true
}

// Do logs in. It does nothing unless both username and password are set.
func (s *LoginStep) Do(ctx context.Context, run *model.RunReport) error {
	if s.username == "" || s.password == "" {
		return nil
	}

	loginURL := s.loginURL
	if loginURL == "" {
		if len(run.Targets) == 0 {
			return ErrNoLocators
		}
		u, err := auth.DefaultLoginURL(run.Targets[0])
		if err != nil {
			return err
		}
		loginURL = u
	}

	_, err := s.auth.Login(ctx, loginURL, s.username, s.password)
	return err
}

// Discoverer expands listing locators.
type Discoverer interface {
	Discover(ctx context.Context, listing string) ([]string, error)
}

// ResolveStep turns the targets into the deduplicated challenge locator set.
type ResolveStep struct {
	discoverer Discoverer
	logger     *slog.Logger
}

// NewResolveStep creates a resolve step.
func NewResolveStep(d Discoverer, logger *slog.Logger) *ResolveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolveStep{discoverer: d, logger: logger}
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return StepResolve
}

// Do fills run.Locators in first-seen order. Locators are deduplicated by
// their canonical form but kept as given, so a challenge page is fetched
// at the URL the user supplied. A listing that cannot be discovered is
// recorded in run.Errors and the other targets proceed.
func (s *ResolveStep) Do(ctx context.Context, run *model.RunReport) error {
	seen := make(map[string]struct{})
	add := func(locator string) {
		key := model.Canonical(locator)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		run.Locators = append(run.Locators, locator)
	}

	for _, target := range run.Targets {
		if !discover.IsListing(target) {
			add(target)
			continue
		}

		found, err := s.discoverer.Discover(ctx, target)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			s.logger.Warn("discovery failed", "listing", target, "error", err)
			run.AddError(fmt.Errorf("discover %s: %w", target, err))
			continue
		}
		for _, locator := range found {
			add(locator)
		}
	}

	s.logger.Info("challenge locators resolved", "count", len(run.Locators))
	return nil
}

// ScrapeStep runs extraction and persistence over all locators.
type ScrapeStep struct {
	batch  *BatchProcessor
	logger *slog.Logger
}

// NewScrapeStep creates a scrape step.
func NewScrapeStep(batch *BatchProcessor, logger *slog.Logger) *ScrapeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeStep{batch: batch, logger: logger}
}

// Name returns the step name.
func (s *ScrapeStep) Name() string {
	return StepScrape
}

// Do records one outcome or one failure per locator.
func (s *ScrapeStep) Do(ctx context.Context, run *model.RunReport) error {
	if len(run.Locators) == 0 {
		s.logger.Warn("no challenges to process")
		return nil
	}

	s.logger.Info("scraping challenges",
		"count", len(run.Locators),
		"concurrency", s.batch.Concurrency(),
	)
	results := s.batch.Process(ctx, run.Locators)
	run.Outcomes = append(run.Outcomes, Outcomes(results)...)
	for _, f := range Failures(results) {
		run.AddFailure(f.Locator, f.Err)
	}
	return nil
}

// IndexStep writes INDEX.md. It also runs after cancellation.
type IndexStep struct{}

// NewIndexStep creates an index step.
func NewIndexStep() *IndexStep {
	return &IndexStep{}
}

// Name returns the step name.
func (s *IndexStep) Name() string {
	return StepIndex
}

// Finalizes implements Finalizer.
func (s *IndexStep) Finalizes() bool {
	return true
}

// Do builds the manifest from the outcomes collected so far.
func (s *IndexStep) Do(_ context.Context, run *model.RunReport) error {
	path, err := report.BuildIndex(run.Outcomes, run.OutputRoot)
	if err != nil {
		return err
	}
	run.IndexPath = path
	return nil
}

// ArchiveStep zips the output root next to it.
type ArchiveStep struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiveStep creates an archive step. now names the archive.
func NewArchiveStep(now func() time.Time, logger *slog.Logger) *ArchiveStep {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveStep{now: now, logger: logger}
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return StepArchive
}

// Do creates the archive unless nothing was saved.
func (s *ArchiveStep) Do(_ context.Context, run *model.RunReport) error {
	if len(run.Outcomes) == 0 {
		s.logger.Info("nothing saved, skipping archive")
		return nil
	}
	path, err := archive.Create(run.OutputRoot, s.now())
	if err != nil {
		return err
	}
	run.ArchivePath = path
	s.logger.Info("archive created", "path", path)
	return nil
}

// HistoryStore records finished runs.
type HistoryStore interface {
	SaveRun(ctx context.Context, run *model.RunReport) error
	LatestDigest(ctx context.Context, locator, name string) (string, error)
}

// HistoryStep saves the run to the history database. It also runs after
// cancellation and should be the last step.
type HistoryStep struct {
	store  HistoryStore
	logger *slog.Logger
}

// NewHistoryStep creates a history step.
func NewHistoryStep(store HistoryStore, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return StepHistory
}

// Finalizes implements Finalizer.
func (s *HistoryStep) Finalizes() bool {
	return true
}

// Do logs attachments whose content changed since the previous run and
// saves the run.
func (s *HistoryStep) Do(ctx context.Context, run *model.RunReport) error {
	for _, o := range run.Outcomes {
		for _, f := range o.Files {
			prev, err := s.store.LatestDigest(ctx, o.Record.Source, f.Name)
			if err != nil {
				return err
			}
			if prev != "" && prev != f.Digest {
				s.logger.Info("attachment changed since last run",
					"title", o.Record.Title,
					"file", f.Name,
				)
			}
		}
	}

	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	return s.store.SaveRun(ctx, run)
}

// DefaultPipeline builds the dump pipeline for cfg. All network access
// goes through client. history may be nil.
func DefaultPipeline(client *transport.Client, cfg *config.Config, history HistoryStore, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	api := ctfd.New(client, ctfd.WithLogger(logger))
	extractor := extract.New(client, api, extract.WithLogger(logger))
	persister := persist.New(cfg.OutputDir, client,
		persist.SaveHTML(cfg.SaveHTML),
		persist.SaveDescription(!cfg.NoDesc),
		persist.SaveFiles(!cfg.NoFiles),
		persist.WithLogger(logger),
	)
	batch := NewBatchProcessor(ScrapeTask(extractor, persister),
		WithConcurrency(cfg.Concurrency),
		WithBatchLogger(logger),
	)

	// A failed index or history step is reported in the run errors; the
	// challenges already written stay valid.
	p := New(WithLogger(logger), WithContinueOnError(true))
	if cfg.Login() {
		p.AddStep(NewLoginStep(auth.New(client, auth.WithLogger(logger)), cfg.LoginURL, cfg.Username, cfg.Password))
	}
	p.AddSteps(
		NewResolveStep(discover.New(client, api, discover.WithLogger(logger)), logger),
		NewScrapeStep(batch, logger),
		NewIndexStep(),
	)
	if !cfg.NoArchive {
		p.AddStep(NewArchiveStep(time.Now, logger))
	}
	if !cfg.NoHistory && history != nil {
		p.AddStep(NewHistoryStep(history, logger))
	}
	return p
}
