package model

import (
	"time"

	"github.com/google/uuid"
)

// Failure records a locator that produced no outcome.
type Failure struct {
	Locator string `json:"locator"`
	Reason  string `json:"reason"`
}

// RunReport collects everything produced by one dump run.
// Steps of the run pipeline fill it in order.
type RunReport struct {
	// ID identifies the run in the history database.
	ID string `json:"id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Targets are the locators supplied by the user.
	Targets []string `json:"targets"`

	// OutputRoot is the directory challenges are written under.
	OutputRoot string `json:"output_root"`

	// Locators are the canonical challenge locators after discovery and dedup.
	Locators []string `json:"locators"`

	Outcomes []Outcome `json:"outcomes"`
	Failures []Failure `json:"failures,omitempty"`

	// IndexPath is empty when no outcome was produced.
	IndexPath   string `json:"index_path,omitempty"`
	ArchivePath string `json:"archive_path,omitempty"`

	// Errors holds non-fatal step errors, such as a listing that could not be discovered.
	Errors []string `json:"errors,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps"`

	// Cancelled is set when the run context ended before all steps finished.
	Cancelled bool `json:"cancelled,omitempty"`
}

// NewRunReport creates a report with a fresh run id.
func NewRunReport(targets []string, outputRoot string) *RunReport {
	return &RunReport{
		ID:         uuid.NewString(),
		StartedAt:  time.Now(),
		Targets:    targets,
		OutputRoot: outputRoot,
	}
}

// AddError records a non-fatal error.
func (r *RunReport) AddError(err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// AddFailure records a locator whose extraction failed.
func (r *RunReport) AddFailure(locator string, err error) {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	r.Failures = append(r.Failures, Failure{Locator: locator, Reason: reason})
}

// SavedFileCount sums saved attachments over all outcomes.
func (r *RunReport) SavedFileCount() int {
	total := 0
	for _, o := range r.Outcomes {
		total += o.SavedFiles
	}
	return total
}
