package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Pahihq/ctfd-parser/internal/model"
)

// SummaryWriter prints a run report as terminal tables.
type SummaryWriter struct {
	baseWriter

	// verbose adds the per-file listing and step trace.
	verbose bool
}

// SummaryWriterOption configures a SummaryWriter.
type SummaryWriterOption func(*SummaryWriter)

// WithVerbose enables the per-file listing.
func WithVerbose(verbose bool) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.verbose = verbose
	}
}

// NewSummaryWriter creates a SummaryWriter that outputs to the given writer.
func NewSummaryWriter(output io.Writer, opts ...SummaryWriterOption) *SummaryWriter {
	w := &SummaryWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the outcome table, the failure table and the run totals.
func (w *SummaryWriter) Write(run *model.RunReport) (int, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run %s\n", run.ID)
	if run.Cancelled {
		sb.WriteString("Run was interrupted; partial results only.\n")
	}

	if len(run.Outcomes) > 0 {
		sb.WriteString(w.outcomeTable(run))
		sb.WriteString("\n")
	}
	if len(run.Failures) > 0 {
		sb.WriteString(failureTable(run.Failures))
		sb.WriteString("\n")
	}
	for _, e := range run.Errors {
		fmt.Fprintf(&sb, "warning: %s\n", e)
	}

	fmt.Fprintf(&sb, "Saved %d challenge(s) with %d file(s), %d failed.\n",
		len(run.Outcomes), run.SavedFileCount(), len(run.Failures))
	if run.IndexPath != "" {
		fmt.Fprintf(&sb, "Index:   %s\n", run.IndexPath)
	}
	if run.ArchivePath != "" {
		fmt.Fprintf(&sb, "Archive: %s\n", run.ArchivePath)
	}
	if w.verbose && len(run.PerformedSteps) > 0 {
		fmt.Fprintf(&sb, "Steps:   %s\n", strings.Join(run.PerformedSteps, ", "))
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SummaryWriter) outcomeTable(run *model.RunReport) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Category", "Title", "Points", "Files"})
	for i, o := range SortOutcomes(run.Outcomes) {
		points := "-"
		if o.Record.Points != nil {
			points = fmt.Sprintf("%d", *o.Record.Points)
		}
		t.AppendRow(table.Row{i + 1, o.Record.Category, o.Record.Title, points, o.SavedFiles})
		if w.verbose {
			for _, f := range o.Files {
				t.AppendRow(table.Row{"", "", "  " + f.Name, "", f.Size})
			}
		}
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	return t.Render() + "\n"
}

func failureTable(failures []model.Failure) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Failed locator", "Reason"})
	for _, f := range failures {
		t.AppendRow(table.Row{f.Locator, f.Reason})
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	return t.Render() + "\n"
}
