package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/Pahihq/ctfd-parser/internal/config"
	"github.com/Pahihq/ctfd-parser/internal/database"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show previous dump runs",
		Long: `History lists the dump runs recorded in the history database, most
recent first. With a run id it lists the challenges saved by that run.

Examples:
  # List the last 20 runs
  ctfdump history

  # List every run
  ctfdump history --limit 0

  # Show the challenges of one run
  ctfdump history 3f1c2a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", defaultHistoryLimit, "Maximum number of runs to list (0 lists all)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	db, err := database.Open(config.XDGDataDir(), database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("no history found (run 'ctfdump dump' first): %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	if len(args) == 1 {
		return showRun(ctx, cmd.OutOrStdout(), db, args[0])
	}
	return listRuns(ctx, cmd.OutOrStdout(), db, limit)
}

// listRuns prints the run history table.
func listRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, limit int) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Saved", "Failed", "Targets"})
	for _, r := range runs {
		saved := strconv.Itoa(r.Outcomes)
		if r.Cancelled {
			saved += " (interrupted)"
		}
		t.AppendRow(table.Row{
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r.FinishedAt.Sub(r.StartedAt)),
			saved,
			r.Failures,
			strings.Join(r.Targets, "\n"),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Render()
	return nil
}

// showRun prints the outcomes and failures of one run.
func showRun(ctx context.Context, out io.Writer, db *database.HistoryDB, id string) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	outcomes, err := db.GetRunOutcomes(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Output:  %s\n", run.OutputRoot)
	if run.ArchivePath != "" {
		fmt.Fprintf(out, "Archive: %s\n", run.ArchivePath)
	}

	if len(outcomes) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"#", "Category", "Title", "Points", "Files", "Directory"})
		for i, o := range outcomes {
			points := "-"
			if o.Points != nil {
				points = strconv.Itoa(*o.Points)
			}
			t.AppendRow(table.Row{i + 1, o.Category, o.Title, points, o.SavedFiles, o.Dir})
		}
		t.SetStyle(table.StyleRounded)
		t.Style().Format.Header = text.FormatDefault
		t.Render()
	}

	if len(run.Failures) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.AppendHeader(table.Row{"Failed locator", "Reason"})
		for _, f := range run.Failures {
			t.AppendRow(table.Row{f.Locator, f.Reason})
		}
		t.SetStyle(table.StyleRounded)
		t.Style().Format.Header = text.FormatDefault
		t.Render()
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
