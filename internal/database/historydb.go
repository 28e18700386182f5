package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Pahihq/ctfd-parser/internal/model"
)

// DBFile is the database file name inside the database directory.
const DBFile = "ctfdump.db"

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores dump runs, their outcomes and the digests of saved files.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	-- One row per dump run; report_json keeps the full run report
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		output_root TEXT NOT NULL,
		targets TEXT NOT NULL,
		outcome_count INTEGER NOT NULL,
		failure_count INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Successfully persisted challenges
	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		locator TEXT NOT NULL,
		challenge_id INTEGER,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		points INTEGER,
		dir TEXT NOT NULL,
		saved_files INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_locator ON outcomes(locator);

	-- Saved attachments with their sha3-256 digests
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		outcome_id INTEGER NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		digest TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_files_outcome ON files(outcome_id);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run report with its outcomes and files in one transaction.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.RunReport) (err error) {
	reportJSON, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to serialize run report: %w", err)
	}
	targetsJSON, err := json.Marshal(run.Targets)
	if err != nil {
		return fmt.Errorf("failed to serialize targets: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, started_at, finished_at, output_root, targets, outcome_count, failure_count, cancelled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		run.OutputRoot,
		string(targetsJSON),
		len(run.Outcomes),
		len(run.Failures),
		run.Cancelled,
		string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, o := range run.Outcomes {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, locator, challenge_id, title, category, points, dir, saved_files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			o.Record.Source,
			nullInt(o.Record.ID),
			o.Record.Title,
			o.Record.Category,
			nullInt(o.Record.Points),
			o.Dir,
			o.SavedFiles,
		)
		if err != nil {
			return fmt.Errorf("failed to save outcome: %w", err)
		}
		outcomeID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read outcome id: %w", err)
		}

		for _, f := range o.Files {
			_, err := tx.ExecContext(ctx, `
			INSERT INTO files (outcome_id, name, path, size, digest)
			VALUES (?, ?, ?, ?, ?)
			`, outcomeID, f.Name, f.Path, f.Size, f.Digest)
			if err != nil {
				return fmt.Errorf("failed to save file: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunSummary is one line of the run history.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	OutputRoot string
	Targets    []string
	Outcomes   int
	Failures   int
	Cancelled  bool
}

// ListRuns returns the most recent runs first. A limit of zero or less returns all runs.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.db.QueryContext(ctx, `
	SELECT id, started_at, finished_at, output_root, targets, outcome_count, failure_count, cancelled
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
			targetsJSON       string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.OutputRoot, &targetsJSON,
			&r.Outcomes, &r.Failures, &r.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTimestamp(started)
		r.FinishedAt = parseTimestamp(finished)
		if err := json.Unmarshal([]byte(targetsJSON), &r.Targets); err != nil {
			r.Targets = nil
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns the stored report of a run.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	var reportJSON string
	err := h.db.QueryRowContext(ctx, `SELECT report_json FROM runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &run); err != nil {
		return nil, fmt.Errorf("failed to parse run report: %w", err)
	}
	return &run, nil
}

// OutcomeRow is a stored outcome with its files.
type OutcomeRow struct {
	Locator     string
	ChallengeID *int
	Title       string
	Category    string
	Points      *int
	Dir         string
	SavedFiles  int
	Files       []model.SavedFile
}

// GetRunOutcomes returns the outcomes of a run ordered by title.
func (h *HistoryDB) GetRunOutcomes(ctx context.Context, runID string) ([]OutcomeRow, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT id, locator, challenge_id, title, category, points, dir, saved_files
	FROM outcomes
	WHERE run_id = ?
	ORDER BY title COLLATE NOCASE, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcomes: %w", err)
	}

	var (
		ids     []int64
		results []OutcomeRow
	)
	for rows.Next() {
		var (
			id          int64
			o           OutcomeRow
			cid, points sql.NullInt64
		)
		if err := rows.Scan(&id, &o.Locator, &cid, &o.Title, &o.Category, &points, &o.Dir, &o.SavedFiles); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.ChallengeID = intPtr(cid)
		o.Points = intPtr(points)
		ids = append(ids, id)
		results = append(results, o)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	// The single connection is free again once rows is closed.
	for i, id := range ids {
		files, err := h.outcomeFiles(ctx, id)
		if err != nil {
			return nil, err
		}
		results[i].Files = files
	}
	return results, nil
}

func (h *HistoryDB) outcomeFiles(ctx context.Context, outcomeID int64) ([]model.SavedFile, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT name, path, size, digest FROM files WHERE outcome_id = ? ORDER BY id
	`, outcomeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get files: %w", err)
	}
	defer rows.Close()

	var files []model.SavedFile
	for rows.Next() {
		var f model.SavedFile
		if err := rows.Scan(&f.Name, &f.Path, &f.Size, &f.Digest); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// LatestDigest returns the digest a file had in the most recent run that
// saved it for locator, or "" when it was never saved.
func (h *HistoryDB) LatestDigest(ctx context.Context, locator, name string) (string, error) {
	var digest string
	err := h.db.QueryRowContext(ctx, `
	SELECT f.digest
	FROM files f
	JOIN outcomes o ON o.id = f.outcome_id
	JOIN runs r ON r.id = o.run_id
	WHERE o.locator = ? AND f.name = ?
	ORDER BY r.started_at DESC, f.id DESC
	LIMIT 1
	`, locator, name).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get digest: %w", err)
	}
	return digest, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats are the layouts SQLite may hand back.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries every known layout and returns the zero time if none matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
