// Package journal records export runs in a local SQLite file: one row per
// run, one per exported tile and one per skipped feature, so partial results
// can be audited after the fact.
package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Journal is the local run journal backed by modernc.org/sqlite.
type Journal struct {
	db *sql.DB
}

// Open opens the journal database at the given path and configures WAL mode.
func Open(dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "journal: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "journal: exec %s", pragma)
		}
	}
	return &Journal{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS export_runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	objects     INTEGER NOT NULL DEFAULT 0,
	tiles       INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS export_tiles (
	run_id      TEXT NOT NULL REFERENCES export_runs(id),
	tile_id     TEXT NOT NULL,
	objects     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	finished_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, tile_id)
);

CREATE TABLE IF NOT EXISTS skipped_features (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES export_runs(id),
	source      TEXT NOT NULL,
	feature_pk  TEXT NOT NULL,
	reason      TEXT NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_export_tiles_run_id ON export_tiles(run_id);
CREATE INDEX IF NOT EXISTS idx_skipped_features_run_id ON skipped_features(run_id);
`

// Migrate creates the journal tables.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "journal: migrate")
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records the beginning of an export run and returns its id.
func (j *Journal) StartRun(ctx context.Context, command string) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO export_runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		id, command, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "journal: start run")
	}
	return id, nil
}

// RecordTile records one exported tile.
func (j *Journal) RecordTile(ctx context.Context, runID, tileID string, objects int, duration time.Duration) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO export_tiles (run_id, tile_id, objects, duration_ms, finished_at) VALUES (?, ?, ?, ?, ?)`,
		runID, tileID, objects, duration.Milliseconds(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "journal: record tile %s", tileID)
}

// RecordSkip records one feature left out of the export and why.
func (j *Journal) RecordSkip(ctx context.Context, runID, source, featurePK, reason string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO skipped_features (id, run_id, source, feature_pk, reason) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, source, featurePK, reason,
	)
	return eris.Wrapf(err, "journal: record skip %s %s", source, featurePK)
}

// FinishRun closes a run with its final counters. The error message is
// stored only for failed runs.
func (j *Journal) FinishRun(ctx context.Context, runID, status string, objects, tiles, skipped int, errMsg string) error {
	var stored sql.NullString
	if errMsg != "" {
		stored = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE export_runs SET status = ?, objects = ?, tiles = ?, skipped = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, objects, tiles, skipped, stored, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "journal: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "journal: rows affected")
	}
	if n == 0 {
		return eris.Errorf("journal: run not found: %s", runID)
	}
	return nil
}

// RunSummary is the stored outcome of one run.
type RunSummary struct {
	ID         string
	Command    string
	Status     string
	Objects    int
	Tiles      int
	Skipped    int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// GetRun loads one run by id.
func (j *Journal) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT id, command, status, objects, tiles, skipped, error, started_at, finished_at
		 FROM export_runs WHERE id = ?`, runID)

	var r RunSummary
	var errMsg sql.NullString
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Command, &r.Status, &r.Objects, &r.Tiles, &r.Skipped, &errMsg, &r.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("journal: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "journal: scan run")
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// Skip is one recorded skipped feature.
type Skip struct {
	Source    string
	FeaturePK string
	Reason    string
}

// ListSkips returns the skipped features of a run in insertion order.
func (j *Journal) ListSkips(ctx context.Context, runID string) ([]Skip, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT source, feature_pk, reason FROM skipped_features WHERE run_id = ? ORDER BY recorded_at, id`,
		runID)
	if err != nil {
		return nil, eris.Wrap(err, "journal: list skips")
	}
	defer rows.Close()

	var skips []Skip
	for rows.Next() {
		var s Skip
		if err := rows.Scan(&s.Source, &s.FeaturePK, &s.Reason); err != nil {
			return nil, eris.Wrap(err, "journal: scan skip")
		}
		skips = append(skips, s)
	}
	return skips, eris.Wrap(rows.Err(), "journal: list skips iterate")
}
