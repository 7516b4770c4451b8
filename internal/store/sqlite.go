package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/collectscope/identify-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	categories     TEXT NOT NULL,
	tier           INTEGER NOT NULL DEFAULT 1,
	reliability    REAL NOT NULL DEFAULT 0.5,
	avg_latency_ms REAL NOT NULL DEFAULT 0,
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dispatch_cycles (
	id                 TEXT PRIMARY KEY,
	fingerprint        TEXT NOT NULL,
	category           TEXT NOT NULL,
	depth              TEXT NOT NULL,
	sources_attempted  INTEGER NOT NULL,
	sources_successful INTEGER NOT NULL,
	confidence         REAL NOT NULL,
	no_consensus       INTEGER NOT NULL DEFAULT 0,
	duration_ms        INTEGER NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS learning_samples (
	id          TEXT PRIMARY KEY,
	cycle_id    TEXT NOT NULL REFERENCES dispatch_cycles(id),
	source_id   TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error_kind  TEXT,
	confidence  REAL NOT NULL DEFAULT 0,
	latency_ms  INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active);
CREATE INDEX IF NOT EXISTS idx_cycles_fingerprint ON dispatch_cycles(fingerprint);
CREATE INDEX IF NOT EXISTS idx_cycles_created_at ON dispatch_cycles(created_at);
CREATE INDEX IF NOT EXISTS idx_samples_cycle_id ON learning_samples(cycle_id);
CREATE INDEX IF NOT EXISTS idx_samples_source_id ON learning_samples(source_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertSource(ctx context.Context, src model.Source) error {
	catJSON, err := json.Marshal(src.Categories)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal categories")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, categories, tier, reliability, avg_latency_ms, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			categories = excluded.categories,
			tier = excluded.tier,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		src.ID, src.Name, string(catJSON), src.Tier, src.Reliability, src.AvgLatencyMs,
		boolToInt(src.Active), now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert source %s", src.ID)
}

func (s *SQLiteStore) ListSources(ctx context.Context, onlyActive bool) ([]model.Source, error) {
	query := `SELECT id, name, categories, tier, reliability, avg_latency_ms, active, created_at, updated_at FROM sources`
	if onlyActive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY tier, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var catJSON string
		var active int
		if err := rows.Scan(&src.ID, &src.Name, &catJSON, &src.Tier, &src.Reliability,
			&src.AvgLatencyMs, &active, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if err := json.Unmarshal([]byte(catJSON), &src.Categories); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal categories for %s", src.ID)
		}
		src.Active = active != 0
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: iterate sources")
}

func (s *SQLiteStore) UpdateSourceStats(ctx context.Context, sourceID string, reliability, avgLatencyMs float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET reliability = ?, avg_latency_ms = ?, updated_at = ? WHERE id = ?`,
		reliability, avgLatencyMs, time.Now().UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update source stats %s", sourceID)
	}
	return checkRowsAffected(res, "source", sourceID)
}

func (s *SQLiteStore) DeactivateSource(ctx context.Context, sourceID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate source %s", sourceID)
	}
	return checkRowsAffected(res, "source", sourceID)
}

func (s *SQLiteStore) InsertCycle(ctx context.Context, cycle model.DispatchCycle) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatch_cycles
			(id, fingerprint, category, depth, sources_attempted, sources_successful, confidence, no_consensus, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cycle.ID, cycle.Fingerprint, string(cycle.Category), string(cycle.Depth),
		cycle.SourcesAttempted, cycle.SourcesSuccessful, cycle.Confidence,
		boolToInt(cycle.NoConsensus), cycle.DurationMs, cycle.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert cycle %s", cycle.ID)
}

func (s *SQLiteStore) ListCycles(ctx context.Context, filter CycleFilter) ([]model.DispatchCycle, error) {
	query := `SELECT id, fingerprint, category, depth, sources_attempted, sources_successful, confidence, no_consensus, duration_ms, created_at
		FROM dispatch_cycles WHERE 1=1`
	var args []any

	if filter.Fingerprint != "" {
		query += ` AND fingerprint = ?`
		args = append(args, filter.Fingerprint)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close()

	var cycles []model.DispatchCycle
	for rows.Next() {
		var c model.DispatchCycle
		var noConsensus int
		if err := rows.Scan(&c.ID, &c.Fingerprint, &c.Category, &c.Depth,
			&c.SourcesAttempted, &c.SourcesSuccessful, &c.Confidence,
			&noConsensus, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		c.NoConsensus = noConsensus != 0
		cycles = append(cycles, c)
	}
	return cycles, eris.Wrap(rows.Err(), "sqlite: iterate cycles")
}

func (s *SQLiteStore) InsertSamples(ctx context.Context, samples []model.LearningSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO learning_samples (id, cycle_id, source_id, success, error_kind, confidence, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert sample")
	}
	defer stmt.Close()

	for _, sample := range samples {
		id := sample.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx,
			id, sample.CycleID, sample.SourceID, boolToInt(sample.Success),
			sample.ErrorKind, sample.Confidence, sample.LatencyMs, sample.CreatedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert sample for %s", sample.SourceID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit samples")
}

func (s *SQLiteStore) CountSamples(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM learning_samples WHERE source_id = ?`, sourceID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count samples for %s", sourceID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
