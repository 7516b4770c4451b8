package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/collectscope/identify-cli/internal/db"
	"github.com/collectscope/identify-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"update_source_stats": `UPDATE sources SET reliability = $1, avg_latency_ms = $2, updated_at = $3 WHERE id = $4`,
	"insert_cycle":        `INSERT INTO dispatch_cycles (id, fingerprint, category, depth, sources_attempted, sources_successful, confidence, no_consensus, duration_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"count_samples":       `SELECT COUNT(*) FROM learning_samples WHERE source_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems
// that need direct query access (e.g., bulk source imports).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sources (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	categories     JSONB NOT NULL,
	tier           INTEGER NOT NULL DEFAULT 1,
	reliability    DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	avg_latency_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dispatch_cycles (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	fingerprint        TEXT NOT NULL,
	category           TEXT NOT NULL,
	depth              TEXT NOT NULL,
	sources_attempted  INTEGER NOT NULL,
	sources_successful INTEGER NOT NULL,
	confidence         DOUBLE PRECISION NOT NULL,
	no_consensus       BOOLEAN NOT NULL DEFAULT FALSE,
	duration_ms        BIGINT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS learning_samples (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	cycle_id   TEXT NOT NULL REFERENCES dispatch_cycles(id),
	source_id  TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	error_kind TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active);
CREATE INDEX IF NOT EXISTS idx_cycles_fingerprint ON dispatch_cycles(fingerprint);
CREATE INDEX IF NOT EXISTS idx_cycles_created_at ON dispatch_cycles(created_at);
CREATE INDEX IF NOT EXISTS idx_samples_cycle_id ON learning_samples(cycle_id);
CREATE INDEX IF NOT EXISTS idx_samples_source_id ON learning_samples(source_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertSource(ctx context.Context, src model.Source) error {
	catJSON, err := json.Marshal(src.Categories)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal categories")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sources (id, name, categories, tier, reliability, avg_latency_ms, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			categories = EXCLUDED.categories,
			tier = EXCLUDED.tier,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		src.ID, src.Name, catJSON, src.Tier, src.Reliability, src.AvgLatencyMs,
		src.Active, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert source %s", src.ID)
}

func (s *PostgresStore) ListSources(ctx context.Context, onlyActive bool) ([]model.Source, error) {
	query := `SELECT id, name, categories, tier, reliability, avg_latency_ms, active, created_at, updated_at FROM sources`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY tier, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var catJSON []byte
		if err := rows.Scan(&src.ID, &src.Name, &catJSON, &src.Tier, &src.Reliability,
			&src.AvgLatencyMs, &src.Active, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		if err := json.Unmarshal(catJSON, &src.Categories); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal categories for %s", src.ID)
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: iterate sources")
}

func (s *PostgresStore) UpdateSourceStats(ctx context.Context, sourceID string, reliability, avgLatencyMs float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET reliability = $1, avg_latency_ms = $2, updated_at = $3 WHERE id = $4`,
		reliability, avgLatencyMs, time.Now().UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update source stats %s", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %s", sourceID)
	}
	return nil
}

func (s *PostgresStore) DeactivateSource(ctx context.Context, sourceID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), sourceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate source %s", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %s", sourceID)
	}
	return nil
}

func (s *PostgresStore) InsertCycle(ctx context.Context, cycle model.DispatchCycle) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dispatch_cycles (id, fingerprint, category, depth, sources_attempted, sources_successful, confidence, no_consensus, duration_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cycle.ID, cycle.Fingerprint, string(cycle.Category), string(cycle.Depth),
		cycle.SourcesAttempted, cycle.SourcesSuccessful, cycle.Confidence,
		cycle.NoConsensus, cycle.DurationMs, cycle.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert cycle %s", cycle.ID)
}

func (s *PostgresStore) ListCycles(ctx context.Context, filter CycleFilter) ([]model.DispatchCycle, error) {
	query := `SELECT id, fingerprint, category, depth, sources_attempted, sources_successful, confidence, no_consensus, duration_ms, created_at
		FROM dispatch_cycles WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Fingerprint != "" {
		query += ` AND fingerprint = ` + arg(filter.Fingerprint)
	}
	if filter.Category != "" {
		query += ` AND category = ` + arg(string(filter.Category))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ` + arg(filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var cycles []model.DispatchCycle
	for rows.Next() {
		var c model.DispatchCycle
		if err := rows.Scan(&c.ID, &c.Fingerprint, &c.Category, &c.Depth,
			&c.SourcesAttempted, &c.SourcesSuccessful, &c.Confidence,
			&c.NoConsensus, &c.DurationMs, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		cycles = append(cycles, c)
	}
	return cycles, eris.Wrap(rows.Err(), "postgres: iterate cycles")
}

var sampleColumns = []string{"id", "cycle_id", "source_id", "success", "error_kind", "confidence", "latency_ms", "created_at"}

func (s *PostgresStore) InsertSamples(ctx context.Context, samples []model.LearningSample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(samples))
	for _, sample := range samples {
		id := sample.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{
			id, sample.CycleID, sample.SourceID, sample.Success,
			sample.ErrorKind, sample.Confidence, sample.LatencyMs, sample.CreatedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "learning_samples", sampleColumns, rows)
	return eris.Wrap(err, "postgres: insert samples")
}

func (s *PostgresStore) CountSamples(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM learning_samples WHERE source_id = $1`, sourceID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count samples for %s", sourceID)
}
