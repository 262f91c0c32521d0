package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/db"
	"github.com/sells-group/verify-cli/internal/model"
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

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source     TEXT NOT NULL,
	addresses  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	level        SMALLINT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	total        INTEGER NOT NULL DEFAULT 0,
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_results (
	job_id   TEXT NOT NULL REFERENCES jobs(id),
	position INTEGER NOT NULL,
	email    TEXT NOT NULL,
	result   JSONB,
	error    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_session_id ON jobs(session_id);
`

var resultColumns = []string{"job_id", "position", "email", "result", "error"}

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

func (s *PostgresStore) CreateSession(ctx context.Context, source string, addresses int) (*model.Session, error) {
	sess := &model.Session{
		ID:        uuid.New().String(),
		Source:    source,
		Addresses: addresses,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, source, addresses, created_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.Source, sess.Addresses, sess.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, addresses, created_at FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Source, &sess.Addresses, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("session", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}

	jobs, err := s.sessionJobs(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Jobs = jobs
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, source, addresses, created_at FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.Source, &sess.Addresses, &sess.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: iterate sessions")
}

func (s *PostgresStore) RecordJob(ctx context.Context, sessionID string, job model.JobRun) (*model.JobRun, error) {
	if job.ID == "" {
		return nil, eris.New("postgres: record job: id is required")
	}
	now := time.Now().UTC()
	job.SessionID = sessionID
	if job.Status == "" {
		job.Status = model.JobStatusQueued
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = now
	}
	job.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, session_id, level, status, total, submitted_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, sessionID, int(job.Level), string(job.Status), job.Total, job.SubmittedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert job %s", job.ID)
	}
	return &job, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("job", jobID)
	}
	return nil
}

func (s *PostgresStore) SaveResults(ctx context.Context, jobID string, rows []model.EmailResult) error {
	copyRows := make([][]any, 0, len(rows))
	for i, row := range rows {
		var resultJSON []byte
		if row.Result != nil {
			data, err := json.Marshal(row.Result)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal result for %s", row.Email)
			}
			resultJSON = data
		}
		copyRows = append(copyRows, []any{jobID, i, row.Email, resultJSON, row.Error})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save results")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM job_results WHERE job_id = $1`, jobID); err != nil {
		return eris.Wrapf(err, "postgres: clear results %s", jobID)
	}
	if _, err := db.CopyFrom(ctx, tx, "job_results", resultColumns, copyRows); err != nil {
		return eris.Wrapf(err, "postgres: save results %s", jobID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit results")
}

func (s *PostgresStore) JobResults(ctx context.Context, jobID string) ([]model.EmailResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email, result, error FROM job_results WHERE job_id = $1 ORDER BY position`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query results %s", jobID)
	}
	defer rows.Close()

	var out []model.EmailResult
	for rows.Next() {
		var r model.EmailResult
		var resultJSON []byte
		if err := rows.Scan(&r.Email, &resultJSON, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if len(resultJSON) > 0 {
			var vr model.VerificationResult
			if err := json.Unmarshal(resultJSON, &vr); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal result for %s", r.Email)
			}
			r.Result = &vr
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}

func (s *PostgresStore) LatestResults(ctx context.Context, sessionID string) ([]model.EmailResult, error) {
	jobs, err := s.sessionJobs(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var sets [][]model.EmailResult
	for _, job := range jobs {
		if job.Status != model.JobStatusCompleted {
			continue
		}
		rows, err := s.JobResults(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		sets = append(sets, rows)
	}
	return mergeLatest(sets), nil
}

func (s *PostgresStore) sessionJobs(ctx context.Context, sessionID string) ([]model.JobRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, level, status, total, submitted_at, updated_at
		 FROM jobs WHERE session_id = $1 ORDER BY level, submitted_at`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query jobs for session %s", sessionID)
	}
	defer rows.Close()

	var jobs []model.JobRun
	for rows.Next() {
		var j model.JobRun
		var level int
		var status string
		if err := rows.Scan(&j.ID, &j.SessionID, &level, &status, &j.Total, &j.SubmittedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		j.Level = model.Level(level)
		j.Status = model.JobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}
