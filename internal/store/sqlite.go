package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/verify-cli/internal/model"
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
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	addresses  INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	level        INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	total        INTEGER NOT NULL DEFAULT 0,
	submitted_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_results (
	job_id   TEXT NOT NULL REFERENCES jobs(id),
	position INTEGER NOT NULL,
	email    TEXT NOT NULL,
	result   TEXT,
	error    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job_id, position)
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_session_id ON jobs(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, source string, addresses int) (*model.Session, error) {
	sess := &model.Session{
		ID:        uuid.New().String(),
		Source:    source,
		Addresses: addresses,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, addresses, created_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.Source, sess.Addresses, sess.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, addresses, created_at FROM sessions WHERE id = ?`, id,
	)
	var sess model.Session
	if err := row.Scan(&sess.ID, &sess.Source, &sess.Addresses, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("session", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	jobs, err := s.sessionJobs(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Jobs = jobs
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, source, addresses, created_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.Source, &sess.Addresses, &sess.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		sessions = append(sessions, sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: iterate sessions")
}

func (s *SQLiteStore) RecordJob(ctx context.Context, sessionID string, job model.JobRun) (*model.JobRun, error) {
	if job.ID == "" {
		return nil, eris.New("sqlite: record job: id is required")
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, session_id, level, status, total, submitted_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, sessionID, int(job.Level), string(job.Status), job.Total, job.SubmittedAt, job.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert job %s", job.ID)
	}
	return &job, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) SaveResults(ctx context.Context, jobID string, rows []model.EmailResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save results")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_results WHERE job_id = ?`, jobID); err != nil {
		return eris.Wrapf(err, "sqlite: clear results %s", jobID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO job_results (job_id, position, email, result, error) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert result")
	}
	defer stmt.Close()

	for i, row := range rows {
		resultJSON, err := marshalResult(row.Result)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, jobID, i, row.Email, resultJSON, row.Error); err != nil {
			return eris.Wrapf(err, "sqlite: insert result %d for job %s", i, jobID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit results")
}

func (s *SQLiteStore) JobResults(ctx context.Context, jobID string) ([]model.EmailResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT email, result, error FROM job_results WHERE job_id = ? ORDER BY position`, jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query results %s", jobID)
	}
	defer rows.Close()

	var out []model.EmailResult
	for rows.Next() {
		row, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}

func (s *SQLiteStore) LatestResults(ctx context.Context, sessionID string) ([]model.EmailResult, error) {
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

// sessionJobs returns a session's jobs ordered by level, then submission time.
func (s *SQLiteStore) sessionJobs(ctx context.Context, sessionID string) ([]model.JobRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, level, status, total, submitted_at, updated_at
		 FROM jobs WHERE session_id = ? ORDER BY level, submitted_at`, sessionID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query jobs for session %s", sessionID)
	}
	defer rows.Close()

	var jobs []model.JobRun
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.JobRun, error) {
	var j model.JobRun
	var level int
	if err := row.Scan(&j.ID, &j.SessionID, &level, &j.Status, &j.Total, &j.SubmittedAt, &j.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "scan job")
	}
	j.Level = model.Level(level)
	return &j, nil
}

func scanResult(row scannable) (*model.EmailResult, error) {
	var r model.EmailResult
	var resultJSON sql.NullString
	if err := row.Scan(&r.Email, &resultJSON, &r.Error); err != nil {
		return nil, eris.Wrap(err, "scan result")
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var vr model.VerificationResult
		if err := json.Unmarshal([]byte(resultJSON.String), &vr); err != nil {
			return nil, eris.Wrapf(err, "unmarshal result for %s", r.Email)
		}
		r.Result = &vr
	}
	return &r, nil
}

// marshalResult encodes a verdict for storage; nil stays NULL.
func marshalResult(r *model.VerificationResult) (any, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrapf(err, "marshal result for %s", r.Email)
	}
	return string(data), nil
}
