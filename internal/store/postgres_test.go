package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sessions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), "leads.xlsx", 42, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sess, err := s.CreateSession(context.Background(), "leads.xlsx", 42)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 42, sess.Addresses)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, addresses, created_at FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_WithJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, source, addresses, created_at FROM sessions WHERE id = \$1`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "addresses", "created_at"}).
			AddRow("s1", "stdin", 3, now))
	mock.ExpectQuery(`FROM jobs WHERE session_id = \$1 ORDER BY level, submitted_at`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "session_id", "level", "status", "total", "submitted_at", "updated_at"}).
			AddRow("j1", "s1", 1, "completed", 3, now, now).
			AddRow("j2", "s1", 2, "processing", 1, now, now))

	sess, err := s.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Jobs, 2)
	assert.Equal(t, model.LevelSMTP, sess.Jobs[1].Level)
	assert.Equal(t, model.JobStatusProcessing, sess.Jobs[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessions_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND source = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("a.txt", 10, 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "addresses", "created_at"}).
			AddRow("s1", "a.txt", 1, time.Now()))

	sessions, err := s.ListSessions(context.Background(), SessionFilter{Source: "a.txt", Limit: 10, Offset: 5})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessions_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "addresses", "created_at"}))

	sessions, err := s.ListSessions(context.Background(), SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("j1", "s1", 2, "queued", 7, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.RecordJob(context.Background(), "s1", model.JobRun{ID: "j1", Level: model.LevelSMTP, Total: 7})
	require.NoError(t, err)
	assert.Equal(t, "s1", job.SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = \$1`).
		WithArgs("failed", pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateJobStatus(context.Background(), "nope", model.JobStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM job_results WHERE job_id = \$1`).
		WithArgs("j1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"job_results"}, resultColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := s.SaveResults(context.Background(), "j1", []model.EmailResult{
		row("a@x.com", "yes"),
		{Email: "b@", Error: "invalid"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveResults_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM job_results`).
		WithArgs("j1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"job_results"}, resultColumns).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	err := s.SaveResults(context.Background(), "j1", []model.EmailResult{row("a@x.com", "yes")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save results j1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_JobResults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT email, result, error FROM job_results WHERE job_id = \$1 ORDER BY position`).
		WithArgs("j1").
		WillReturnRows(pgxmock.NewRows([]string{"email", "result", "error"}).
			AddRow("a@x.com", []byte(`{"email":"a@x.com","reachable":"yes","has_mx_records":true}`), "").
			AddRow("b@", []byte(nil), "invalid"))

	rows, err := s.JobResults(context.Background(), "j1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Result)
	assert.Equal(t, model.ReachableYes, rows[0].Result.Reachable)
	assert.Nil(t, rows[1].Result)
	assert.Equal(t, "invalid", rows[1].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	called := false
	s := &PostgresStore{closeFn: func() { called = true }}
	require.NoError(t, s.Close())
	assert.True(t, called)

	assert.NoError(t, (&PostgresStore{}).Close())
}
