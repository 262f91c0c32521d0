package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/model"
)

// ErrNotFound is returned when a session or job does not exist.
var ErrNotFound = eris.New("not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store persists verification sessions, the jobs submitted in them and the
// rows each job produced.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, source string, addresses int) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	// Jobs
	RecordJob(ctx context.Context, sessionID string, job model.JobRun) (*model.JobRun, error)
	UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus) error

	// Results
	SaveResults(ctx context.Context, jobID string, rows []model.EmailResult) error
	JobResults(ctx context.Context, jobID string) ([]model.EmailResult, error)
	LatestResults(ctx context.Context, sessionID string) ([]model.EmailResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// defaultListLimit caps ListSessions when no limit is given.
const defaultListLimit = 100

// mergeLatest folds result sets, ordered by ascending level, into one row per
// input position. A later set replaces every earlier row for the same address;
// addresses first seen in a later set are appended.
func mergeLatest(sets [][]model.EmailResult) []model.EmailResult {
	if len(sets) == 0 {
		return nil
	}

	out := make([]model.EmailResult, 0, len(sets[0]))
	positions := make(map[string][]int)
	for _, set := range sets {
		added := make(map[string]bool)
		replaced := make(map[string]bool)
		for _, row := range set {
			if idx, ok := positions[row.Email]; ok && !added[row.Email] {
				if !replaced[row.Email] {
					for _, i := range idx {
						out[i] = row
					}
					replaced[row.Email] = true
				}
				continue
			}
			positions[row.Email] = append(positions[row.Email], len(out))
			out = append(out, row)
			added[row.Email] = true
		}
	}
	return out
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}
