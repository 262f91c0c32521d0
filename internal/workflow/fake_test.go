package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
)

// fakeBackend is an in-memory verifier.Client. Jobs complete after
// pollsToFinish status requests and echo back the results function's rows.
type fakeBackend struct {
	mu sync.Mutex

	submitErr     error
	submitted     [][]string
	levels        []model.Level
	pollsToFinish int
	failJobs      bool
	statusCalls   map[string]int
	results       func(emails []string, level model.Level) []model.EmailResult
	jobs          map[string][]string
	jobLevels     map[string]model.Level

	preflight    *model.Preflight
	preflightErr error
	preflights   int
	// preflightFlaky fails this many network checks with a transient error
	// before answering.
	preflightFlaky int

	submitGate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pollsToFinish: 1,
		statusCalls:   make(map[string]int),
		jobs:          make(map[string][]string),
		jobLevels:     make(map[string]model.Level),
		preflight:     &model.Preflight{Port25: true},
		results:       level1Results,
	}
}

func (b *fakeBackend) SubmitBulk(ctx context.Context, emails []string, level model.Level) (string, error) {
	if b.submitGate != nil {
		<-b.submitGate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.submitErr != nil {
		return "", b.submitErr
	}
	id := fmt.Sprintf("job-%d", len(b.submitted)+1)
	b.submitted = append(b.submitted, append([]string(nil), emails...))
	b.levels = append(b.levels, level)
	b.jobs[id] = emails
	b.jobLevels[id] = level
	return id, nil
}

func (b *fakeBackend) GetJobStatus(ctx context.Context, id string) (*model.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusCalls[id]++
	emails, ok := b.jobs[id]
	if !ok {
		return nil, errors.New("job_not_found")
	}
	job := &model.Job{ID: id, Level: b.jobLevels[id], Total: len(emails), Status: model.JobStatusProcessing}
	if b.statusCalls[id] >= b.pollsToFinish {
		job.Done = len(emails)
		job.Status = model.JobStatusCompleted
		if b.failJobs {
			job.Status = model.JobStatusFailed
			job.Error = "worker crashed"
		}
	}
	return job, nil
}

func (b *fakeBackend) FetchResults(ctx context.Context, id string, limit int) ([]model.EmailResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.results(b.jobs[id], b.jobLevels[id]), nil
}

func (b *fakeBackend) VerifySingle(context.Context, string, model.Level) (*model.VerificationResult, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBackend) NetworkPreflight(context.Context) (*model.Preflight, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.preflights++
	if b.preflights <= b.preflightFlaky {
		return nil, resilience.NewTransientError(errors.New("verifier: HTTP 503: unavailable"), 503)
	}
	return b.preflight, b.preflightErr
}

func (b *fakeBackend) submissions() ([][]string, []model.Level) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.submitted...), append([]model.Level(nil), b.levels...)
}

func (b *fakeBackend) totalStatusCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.statusCalls {
		n += c
	}
	return n
}

// level1Results maps the local part of each address to a verdict:
// good*, bad*, disp*, nomx*; anything else is unknown with MX.
func level1Results(emails []string, level model.Level) []model.EmailResult {
	rows := make([]model.EmailResult, len(emails))
	for i, e := range emails {
		r := &model.VerificationResult{Email: e, Reachable: model.ReachableUnknown, HasMXRecords: true}
		r.Syntax.Valid = true
		switch {
		case level == model.LevelSMTP:
			r.Reachable = model.ReachableYes
			r.SMTP = &model.SMTP{HostExists: true, Deliverable: true}
		case strings.HasPrefix(e, "good"):
			r.Reachable = model.ReachableYes
		case strings.HasPrefix(e, "bad"):
			r.Reachable = model.ReachableNo
		case strings.HasPrefix(e, "disp"):
			r.Disposable = true
		case strings.HasPrefix(e, "nomx"):
			r.HasMXRecords = false
		}
		rows[i] = model.EmailResult{Email: e, Result: r}
	}
	return rows
}
