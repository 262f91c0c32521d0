package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sells-group/verify-cli/internal/model"
)

// fakeVerifier completes every job on its first status request. Local parts
// starting with good or bad get those verdicts; anything else is unknown with
// MX. Level-2 answers are always deliverable.
type fakeVerifier struct {
	mu        sync.Mutex
	jobs      map[string][]string
	levels    map[string]model.Level
	singles   []model.Level
	preflight model.Preflight
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{
		jobs:      make(map[string][]string),
		levels:    make(map[string]model.Level),
		preflight: model.Preflight{Port25: true},
	}
}

func (f *fakeVerifier) SubmitBulk(_ context.Context, emails []string, level model.Level) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("job-%d", len(f.jobs)+1)
	f.jobs[id] = emails
	f.levels[id] = level
	return id, nil
}

func (f *fakeVerifier) GetJobStatus(_ context.Context, id string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.jobs[id])
	return &model.Job{ID: id, Level: f.levels[id], Status: model.JobStatusCompleted, Done: n, Total: n}, nil
}

func (f *fakeVerifier) FetchResults(_ context.Context, id string, _ int) ([]model.EmailResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.EmailResult, 0, len(f.jobs[id]))
	for _, e := range f.jobs[id] {
		rows = append(rows, model.EmailResult{Email: e, Result: verdict(e, f.levels[id])})
	}
	return rows, nil
}

func (f *fakeVerifier) VerifySingle(_ context.Context, email string, level model.Level) (*model.VerificationResult, error) {
	f.mu.Lock()
	f.singles = append(f.singles, level)
	f.mu.Unlock()
	return verdict(email, level), nil
}

func (f *fakeVerifier) NetworkPreflight(context.Context) (*model.Preflight, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pf := f.preflight
	return &pf, nil
}

func (f *fakeVerifier) singleLevels() []model.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Level(nil), f.singles...)
}

func verdict(email string, level model.Level) *model.VerificationResult {
	r := &model.VerificationResult{Email: email, Reachable: model.ReachableUnknown, HasMXRecords: true}
	r.Syntax.Valid = true
	switch {
	case level == model.LevelSMTP:
		r.Reachable = model.ReachableYes
		r.SMTP = &model.SMTP{HostExists: true, Deliverable: true}
	case strings.HasPrefix(email, "good"):
		r.Reachable = model.ReachableYes
	case strings.HasPrefix(email, "bad"):
		r.Reachable = model.ReachableNo
	}
	return r
}
