// Package workflow drives the two-phase bulk verification session: intake,
// a level-1 job, classification, and an operator-approved level-2 job.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/extract"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/internal/store"
	"github.com/sells-group/verify-cli/pkg/verifier"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state, such as starting a session while one is polling.
	ErrInvalidTransition = eris.New("workflow: operation not allowed in current state")
	// ErrSessionReset is returned by a submission whose session was reset
	// while the request was in flight. The job is abandoned.
	ErrSessionReset = eris.New("workflow: session was reset")
)

// Config tunes polling and result retrieval.
type Config struct {
	PollInterval   time.Duration
	MaxPollErrors  int
	FetchLimit     int
	SoftLimit      int
	FetchRetry     resilience.RetryConfig
	PreflightRetry resilience.RetryConfig
}

// DefaultPreflightRetry gives a transient network-check failure one more try
// before phase 2 proceeds without an answer.
func DefaultPreflightRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 2
	cfg.InitialBackoff = 250 * time.Millisecond
	return cfg
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   verifier.DefaultPollInterval,
		FetchLimit:     verifier.DefaultFetchLimit,
		SoftLimit:      extract.SoftLimit,
		FetchRetry:     resilience.DefaultRetryConfig(),
		PreflightRetry: DefaultPreflightRetry(),
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore records sessions, jobs and results in s.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// Orchestrator owns one operator session at a time. All state transitions
// happen under mu; background work is tagged with the generation it was
// started in and discarded if a Reset has happened since.
type Orchestrator struct {
	client verifier.Client
	store  store.Store
	cfg    Config

	mu        sync.Mutex
	gen       uint64
	state     State
	sessionID string
	source    string
	addresses []string
	poll      *verifier.PollHandle
	cancel    context.CancelFunc
	changed   chan struct{}

	wg sync.WaitGroup
}

// New creates an idle Orchestrator.
func New(client verifier.Client, cfg Config, opts ...Option) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = verifier.DefaultPollInterval
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = verifier.DefaultFetchLimit
	}
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = extract.SoftLimit
	}
	if cfg.FetchRetry.OnRetry == nil {
		cfg.FetchRetry.OnRetry = resilience.RetryLogger("verifier", "fetch_results")
	}
	if cfg.PreflightRetry.OnRetry == nil {
		cfg.PreflightRetry.OnRetry = resilience.RetryLogger("verifier", "network_check")
	}
	o := &Orchestrator{
		client:  client,
		cfg:     cfg,
		state:   Idle{},
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start extracts candidates from text and submits them as a level-1 job.
// ErrNoEmails is returned before any request when text holds no address.
func (o *Orchestrator) Start(ctx context.Context, source, text string) error {
	addrs, err := extract.Candidates(text)
	if err != nil {
		return err
	}
	return o.StartAddresses(ctx, source, addrs)
}

// StartAddresses submits addrs as a level-1 job, replacing any finished
// session. A session that is still submitting or polling must be Reset first.
func (o *Orchestrator) StartAddresses(ctx context.Context, source string, addrs []string) error {
	if len(addrs) == 0 {
		return extract.ErrNoEmails
	}
	if len(addrs) > o.cfg.SoftLimit {
		zap.L().Warn("address count exceeds recommended limit",
			zap.Int("count", len(addrs)),
			zap.Int("limit", o.cfg.SoftLimit),
		)
	}

	o.mu.Lock()
	if Busy(o.state) {
		o.mu.Unlock()
		return eris.Wrapf(ErrInvalidTransition, "start while %s", o.state.Name())
	}
	gen := o.enterSubmittingLocked(model.LevelBasic)
	o.mu.Unlock()

	sessionID := o.openSession(ctx, source, len(addrs))
	return o.submit(ctx, gen, sessionID, source, addrs, model.LevelBasic)
}

// Escalate runs phase 2: it checks the port-25 preflight, selects the rows
// in the chosen tiers and submits them as a level-2 job.
func (o *Orchestrator) Escalate(ctx context.Context, sel model.Phase2Selection) error {
	o.mu.Lock()
	res, ok := o.state.(Results)
	gen := o.gen
	sessionID, source := o.sessionID, o.source
	o.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrInvalidTransition, "phase 2 requires results, have %s", o.State().Name())
	}
	if sel.Empty() {
		return ErrNothingSelected
	}

	if err := GatePreflight(ctx, o.client, o.cfg.PreflightRetry); err != nil {
		return err
	}

	addrs := SelectPhase2(res.Rows, sel)
	if len(addrs) == 0 {
		return ErrNothingSelected
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return ErrSessionReset
	}
	if _, ok := o.state.(Results); !ok {
		o.mu.Unlock()
		return eris.Wrapf(ErrInvalidTransition, "phase 2 while %s", o.state.Name())
	}
	gen = o.enterSubmittingLocked(model.LevelSMTP)
	o.mu.Unlock()

	return o.submit(ctx, gen, sessionID, source, addrs, model.LevelSMTP)
}

// Reset abandons the current session. Any poll is stopped before Reset
// returns, and late responses from it are dropped.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.gen++
	h, cancel := o.poll, o.cancel
	o.poll, o.cancel = nil, nil
	o.sessionID, o.source, o.addresses = "", "", nil
	o.setLocked(Idle{})
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if h != nil {
		h.Stop()
	}
}

// Close resets the session and waits for background work to exit.
func (o *Orchestrator) Close() {
	o.Reset()
	o.wg.Wait()
}

// Wait blocks until the session is no longer submitting or polling. A
// Failed state is returned together with its error.
func (o *Orchestrator) Wait(ctx context.Context) (State, error) {
	for {
		o.mu.Lock()
		st, ch := o.state, o.changed
		o.mu.Unlock()

		if !Busy(st) {
			if f, ok := st.(Failed); ok {
				return st, f.Err
			}
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		}
	}
}

// Changed returns a channel closed on the next state transition.
func (o *Orchestrator) Changed() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.changed
}

// SessionID returns the stored session id, or "" without a store.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Addresses returns the phase-1 candidates of the current session.
func (o *Orchestrator) Addresses() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addresses
}

func (o *Orchestrator) enterSubmittingLocked(level model.Level) uint64 {
	o.gen++
	o.setLocked(Submitting{Level: level, prior: o.state})
	return o.gen
}

func (o *Orchestrator) submit(ctx context.Context, gen uint64, sessionID, source string, addrs []string, level model.Level) error {
	id, err := o.client.SubmitBulk(ctx, addrs, level)
	if err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.gen != gen {
			return ErrSessionReset
		}
		if sub, ok := o.state.(Submitting); ok {
			o.setLocked(sub.prior)
		}
		return eris.Wrapf(err, "workflow: submit level %d", level)
	}

	ref := JobRef{ID: id, Level: level}
	zap.L().Info("job submitted",
		zap.String("job_id", id),
		zap.Int("level", int(level)),
		zap.Int("addresses", len(addrs)),
	)
	o.recordJob(ctx, sessionID, ref, len(addrs))

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		zap.L().Warn("session reset during submission; abandoning job", zap.String("job_id", id))
		return ErrSessionReset
	}
	o.sessionID, o.source = sessionID, source
	if level == model.LevelBasic {
		o.addresses = addrs
	}
	o.beginPollingLocked(gen, ref)
	return nil
}

func (o *Orchestrator) beginPollingLocked(gen uint64, ref JobRef) {
	ctx, cancel := context.WithCancel(context.Background())
	h := verifier.StartPoll(ctx, o.client, ref.ID,
		verifier.WithPollInterval(o.cfg.PollInterval),
		verifier.WithMaxPollErrors(o.cfg.MaxPollErrors),
		verifier.WithProgress(func(job *model.Job) { o.onProgress(gen, ref, job) }),
	)
	o.poll, o.cancel = h, cancel
	o.setLocked(Polling{Job: ref})

	o.wg.Add(1)
	go o.watch(ctx, gen, ref, h)
}

func (o *Orchestrator) onProgress(gen uint64, ref JobRef, job *model.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	if p, ok := o.state.(Polling); ok && p.Job == ref {
		o.setLocked(Polling{Job: ref, Progress: job})
	}
}

// watch waits for the poll to end, then fetches and classifies the rows.
func (o *Orchestrator) watch(ctx context.Context, gen uint64, ref JobRef, h *verifier.PollHandle) {
	defer o.wg.Done()

	job, err := h.Wait()
	if err != nil {
		if o.current(gen) {
			o.updateJob(ctx, ref, model.JobStatusFailed)
		}
		o.finish(gen, Failed{Job: ref, Err: err})
		return
	}

	rows, err := resilience.DoVal(ctx, o.cfg.FetchRetry, func(ctx context.Context) ([]model.EmailResult, error) {
		return o.client.FetchResults(ctx, ref.ID, o.cfg.FetchLimit)
	})
	if err != nil {
		o.finish(gen, Failed{Job: ref, Err: eris.Wrapf(err, "workflow: fetch results %s", ref.ID)})
		return
	}

	res := Results{Job: ref, Rows: rows, Stats: classify.Aggregate(rows), Total: len(rows)}
	if job != nil && job.Total > res.Total {
		res.Total = job.Total
		zap.L().Warn("job results truncated",
			zap.String("job_id", ref.ID),
			zap.Int("total", job.Total),
			zap.Int("fetched", len(rows)),
		)
	}
	if o.current(gen) {
		o.updateJob(ctx, ref, model.JobStatusCompleted)
		o.saveResults(ctx, ref, rows)
	}
	zap.L().Info("job completed",
		zap.String("job_id", ref.ID),
		zap.Int("level", int(ref.Level)),
		zap.Int("rows", len(rows)),
		zap.Int("total", res.Total),
		zap.Int("good", res.Stats.Good),
		zap.Int("risky", res.Stats.Risky),
		zap.Int("bad", res.Stats.Bad),
	)
	o.finish(gen, res)
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

func (o *Orchestrator) finish(gen uint64, st State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.poll, o.cancel = nil, nil
	o.setLocked(st)
}

// setLocked replaces the state and wakes every Wait/Changed caller.
func (o *Orchestrator) setLocked(st State) {
	o.state = st
	close(o.changed)
	o.changed = make(chan struct{})
}

func (o *Orchestrator) openSession(ctx context.Context, source string, n int) string {
	if o.store == nil {
		return ""
	}
	sess, err := o.store.CreateSession(ctx, source, n)
	if err != nil {
		zap.L().Warn("store: create session failed", zap.Error(err))
		return ""
	}
	return sess.ID
}

func (o *Orchestrator) recordJob(ctx context.Context, sessionID string, ref JobRef, total int) {
	if o.store == nil || sessionID == "" {
		return
	}
	_, err := o.store.RecordJob(ctx, sessionID, model.JobRun{
		ID:     ref.ID,
		Level:  ref.Level,
		Status: model.JobStatusQueued,
		Total:  total,
	})
	if err != nil {
		zap.L().Warn("store: record job failed", zap.String("job_id", ref.ID), zap.Error(err))
	}
}

func (o *Orchestrator) updateJob(ctx context.Context, ref JobRef, status model.JobStatus) {
	if o.store == nil || o.SessionID() == "" {
		return
	}
	if err := o.store.UpdateJobStatus(context.WithoutCancel(ctx), ref.ID, status); err != nil {
		zap.L().Warn("store: update job failed", zap.String("job_id", ref.ID), zap.Error(err))
	}
}

func (o *Orchestrator) saveResults(ctx context.Context, ref JobRef, rows []model.EmailResult) {
	if o.store == nil || o.SessionID() == "" {
		return
	}
	if err := o.store.SaveResults(context.WithoutCancel(ctx), ref.ID, rows); err != nil {
		zap.L().Warn("store: save results failed", zap.String("job_id", ref.ID), zap.Error(err))
	}
}
