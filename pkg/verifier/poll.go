package verifier

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
)

// DefaultPollInterval is the fixed period between job status requests.
const DefaultPollInterval = 2 * time.Second

var (
	// ErrJobFailed is delivered when the backend reports the job as failed.
	ErrJobFailed = eris.New("verifier: job failed")
	// ErrPollErrorBudget is delivered when consecutive status errors exceed
	// the ceiling set by WithMaxPollErrors.
	ErrPollErrorBudget = eris.New("verifier: poll error budget exhausted")
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval   time.Duration
	maxErrors  int
	onProgress func(*model.Job)
}

func defaultPollConfig() pollConfig {
	return pollConfig{interval: DefaultPollInterval}
}

// WithPollInterval overrides the poll period. Non-positive values are ignored.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxPollErrors stops polling after n consecutive status errors.
// Zero (the default) retries forever.
func WithMaxPollErrors(n int) PollOption {
	return func(c *pollConfig) {
		if n >= 0 {
			c.maxErrors = n
		}
	}
}

// WithProgress registers a callback invoked with every non-terminal status.
// It runs on the polling goroutine and never fires after Stop returns.
func WithProgress(fn func(*model.Job)) PollOption {
	return func(c *pollConfig) {
		c.onProgress = fn
	}
}

// PollHandle is a running poll task. The zero value is not usable; obtain
// one from StartPoll.
type PollHandle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	job  *model.Job
	err  error
}

// StartPoll begins polling GetJobStatus for id on its own goroutine. The task
// ends when the job reaches a terminal status, the error budget is spent,
// ctx is cancelled, or Stop is called.
func StartPoll(ctx context.Context, client Client, id string, opts ...PollOption) *PollHandle {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{
		jobID:  id,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer cancel()
		h.job, h.err = run(ctx, client, id, cfg)
	}()

	return h
}

// Poll blocks until the job is terminal or ctx is done.
func Poll(ctx context.Context, client Client, id string, opts ...PollOption) (*model.Job, error) {
	h := StartPoll(ctx, client, id, opts...)
	return h.Wait()
}

// JobID returns the id being polled.
func (h *PollHandle) JobID() string {
	return h.jobID
}

// Stop cancels the task and returns once the polling goroutine has exited.
// Safe to call more than once and after the task has finished.
func (h *PollHandle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed when the task has exited.
func (h *PollHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task exits and returns its outcome: the terminal job
// on completion, ErrJobFailed (with the failed job) on failure, or the
// reason polling stopped.
func (h *PollHandle) Wait() (*model.Job, error) {
	<-h.done
	return h.job, h.err
}

func run(ctx context.Context, client Client, id string, cfg pollConfig) (*model.Job, error) {
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "verifier: poll job %s stopped", id)
		case <-ticker.C:
		}

		job, err := client.GetJobStatus(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ctx.Err(), "verifier: poll job %s stopped", id)
			}
			consecutive++
			zap.L().Warn("poll job status failed",
				zap.String("job_id", id),
				zap.Int("consecutive_errors", consecutive),
				zap.Error(err),
			)
			if cfg.maxErrors > 0 && consecutive >= cfg.maxErrors {
				return nil, eris.Wrapf(ErrPollErrorBudget, "job %s after %d errors: %v", id, consecutive, err)
			}
			continue
		}
		consecutive = 0

		if job.Status.IsTerminal() {
			if job.Status != model.JobStatusFailed {
				return job, nil
			}
			if job.Error != "" {
				return job, eris.Wrapf(ErrJobFailed, "job %s: %s", id, job.Error)
			}
			return job, eris.Wrapf(ErrJobFailed, "job %s", id)
		}

		if cfg.onProgress != nil && ctx.Err() == nil {
			cfg.onProgress(job)
		}
	}
}
