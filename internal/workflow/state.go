package workflow

import "github.com/sells-group/verify-cli/internal/model"

// State is the orchestrator's current phase. Exactly one of Idle,
// Submitting, Polling, Results or Failed.
type State interface {
	Name() string
	isState()
}

// JobRef identifies a submitted backend job.
type JobRef struct {
	ID    string      `json:"id"`
	Level model.Level `json:"level"`
}

// Idle means no session is active.
type Idle struct{}

// Submitting means a SubmitBulk request is in flight. A failed submission
// returns to the state held before it.
type Submitting struct {
	Level model.Level
	prior State
}

// Polling means a job was accepted and is being tracked. Progress is nil
// until the first status arrives.
type Polling struct {
	Job      JobRef
	Progress *model.Job
}

// Results holds the classified rows of a completed job.
type Results struct {
	Job   JobRef
	Rows  []model.EmailResult
	Stats model.Stats
	// Total is the backend's address count for the job. It exceeds len(Rows)
	// when the backend capped the fetch.
	Total int
}

// Truncated reports whether fewer rows were fetched than the job holds.
func (r Results) Truncated() bool { return r.Total > len(r.Rows) }

// Failed means the tracked job failed or its results could not be fetched.
type Failed struct {
	Job JobRef
	Err error
}

func (Idle) Name() string       { return "idle" }
func (Submitting) Name() string { return "submitting" }
func (Polling) Name() string    { return "polling" }
func (Results) Name() string    { return "results" }
func (Failed) Name() string     { return "failed" }

func (Idle) isState()       {}
func (Submitting) isState() {}
func (Polling) isState()    {}
func (Results) isState()    {}
func (Failed) isState()     {}

// Busy reports whether st has work in flight.
func Busy(st State) bool {
	switch st.(type) {
	case Submitting, Polling:
		return true
	}
	return false
}
