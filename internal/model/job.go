package model

import "time"

// JobStatus represents the backend-reported state of a bulk verification job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusRunning    JobStatus = "running"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further progress can happen for the job.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Level selects how invasive a verification pass is.
type Level int

const (
	// LevelBasic runs syntax, MX and disposable-domain checks only.
	LevelBasic Level = 1
	// LevelSMTP adds an SMTP handshake and needs outbound port 25.
	LevelSMTP Level = 2
)

// Valid reports whether the level is one the backend accepts.
func (l Level) Valid() bool {
	return l == LevelBasic || l == LevelSMTP
}

// Job is a snapshot of a backend-tracked bulk verification job. It is observed
// by the poller, never written.
type Job struct {
	ID         string     `json:"id"`
	Level      Level      `json:"level"`
	Status     JobStatus  `json:"status"`
	Done       int        `json:"done"`
	Total      int        `json:"total"`
	Failed     int        `json:"failed,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Progress returns the completed fraction in [0, 1].
func (j *Job) Progress() float64 {
	if j == nil || j.Total <= 0 {
		return 0
	}
	p := float64(j.Done) / float64(j.Total)
	if p > 1 {
		return 1
	}
	return p
}

// Preflight is the backend's answer to whether outbound SMTP is usable.
type Preflight struct {
	Port25 bool   `json:"port25"`
	Error  string `json:"error,omitempty"`
}
