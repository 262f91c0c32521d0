package model

import "time"

// Session groups the jobs an operator ran from one intake.
type Session struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Addresses int       `json:"addresses"`
	CreatedAt time.Time `json:"created_at"`
	Jobs      []JobRun  `json:"jobs,omitempty"`
}

// JobRun records a backend job submitted within a session.
type JobRun struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Level       Level     `json:"level"`
	Status      JobStatus `json:"status"`
	Total       int       `json:"total"`
	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
