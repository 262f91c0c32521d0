package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatusIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusQueued, false},
		{JobStatusProcessing, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestLevelValid(t *testing.T) {
	t.Parallel()

	assert.True(t, LevelBasic.Valid())
	assert.True(t, LevelSMTP.Valid())
	assert.False(t, Level(0).Valid())
	assert.False(t, Level(3).Valid())
}

func TestJobProgress(t *testing.T) {
	t.Parallel()

	var nilJob *Job
	assert.Zero(t, nilJob.Progress())
	assert.Zero(t, (&Job{Done: 3}).Progress())
	assert.InDelta(t, 0.5, (&Job{Done: 5, Total: 10}).Progress(), 0.0001)
	assert.InDelta(t, 1.0, (&Job{Done: 12, Total: 10}).Progress(), 0.0001)
}

func TestJobCountersDecode(t *testing.T) {
	t.Parallel()

	var j Job
	require.NoError(t, json.Unmarshal([]byte(`{"id":"j1","status":"running","done":7,"total":10,"failed":2}`), &j))
	assert.Equal(t, 7, j.Done)
	assert.Equal(t, 2, j.Failed)
	assert.Equal(t, 3, j.Total-j.Done)
}
