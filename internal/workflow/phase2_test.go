package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
)

func sampleRows() []model.EmailResult {
	return level1Results([]string{
		"good1@x.com", "unk1@x.com", "bad1@x.com", "good1@x.com", "disp1@x.com", "nomx1@x.com",
	}, model.LevelBasic)
}

func TestSelectPhase2_DefaultIsGoodOnly(t *testing.T) {
	got := SelectPhase2(sampleRows(), model.DefaultPhase2Selection())
	assert.Equal(t, []string{"good1@x.com", "good1@x.com"}, got)
}

func TestSelectPhase2_UnionKeepsRowOrder(t *testing.T) {
	got := SelectPhase2(sampleRows(), model.Phase2Selection{Risky: true, Bad: true})
	assert.Equal(t, []string{"unk1@x.com", "bad1@x.com", "disp1@x.com", "nomx1@x.com"}, got)
}

func TestSelectPhase2_Empty(t *testing.T) {
	assert.Empty(t, SelectPhase2(sampleRows(), model.Phase2Selection{}))
	assert.Empty(t, SelectPhase2(nil, model.Phase2Selection{Good: true, Risky: true, Bad: true}))
}

func TestSelectPhase2_RowWithoutResultIsRisky(t *testing.T) {
	rows := []model.EmailResult{{Email: "err@x.com", Error: "timeout"}}
	assert.Equal(t, []string{"err@x.com"}, SelectPhase2(rows, model.Phase2Selection{Risky: true}))
	assert.Empty(t, SelectPhase2(rows, model.Phase2Selection{Good: true, Bad: true}))
}

func TestGatePreflight(t *testing.T) {
	tests := []struct {
		name      string
		preflight *model.Preflight
		err       error
		want      error
	}{
		{"open", &model.Preflight{Port25: true}, nil, nil},
		{"blocked", &model.Preflight{Port25: false}, nil, ErrPort25Blocked},
		{"blocked with reason", &model.Preflight{Port25: false, Error: "dial tcp: i/o timeout"}, nil, ErrPort25Blocked},
		{"request failed", nil, errors.New("connection refused"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			b.preflight, b.preflightErr = tt.preflight, tt.err

			err := GatePreflight(context.Background(), b, DefaultPreflightRetry())
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func TestGatePreflight_RetriesTransientFailure(t *testing.T) {
	b := newFakeBackend()
	b.preflight = &model.Preflight{Port25: false}
	b.preflightFlaky = 1

	err := GatePreflight(context.Background(), b, fastRetry(2))
	assert.ErrorIs(t, err, ErrPort25Blocked)
	assert.Equal(t, 2, b.preflights)
}

func TestGatePreflight_ProceedsWhenRetriesRunOut(t *testing.T) {
	b := newFakeBackend()
	b.preflight = &model.Preflight{Port25: false}
	b.preflightFlaky = 5

	require.NoError(t, GatePreflight(context.Background(), b, fastRetry(2)))
	assert.Equal(t, 2, b.preflights)
}

func TestPreflight_PermanentErrorNotRetried(t *testing.T) {
	b := newFakeBackend()
	b.preflightErr = errors.New("verifier: HTTP 401: unauthorized")

	pf, err := Preflight(context.Background(), b, fastRetry(3))
	require.Error(t, err)
	assert.Nil(t, pf)
	assert.Equal(t, 1, b.preflights)
}
