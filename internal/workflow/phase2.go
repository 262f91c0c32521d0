package workflow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/pkg/verifier"
)

var (
	// ErrNothingSelected is returned when no row falls in a selected tier.
	ErrNothingSelected = eris.New("workflow: no emails selected for phase 2")
	// ErrPort25Blocked is returned when the backend reports outbound SMTP
	// is blocked. SMTP results would be unreliable.
	ErrPort25Blocked = eris.New("workflow: outbound port 25 is blocked; SMTP checks would fail or be inaccurate")
)

// SelectPhase2 returns the addresses of rows whose tier is selected, in row
// order. Duplicates are kept.
func SelectPhase2(rows []model.EmailResult, sel model.Phase2Selection) []string {
	var out []string
	for _, row := range rows {
		if sel.Includes(classify.Classify(row.Result)) {
			out = append(out, row.Email)
		}
	}
	return out
}

// GatePreflight asks the backend whether port 25 is open, retrying transient
// failures per retry. Only an explicit "blocked" answer stops phase 2; a
// request that still fails is logged and ignored.
func GatePreflight(ctx context.Context, client verifier.Client, retry resilience.RetryConfig) error {
	pf, err := Preflight(ctx, client, retry)
	if err != nil {
		zap.L().Warn("network preflight failed; continuing", zap.Error(err))
		return nil
	}
	if pf == nil {
		return nil
	}
	if !pf.Port25 {
		if pf.Error != "" {
			return eris.Wrap(ErrPort25Blocked, pf.Error)
		}
		return ErrPort25Blocked
	}
	return nil
}

// Preflight runs the backend network check with retry.
func Preflight(ctx context.Context, client verifier.Client, retry resilience.RetryConfig) (*model.Preflight, error) {
	var pf *model.Preflight
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		var err error
		pf, err = client.NetworkPreflight(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pf, nil
}
