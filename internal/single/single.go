// Package single runs the one-address check: a level-1 pass, and an SMTP
// pass only after the operator confirms a plan returned by Plan.
package single

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/pkg/verifier"
)

// DefaultConfirmTTL bounds how long an escalation plan stays confirmable.
const DefaultConfirmTTL = 5 * time.Minute

// ConfirmWord is what an operator types to approve an SMTP check.
const ConfirmWord = "yes"

var (
	// ErrConfirmationRequired is returned for a missing, expired, or reused
	// token. Nothing is sent to the backend.
	ErrConfirmationRequired = eris.New("single: explicit confirmation required")
	// ErrNotEscalatable is returned when the last level-1 verdict for the
	// address does not warrant an SMTP check.
	ErrNotEscalatable = eris.New("single: address is not eligible for an SMTP check")
)

// Cache is an optional store for verdicts keyed by level and address.
type Cache interface {
	Get(ctx context.Context, level model.Level, email string) (*model.VerificationResult, bool, error)
	Set(ctx context.Context, level model.Level, email string, res *model.VerificationResult) error
}

// Check is the outcome of a level-1 check.
type Check struct {
	Email       string                    `json:"email"`
	Result      *model.VerificationResult `json:"result"`
	Label       string                    `json:"label"`
	Escalatable bool                      `json:"escalatable"`
	Cached      bool                      `json:"cached,omitempty"`
}

// EscalationPlan describes the SMTP check that Confirm will run.
type EscalationPlan struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Option configures a Flow.
type Option func(*Flow)

// WithCache serves level-1 verdicts from c when present.
func WithCache(c Cache) Option {
	return func(f *Flow) {
		f.cache = c
	}
}

// WithConfirmTTL overrides DefaultConfirmTTL.
func WithConfirmTTL(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// Flow is safe for concurrent use.
type Flow struct {
	client verifier.Client
	cache  Cache
	ttl    time.Duration
	now    func() time.Time

	mu sync.Mutex
	// checks records when each address last checked escalatable. An entry
	// lives until its plan is confirmed or it is older than ttl.
	checks map[string]time.Time
	plans  map[string]EscalationPlan
}

// NewFlow builds a Flow around client.
func NewFlow(client verifier.Client, opts ...Option) *Flow {
	f := &Flow{
		client: client,
		ttl:    DefaultConfirmTTL,
		now:    time.Now,
		checks: make(map[string]time.Time),
		plans:  make(map[string]EscalationPlan),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check runs the level-1 pass for email. It never touches SMTP.
func (f *Flow) Check(ctx context.Context, email string) (*Check, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, eris.New("single: email is required")
	}

	res, cached := f.cached(ctx, model.LevelBasic, email)
	if res == nil {
		var err error
		res, err = f.client.VerifySingle(ctx, email, model.LevelBasic)
		if err != nil {
			return nil, eris.Wrapf(err, "single: check %s", email)
		}
		f.store(ctx, model.LevelBasic, email, res)
	}

	f.mu.Lock()
	f.pruneLocked()
	if classify.Escalatable(res) {
		f.checks[email] = f.now()
	} else {
		delete(f.checks, email)
	}
	f.mu.Unlock()

	return &Check{
		Email:       email,
		Result:      res,
		Label:       classify.DisplayLabel(res),
		Escalatable: classify.Escalatable(res),
		Cached:      cached,
	}, nil
}

// Plan issues a single-use token for an SMTP check of email. No request is
// sent. The address must have been found escalatable by a check within the
// confirmation TTL.
func (f *Flow) Plan(email string) (*EscalationPlan, error) {
	email = strings.TrimSpace(email)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.pruneLocked()
	if _, ok := f.checks[email]; !ok {
		return nil, eris.Wrapf(ErrNotEscalatable, "%s", email)
	}

	plan := EscalationPlan{
		Token:     uuid.New().String(),
		Email:     email,
		ExpiresAt: f.now().Add(f.ttl),
	}
	f.plans[plan.Token] = plan
	return &plan, nil
}

// Confirm redeems token and runs the SMTP check it was issued for. The
// token is consumed even if the request fails.
func (f *Flow) Confirm(ctx context.Context, token string) (*Check, error) {
	f.mu.Lock()
	plan, ok := f.plans[token]
	delete(f.plans, token)
	if ok {
		delete(f.checks, plan.Email)
	}
	f.mu.Unlock()

	if !ok || f.now().After(plan.ExpiresAt) {
		return nil, ErrConfirmationRequired
	}

	res, err := f.client.VerifySingle(ctx, plan.Email, model.LevelSMTP)
	if err != nil {
		return nil, eris.Wrapf(err, "single: smtp check %s", plan.Email)
	}
	f.store(ctx, model.LevelSMTP, plan.Email, res)

	return &Check{
		Email:  plan.Email,
		Result: res,
		Label:  classify.DisplayLabel(res),
	}, nil
}

// Affirmed reports whether an operator's typed answer approves an SMTP check.
func Affirmed(answer string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(answer)) == fold.String(ConfirmWord)
}

func (f *Flow) cached(ctx context.Context, level model.Level, email string) (*model.VerificationResult, bool) {
	if f.cache == nil {
		return nil, false
	}
	res, ok, err := f.cache.Get(ctx, level, email)
	if err != nil {
		zap.L().Warn("single: cache read failed", zap.String("email", email), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return res, true
}

func (f *Flow) store(ctx context.Context, level model.Level, email string, res *model.VerificationResult) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Set(ctx, level, email, res); err != nil {
		zap.L().Warn("single: cache write failed", zap.String("email", email), zap.Error(err))
	}
}

// pruneLocked drops expired plans and stale checks.
func (f *Flow) pruneLocked() {
	now := f.now()
	for token, plan := range f.plans {
		if now.After(plan.ExpiresAt) {
			delete(f.plans, token)
		}
	}
	for email, at := range f.checks {
		if now.Sub(at) > f.ttl {
			delete(f.checks, email)
		}
	}
}
