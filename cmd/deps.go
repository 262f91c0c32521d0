package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/cache"
	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/internal/single"
	"github.com/sells-group/verify-cli/internal/store"
	"github.com/sells-group/verify-cli/internal/workflow"
	"github.com/sells-group/verify-cli/pkg/verifier"
)

func initClient() verifier.Client {
	return verifier.NewClient(cfg.Verifier.APIKey,
		verifier.WithBaseURL(cfg.Verifier.BaseURL),
		verifier.WithHTTPClient(&http.Client{Timeout: cfg.Verifier.Timeout()}),
		verifier.WithRateLimit(cfg.Verifier.RateLimit),
	)
}

// initStore opens the configured session store. Driver "none" returns a nil
// Store and no error.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "verify.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that only read history.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("session history is disabled (store.driver=none)")
	}
	return st, nil
}

// initCache dials Redis when cache.redis_addr is set. A cache that cannot be
// reached is logged and skipped.
func initCache(ctx context.Context) *cache.RedisCache {
	if cfg.Cache.RedisAddr == "" {
		return nil
	}
	c, err := cache.Dial(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL())
	if err != nil {
		zap.L().Warn("single-check cache unavailable", zap.Error(err))
		return nil
	}
	return c
}

func initFlow(client verifier.Client, c *cache.RedisCache) *single.Flow {
	opts := []single.Option{single.WithConfirmTTL(cfg.Single.ConfirmTTL())}
	if c != nil {
		opts = append(opts, single.WithCache(c))
	}
	return single.NewFlow(client, opts...)
}

func workflowConfig() workflow.Config {
	wc := workflow.DefaultConfig()
	wc.PollInterval = cfg.Poll.Interval()
	wc.MaxPollErrors = cfg.Poll.MaxErrors
	wc.FetchLimit = cfg.Results.FetchLimit
	wc.SoftLimit = cfg.Results.SoftLimit
	wc.FetchRetry = resilience.FromSettings(cfg.Results.FetchRetry.MaxAttempts, cfg.Results.FetchRetry.InitialBackoffMs)
	return wc
}

func initOrchestrator(client verifier.Client, st store.Store) *workflow.Orchestrator {
	var opts []workflow.Option
	if st != nil {
		opts = append(opts, workflow.WithStore(st))
	}
	return workflow.New(client, workflowConfig(), opts...)
}
