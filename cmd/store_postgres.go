package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mission-sync/internal/config"
	"github.com/sells-group/mission-sync/internal/enrich"
	"github.com/sells-group/mission-sync/internal/feed"
	"github.com/sells-group/mission-sync/internal/importer"
	"github.com/sells-group/mission-sync/internal/moderation"
	"github.com/sells-group/mission-sync/internal/resilience"
	"github.com/sells-group/mission-sync/internal/store"
	"github.com/sells-group/mission-sync/internal/writer"
)

// initStore validates cfg for mode and opens the Postgres store.
func initStore(ctx context.Context, mode string) (*store.Postgres, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// newGuard builds the retry and circuit policy shared by one gateway.
func newGuard(name string, c *config.Config) resilience.Guard {
	breakerCfg := resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("circuit state changed",
			zap.String("gateway", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	retry := resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger(name, "search")
	return resilience.Guard{
		Breaker: resilience.NewCircuitBreaker(breakerCfg),
		Retry:   retry,
	}
}

// buildDeps wires the import collaborators from configuration. The geocoder
// and verifier are left nil when disabled.
func buildDeps(c *config.Config, st *store.Postgres, reg prometheus.Registerer) (importer.Deps, error) {
	policies, err := moderation.LoadPolicies(c.Import.PolicyFile)
	if err != nil {
		return importer.Deps{}, eris.Wrap(err, "load publisher policies")
	}

	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second
	deps := importer.Deps{
		Store:   st,
		Imports: store.NewImportLog(st.Pool()),
		Fetcher: feed.NewFetcher(
			feed.HTTPOptions{
				UserAgent:  c.Fetch.UserAgent,
				Timeout:    timeout,
				MaxRetries: c.Fetch.MaxRetries,
				RatePerSec: c.Fetch.RatePerSec,
			},
			feed.FTPOptions{Timeout: timeout},
		),
		Parser:   feed.NewXMLParser(),
		Policies: policies,
	}
	if reg != nil {
		deps.Metrics = importer.NewMetrics(reg)
	}
	if c.Geocode.Enabled {
		deps.Geocoder = enrich.NewBANGeocoder(enrich.GeocoderOptions{
			BaseURL:     c.Geocode.BaseURL,
			Timeout:     c.Geocode.Timeout(),
			Concurrency: c.Geocode.Concurrency,
			Guard:       newGuard("geocode", c),
		})
	}
	if c.Verify.Enabled {
		deps.Verifier = enrich.NewRegistryVerifier(enrich.VerifierOptions{
			BaseURL:     c.Verify.BaseURL,
			Timeout:     c.Verify.Timeout(),
			Concurrency: c.Verify.Concurrency,
			Guard:       newGuard("verify", c),
		})
	}
	return deps, nil
}

// importOptions maps configuration onto orchestrator options.
func importOptions(c *config.Config) importer.Options {
	return importer.Options{
		ChunkSize:     c.Import.ChunkSize,
		Concurrency:   c.Import.Concurrency,
		LeaseTTL:      c.Import.LeaseTTL(),
		CleanupWindow: c.Import.CleanupWindow(),
		Writer: writer.Options{
			CreateBatchSize: c.Import.CreateBatchSize,
			UpdateBatchSize: c.Import.UpdateBatchSize,
			EventBatchSize:  c.Import.EventBatchSize,
		},
	}
}
