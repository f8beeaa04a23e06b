// Package daemon wires the configured backends into the running bpxd process:
// persistence, the upstream release source, the sync and submission services,
// the HTTP API server and the scheduled bulk sync loop.
package daemon

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bpx-store/bpxd/internal/artifact"
	"github.com/bpx-store/bpxd/internal/changelog"
	"github.com/bpx-store/bpxd/internal/config"
	"github.com/bpx-store/bpxd/internal/contracts"
	"github.com/bpx-store/bpxd/internal/ratelimit"
	"github.com/bpx-store/bpxd/internal/store"
	"github.com/bpx-store/bpxd/internal/submission"
	"github.com/bpx-store/bpxd/internal/syncer"
	"github.com/bpx-store/bpxd/internal/upstream"
)

// Daemon owns the wired services and runs them until its context is canceled.
// NewDaemon should be used to create instances of Daemon.
type Daemon struct {
	logger       hclog.Logger
	apiServer    *APIServer
	syncService  contracts.SyncService
	syncInterval time.Duration
	pool         *pgxpool.Pool
}

// NewDaemon builds the full service graph from the loaded configuration.
// The returned daemon holds the Postgres pool (when configured) and closes it
// on shutdown.
func NewDaemon(ctx context.Context, logger hclog.Logger, cfg *config.Config) (*Daemon, error) {
	if logger == nil || reflect.ValueOf(logger).IsNil() {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	b, err := newBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backoff, err := upstream.NewBackoffPolicy(cfg.Sync.MaxAttempts, cfg.Sync.BaseDelay.Std(), cfg.Sync.MaxDelay.Std())
	if err != nil {
		b.close()
		return nil, err
	}

	sourceOpts := []upstream.Option{
		upstream.WithMaxPages(cfg.Sync.MaxPages),
		upstream.WithBackoff(backoff),
	}
	if cfg.GitHub.Token != "" {
		sourceOpts = append(sourceOpts, upstream.WithToken(cfg.GitHub.Token))
	}
	if cfg.GitHub.BaseURL != "" {
		sourceOpts = append(sourceOpts, upstream.WithBaseURL(cfg.GitHub.BaseURL))
	}
	source, err := upstream.NewClient(logger, sourceOpts...)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("failed to create release source: %w", err)
	}

	artifacts, err := artifact.NewFetcher(logger, artifact.WithMaxSizeBytes(cfg.Sync.MaxArtifactBytes))
	if err != nil {
		b.close()
		return nil, fmt.Errorf("failed to create artifact fetcher: %w", err)
	}

	sanitizer := changelog.NewSanitizer()

	syncService, err := syncer.NewSyncer(
		syncer.Dependencies{
			Logger:    logger,
			Store:     b.extensions,
			Source:    source,
			Artifacts: artifacts,
			Sanitizer: sanitizer,
		},
		syncer.WithWorkers(cfg.Sync.Workers),
		syncer.WithBulkBudget(cfg.Sync.BulkBudget.Std()),
	)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("failed to create sync service: %w", err)
	}

	reviewer, err := submission.NewService(submission.Dependencies{
		Logger:      logger,
		Submissions: b.submissions,
		Source:      source,
		Artifacts:   artifacts,
		Sanitizer:   sanitizer,
	})
	if err != nil {
		b.close()
		return nil, fmt.Errorf("failed to create submission service: %w", err)
	}

	deps, err := NewAPIDependencies(logger, syncService, reviewer, b.limiter, cfg.API.Addr)
	if err != nil {
		b.close()
		return nil, err
	}

	apiServer, err := NewAPIServer(
		deps,
		WithCORSEnabled(len(cfg.API.CORSOrigins) > 0),
		WithCORSAllowOrigins(cfg.API.CORSOrigins),
		WithAdminToken(cfg.Admin.Token),
		WithRateLimits(cfg.Limits.SyncPerHour, cfg.Limits.SubmissionsPerHour),
	)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	return &Daemon{
		logger:       logger.Named("daemon"),
		apiServer:    apiServer,
		syncService:  syncService,
		syncInterval: cfg.Sync.Interval.Std(),
		pool:         b.pool,
	}, nil
}

// backends groups the persistence implementations behind the store driver.
type backends struct {
	extensions  contracts.ExtensionStore
	submissions contracts.SubmissionStore
	limiter     contracts.RateLimiter
	pool        *pgxpool.Pool
}

func (b *backends) close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func newBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		pg, err := store.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}

		limiter, err := ratelimit.NewPostgresLimiter(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := limiter.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}

		return &backends{extensions: pg, submissions: pg, limiter: limiter, pool: pool}, nil
	default:
		mem := store.NewMemoryStore()
		return &backends{
			extensions:  mem,
			submissions: mem,
			limiter:     ratelimit.NewMemoryLimiter(),
		}, nil
	}
}

// StartAndManage runs the API server and the scheduled bulk sync loop until
// the context is canceled, then releases the backends.
func (d *Daemon) StartAndManage(ctx context.Context) error {
	defer func() {
		if d.pool != nil {
			d.pool.Close()
		}
	}()

	if d.syncInterval > 0 {
		go d.scheduledSyncLoop(ctx)
	} else {
		d.logger.Info("Scheduled sync disabled")
	}

	return d.apiServer.Start(ctx)
}

// scheduledSyncLoop triggers a bulk sync every interval. The first run waits
// a full interval so a restart loop cannot hammer the release host.
func (d *Daemon) scheduledSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(d.syncInterval)
	defer ticker.Stop()

	d.logger.Info("Scheduled sync enabled", "interval", d.syncInterval)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Stopping scheduled sync")
			return
		case <-ticker.C:
			if _, err := d.syncService.SyncAll(ctx); err != nil {
				d.logger.Error("Scheduled sync failed", "error", err)
			}
		}
	}
}
