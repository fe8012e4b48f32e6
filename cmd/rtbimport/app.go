package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/rtb-ingest/internal/accounts"
	"github.com/ignite/rtb-ingest/internal/config"
	"github.com/ignite/rtb-ingest/internal/ingest"
	"github.com/ignite/rtb-ingest/internal/pkg/distlock"
	"github.com/ignite/rtb-ingest/internal/pkg/logger"
	"github.com/ignite/rtb-ingest/internal/repository/postgres"
	"github.com/ignite/rtb-ingest/internal/storage"
)

// app holds the lazily opened connections shared by subcommands.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	redis *redis.Client
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	if a.cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	db.SetMaxOpenConns(a.cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(a.cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(a.cfg.Database.ConnLifetime())
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	logger.Debug("connected to database", "database_url", a.cfg.Database.URL)
	a.db = db
	return db, nil
}

// openRedis returns nil when Redis is not configured.
func (a *app) openRedis(ctx context.Context) (*redis.Client, error) {
	if a.redis != nil || !a.cfg.Redis.Enabled() {
		return a.redis, nil
	}
	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	a.redis = client
	return client, nil
}

func (a *app) close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) mapper(ctx context.Context) (*accounts.Mapper, error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	return accounts.NewMapper(ctx, postgres.NewPretargetingRepo(db))
}

// orchestrator wires the import pipeline. Account attribution, progress and
// locking are optional and degrade with a warning.
func (a *app) orchestrator(ctx context.Context) (*ingest.Orchestrator, error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	deps := ingest.Deps{
		Store:   postgres.NewRowStore(db),
		History: postgres.NewHistoryRepo(db),
	}

	if m, err := a.mapper(ctx); err != nil {
		logger.Warn("account mapping unavailable, bidder ids will not be inferred", "error", err)
	} else {
		deps.Accounts = m
	}

	var cmdable redis.Cmdable
	client, err := a.openRedis(ctx)
	if err != nil {
		logger.Warn("redis unavailable, progress will not be published", "error", err)
	} else if client != nil {
		cmdable = client
		deps.Progress = ingest.NewRedisProgress(client, a.cfg.Import.ProgressTTL())
	}

	var opts []ingest.OrchestratorOption
	if a.cfg.Import.LockEnabled {
		ttl := a.cfg.Import.LockTTL()
		opts = append(opts, ingest.WithLocker(func(table string) distlock.DistLock {
			return distlock.NewLock(cmdable, db, distlock.ImportKey(table), ttl)
		}))
	}
	return ingest.NewOrchestrator(deps, opts...), nil
}

// fetcher returns an S3 fetcher only when a source needs one, so local
// imports never touch AWS configuration.
func (a *app) fetcher(ctx context.Context, sources []string) (*storage.Fetcher, error) {
	for _, src := range sources {
		if storage.IsS3URI(src) {
			return storage.NewS3Fetcher(ctx, a.cfg.S3.Region, a.cfg.S3.AWSProfile, a.cfg.S3.TempDir)
		}
	}
	return storage.NewFetcher(nil, a.cfg.S3.TempDir), nil
}

func (a *app) pushMetrics() {
	url := a.cfg.Metrics.PushgatewayURL
	if url == "" {
		return
	}
	err := push.New(url, a.cfg.Metrics.Job).Gatherer(prometheus.DefaultGatherer).Push()
	if err != nil {
		logger.Warn("metrics push failed", "pushgateway_url", url, "error", err)
	}
}
