package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/langchou/carnote/internal/config"
	"github.com/langchou/carnote/internal/consumption"
	"github.com/langchou/carnote/internal/lock"
	"github.com/langchou/carnote/internal/metrics"
	"github.com/langchou/carnote/internal/repository"
	"github.com/langchou/carnote/internal/repository/sqlite"
	"github.com/langchou/carnote/internal/service"
	"github.com/langchou/carnote/internal/store"
	"github.com/langchou/carnote/pkg/ws"
)

// app 组装好的运行时依赖
type app struct {
	store  store.Store
	redis  *redis.Client
	hub    *ws.Hub
	svc    *service.EnergyService
	logger *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{store: st, logger: logger}

	locker, err := a.newLocker(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := consumption.ParseRegressionPolicy(cfg.RegressionPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}
	sink, err := metrics.NewPromSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	engine := consumption.NewEngine(logger.Named("consumption"),
		consumption.WithRegressionPolicy(policy),
		consumption.WithObserver(sink),
	)

	// 创建 WebSocket Hub
	a.hub = ws.NewHub(logger.Named("ws"))
	a.svc = service.NewEnergyService(st, locker, engine, a.hub, logger.Named("service"))
	return a, nil
}

// openStore 按 DB_TYPE 打开存储并执行迁移
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.DBType {
	case config.DBTypePostgres:
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("Database migrated successfully", zap.String("db_type", cfg.DBType))
		return repository.NewStore(db), nil

	case config.DBTypeSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("Database migrated successfully",
			zap.String("db_type", cfg.DBType),
			zap.String("path", cfg.SQLitePath))
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", cfg.DBType)
	}
}

func (a *app) newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, error) {
	if cfg.LockBackend != config.LockBackendRedis {
		return lock.NewKeyedMutex(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.logger.Info("Using redis vehicle lock", zap.String("addr", cfg.RedisAddr))

	return lock.NewRedisLocker(a.redis,
		lock.WithTTL(cfg.LockTTL),
		lock.WithReleaseErrorHandler(func(vehicleID int64, err error) {
			a.logger.Warn("Failed to release vehicle lock",
				zap.Int64("vehicle_id", vehicleID),
				zap.Error(err))
		}),
	), nil
}

// Close 释放存储与 Redis 连接
func (a *app) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
