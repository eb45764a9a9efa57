package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/checkup-extractor/internal/common"
	"github.com/joseph-ayodele/checkup-extractor/internal/redis"
)

// OpenStore builds the record store named by cfg.Database.Driver and makes
// sure its schema exists. The returned func releases the connections.
func OpenStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (HealthRecordRepository, func(), error) {
	switch cfg.Database.Driver {
	case "postgres":
		drv, pool, err := OpenPostgres(ctx, Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		store := NewSQLStore(drv, logger)
		if err := store.Migrate(ctx); err != nil {
			Close(drv, pool, logger)
			return nil, nil, err
		}
		return store, func() { Close(drv, pool, logger) }, nil

	case "sqlite":
		drv, err := OpenSQLite(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		store := NewSQLStore(drv, logger)
		if err := store.Migrate(ctx); err != nil {
			Close(drv, nil, logger)
			return nil, nil, err
		}
		return store, func() { Close(drv, nil, logger) }, nil

	case "redis":
		client, err := redis.NewClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			return nil, nil, err
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		return NewRedisStore(client, logger), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Database.Driver)
}
