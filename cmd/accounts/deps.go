package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/demopark/accounts/internal/core/ports"
	"github.com/demopark/accounts/internal/infrastructure/config"
	mongodb "github.com/demopark/accounts/internal/infrastructure/db/mongo"
	"github.com/demopark/accounts/internal/infrastructure/db/postgres"
	redisdb "github.com/demopark/accounts/internal/infrastructure/db/redis"
	"github.com/demopark/accounts/internal/infrastructure/db/sqlite"
)

// openStore connects the account store selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.AccountRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			URL:      cfg.Postgres.URL,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Msg("connected to postgres")
		return postgres.NewAccountRepository(pool), nil

	case config.DriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.SQLite.Path).Msg("opened sqlite database")
		return repo, nil

	case config.DriverMongo:
		client, db, err := mongodb.Connect(ctx, mongodb.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		repo := mongodb.NewAccountRepository(client, db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = repo.Close(ctx)
			return nil, err
		}
		log.Info().Str("driver", cfg.StoreDriver).Str("database", cfg.Mongo.Database).Msg("connected to mongo")
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// openRoleCache returns nil, nil when REDIS_ADDR is unset.
func openRoleCache(ctx context.Context, cfg *config.Config) (*redisdb.RoleCache, *goredis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, nil, nil
	}
	client, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		return nil, nil, err
	}
	return redisdb.NewRoleCache(client, cfg.Redis.RoleTTL), client, nil
}
