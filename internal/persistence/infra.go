package persistence

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/repository"
)

// Infra holds the backing services a process runs against.
type Infra struct {
	Postgres *Postgres
	Redis    *Redis
	Store    repository.Store
	// Locker is nil when Redis is disabled.
	Locker *RequestLocker
}

// Open connects to Postgres and Redis. Without a DSN the store is in-memory.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Infra, error) {
	pg, err := NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	infra := &Infra{Postgres: pg, Redis: NewRedis(cfg.Redis, logger)}

	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				infra.Close()
				return nil, err
			}
		}
		infra.Store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		infra.Store = repository.NewMemoryStore()
	}

	if infra.Redis.Enabled() {
		infra.Locker = NewRequestLocker(infra.Redis.Client, cfg.Lifecycle.LockTTL())
	}
	return infra, nil
}

// Close releases every connection.
func (i *Infra) Close() {
	i.Redis.Close()
	i.Postgres.Close()
}
