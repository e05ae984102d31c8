package database

import (
	"context"

	"github.com/rs/zerolog"

	"examprep/backend/internal/config"
	"examprep/backend/internal/repository"
	"examprep/backend/internal/repository/memory"
)

// OpenStore returns the store selected by cfg.DSN and a func releasing it.
// config.MemoryDSN yields a process-local store that is lost on exit.
func OpenStore(ctx context.Context, cfg config.PostgresConfig, log zerolog.Logger) (repository.Store, func(), error) {
	if cfg.DSN == config.MemoryDSN {
		log.Warn().Msg("using in-memory store, data is not persisted")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info().Msg("schema migrations applied")
	}

	return repository.NewPostgresStore(pool), pool.Close, nil
}
