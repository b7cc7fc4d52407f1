package trial

import (
	"context"
	"fmt"

	"trialcore/internal/infra/persistence/memory"
	"trialcore/internal/infra/persistence/postgres"
	"trialcore/internal/infra/persistence/sqlite"
	"trialcore/internal/persistence"
)

// StoreConfig selects a trial store backend.
type StoreConfig struct {
	Driver      persistence.Driver
	SQLitePath  string
	PostgresDSN string
}

// OpenStore opens the configured backend. An empty driver means sqlite.
func OpenStore(ctx context.Context, cfg StoreConfig) (persistence.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = persistence.DriverSQLite
	}
	switch driver {
	case persistence.DriverMemory:
		return memory.NewStore(), nil
	case persistence.DriverSQLite:
		s, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case persistence.DriverPostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
