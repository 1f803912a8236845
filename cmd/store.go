package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

// initStore opens the persistence backend named by the config.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "roadwatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres store requires a connection string (ROADWATCH_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCatalog opens the store, applies migrations and rebuilds the spatial
// indexes from the persisted rows. The caller owns closing the store.
func initCatalog(ctx context.Context) (*catalog.Catalog, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	pol, err := catalog.LoadPolicy(cfg.Policy.Path)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	cat := catalog.New(st, pol)
	if err := cat.Rebuild(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return cat, st, nil
}
