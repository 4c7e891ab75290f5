package main

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/pthm/m2m/internal/cli"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/host/pghost"
	"github.com/pthm/m2m/pkg/schema"
)

// env is what a database command works with.
type env struct {
	db           *sqlx.DB
	catalog      schema.Catalog
	host         *pghost.Host
	localization host.Localization
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}

func openEnv(ctx context.Context, flagDSN string) (*env, error) {
	dsn, err := resolveDSN(flagDSN)
	if err != nil {
		return nil, err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, cli.ConfigError("table prefix", err)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, cli.DBConnectError("connecting to database", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cli.DBConnectError("connecting to database", err)
	}

	h := pghost.New(db, catalog, pghost.WithLogger(logger))
	e := &env{db: db, catalog: catalog, host: h, localization: host.NoLocalization{}}
	if cfg.Localization.Active {
		e.localization = pghost.NewLocalization(h, cfg.LanguageConfig())
	}
	return e, nil
}

func (e *env) Close() {
	_ = e.db.Close()
}
