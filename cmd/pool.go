package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cjdb-export/internal/tileindex"
)

// dbPool creates the PostGIS connection pool from the loaded config.
func dbPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Database.URL
	if dsn == "" {
		return nil, eris.New("no database url configured (set database.url or CJDB_DATABASE_URL)")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "parse database url")
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	if cfg.Database.MinConns > 0 {
		poolCfg.MinConns = cfg.Database.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}

	fmt.Println("Connected to database")
	return pool, nil
}

// indexTable returns the configured tile index table reference.
func indexTable() tileindex.TableRef {
	return tileindex.TableRef{Schema: cfg.TileIndex.Schema, Table: cfg.TileIndex.Table}
}
