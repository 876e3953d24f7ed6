// Package pg implementa el adapter Postgres sobre pgx/v5. Hace bootstrap
// del esquema al conectar; la atomicidad por registro la dan las queries
// individuales (upserts ON CONFLICT, updates condicionales).
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/store"
	migrations "github.com/dropDatabas3/idlink/migrations/postgres"
)

func init() {
	store.RegisterAdapter(&pgAdapter{})
}

type pgAdapter struct{}

func (a *pgAdapter) Name() string { return "postgres" }

func (a *pgAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	if cfg.Postgres.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	}
	if cfg.Postgres.MinConns > 0 {
		pcfg.MinConns = int32(cfg.Postgres.MinConns)
	}
	if cfg.Postgres.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.Postgres.ConnMaxLifetime); err == nil {
			pcfg.MaxConnLifetime = d
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}

	c := &pgConnection{pool: pool}
	if err := c.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

type pgConnection struct{ pool *pgxpool.Pool }

func (c *pgConnection) Name() string { return "postgres" }

func (c *pgConnection) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *pgConnection) Close() error {
	c.pool.Close()
	return nil
}

func (c *pgConnection) Identities() store.IdentityRepository {
	return &identityRepo{pool: c.pool}
}

func (c *pgConnection) Tokens() store.TokenRepository {
	return &tokenRepo{pool: c.pool}
}

func (c *pgConnection) Relationships() store.RelationshipRepository {
	return &relationshipRepo{pool: c.pool}
}

// ensureSchema aplica las migraciones SQL embebidas, en orden
// lexicográfico. Todo statement es idempotente (IF NOT EXISTS), así que
// conectar dos veces es seguro.
func (c *pgConnection) ensureSchema(ctx context.Context) error {
	entries, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("pg: list migrations: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		// Un statement por Exec: pgx usa extended protocol
		for _, stmt := range strings.Split(string(b), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := c.pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("pg: apply %s: %w", name, err)
			}
		}
	}
	return nil
}

// mapErr traduce errores de pgx a la taxonomía del core.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return core.ErrConflict
	}
	return err
}
