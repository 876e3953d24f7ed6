package store

import (
	"context"
	"fmt"
	"strings"
)

// Config selecciona driver y parámetros de conexión.
type Config struct {
	Driver string
	FS     struct{ Root string }
	DSN    string
	Postgres struct {
		MaxOpenConns    int
		MinConns        int
		ConnMaxLifetime string
	}
}

// Open resuelve el adapter por nombre de driver y conecta.
// Los adapters se registran vía blank import del paquete correspondiente.
func Open(ctx context.Context, cfg Config) (Connection, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch name {
	case "", "fs", "file", "filesystem":
		name = "fs"
	case "postgres", "pg", "postgresql":
		name = "postgres"
	}

	a, ok := GetAdapter(name)
	if !ok {
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	ac := AdapterConfig{FSRoot: cfg.FS.Root, DSN: cfg.DSN}
	ac.Postgres.MaxOpenConns = cfg.Postgres.MaxOpenConns
	ac.Postgres.MinConns = cfg.Postgres.MinConns
	ac.Postgres.ConnMaxLifetime = cfg.Postgres.ConnMaxLifetime

	return a.Connect(ctx, ac)
}
