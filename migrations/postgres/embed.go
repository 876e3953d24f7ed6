// Package migrations embebe los archivos SQL del esquema Postgres.
// El adapter pg los aplica en orden lexicográfico al conectar; cada
// statement es idempotente (IF NOT EXISTS).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
