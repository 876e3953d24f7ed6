package pg

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idlink/internal/core"
)

type identityRepo struct{ pool *pgxpool.Pool }

func metaJSON(m map[string]any) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func metaFromJSON(b []byte) map[string]any {
	if len(b) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func (r *identityRepo) Create(ctx context.Context, id *core.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identity (id, kind, metadata, created_at, last_accessed_at, access_count)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id.ID, string(id.Kind), metaJSON(id.Metadata), id.CreatedAt, id.LastAccessedAt, id.AccessCount)
	return mapErr(err)
}

func (r *identityRepo) Get(ctx context.Context, id string) (*core.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, kind, metadata, created_at, last_accessed_at, access_count
		FROM identity WHERE id = $1`, id)
	return scanIdentity(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanIdentity(row rowScanner) (*core.Identity, error) {
	var rec core.Identity
	var kind string
	var meta []byte
	if err := row.Scan(&rec.ID, &kind, &meta, &rec.CreatedAt, &rec.LastAccessedAt, &rec.AccessCount); err != nil {
		return nil, mapErr(err)
	}
	rec.Kind = core.IDKind(kind)
	rec.Metadata = metaFromJSON(meta)
	return &rec, nil
}

func (r *identityRepo) Update(ctx context.Context, id *core.Identity) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE identity
		SET kind = $2, metadata = $3, last_accessed_at = $4, access_count = $5
		WHERE id = $1`,
		id.ID, string(id.Kind), metaJSON(id.Metadata), id.LastAccessedAt, id.AccessCount)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *identityRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identity WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *identityRepo) ListByKind(ctx context.Context, kind core.IDKind) ([]core.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, metadata, created_at, last_accessed_at, access_count
		FROM identity WHERE kind = $1
		ORDER BY created_at ASC, id ASC`, string(kind))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]core.Identity, 0)
	for rows.Next() {
		rec, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, mapErr(rows.Err())
}

func (r *identityRepo) Count(ctx context.Context) (int64, map[core.IDKind]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT kind, COUNT(*) FROM identity GROUP BY kind`)
	if err != nil {
		return 0, nil, mapErr(err)
	}
	defer rows.Close()

	var total int64
	byKind := map[core.IDKind]int64{}
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return 0, nil, mapErr(err)
		}
		byKind[core.IDKind(kind)] = n
		total += n
	}
	return total, byKind, mapErr(rows.Err())
}
