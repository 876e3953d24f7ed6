package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idlink/internal/core"
)

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenCols = `token_hash, source_id, target_id, relationship_type, status,
	metadata, created_at, expires_at, use_count, last_used_at`

func scanToken(row rowScanner) (*core.Token, error) {
	var rec core.Token
	var status string
	var meta []byte
	if err := row.Scan(&rec.Hash, &rec.SourceID, &rec.TargetID, &rec.RelationshipType,
		&status, &meta, &rec.CreatedAt, &rec.ExpiresAt, &rec.UseCount, &rec.LastUsedAt); err != nil {
		return nil, mapErr(err)
	}
	rec.Status = core.TokenStatus(status)
	rec.Metadata = metaFromJSON(meta)
	return &rec, nil
}

func (r *tokenRepo) Create(ctx context.Context, t *core.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO link_token (`+tokenCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.Hash, t.SourceID, t.TargetID, t.RelationshipType, string(t.Status),
		metaJSON(t.Metadata), t.CreatedAt, t.ExpiresAt, t.UseCount, t.LastUsedAt)
	return mapErr(err)
}

func (r *tokenRepo) GetByHash(ctx context.Context, hash string) (*core.Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tokenCols+` FROM link_token WHERE token_hash = $1`, hash)
	return scanToken(row)
}

func (r *tokenRepo) Update(ctx context.Context, t *core.Token) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE link_token
		SET status = $2, metadata = $3, expires_at = $4, use_count = $5, last_used_at = $6
		WHERE token_hash = $1`,
		t.Hash, string(t.Status), metaJSON(t.Metadata), t.ExpiresAt, t.UseCount, t.LastUsedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *tokenRepo) SetStatus(ctx context.Context, hash string, from []core.TokenStatus, to core.TokenStatus) (bool, error) {
	fromStr := make([]string, len(from))
	for i, f := range from {
		fromStr[i] = string(f)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE link_token SET status = $2
		WHERE token_hash = $1 AND status = ANY($3)`,
		hash, string(to), fromStr)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *tokenRepo) ListExpirable(ctx context.Context, cutoff time.Time) ([]core.Token, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tokenCols+` FROM link_token
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at ASC`, cutoff)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectTokens(rows)
}

func (r *tokenRepo) ListByIdentity(ctx context.Context, identityID string) ([]core.Token, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tokenCols+` FROM link_token
		WHERE source_id = $1 OR target_id = $1`, identityID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	return collectTokens(rows)
}

func collectTokens(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]core.Token, error) {
	out := make([]core.Token, 0)
	for rows.Next() {
		rec, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, mapErr(rows.Err())
}

func (r *tokenRepo) DeleteByIdentity(ctx context.Context, identityID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM link_token WHERE source_id = $1 OR target_id = $1`, identityID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *tokenRepo) CountByStatus(ctx context.Context) (map[core.TokenStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM link_token GROUP BY status`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := map[core.TokenStatus]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, mapErr(err)
		}
		out[core.TokenStatus(status)] = n
	}
	return out, mapErr(rows.Err())
}
