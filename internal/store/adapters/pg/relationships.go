package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/idlink/internal/core"
)

type relationshipRepo struct{ pool *pgxpool.Pool }

const relCols = `source_id, target_id, relationship_type, origin_token_hash,
	status, created_at, updated_at`

func scanRelationship(row rowScanner) (*core.Relationship, error) {
	var rec core.Relationship
	var status string
	if err := row.Scan(&rec.SourceID, &rec.TargetID, &rec.RelationshipType,
		&rec.OriginTokenHash, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	rec.Status = core.RelationshipStatus(status)
	return &rec, nil
}

func (r *relationshipRepo) Upsert(ctx context.Context, rel *core.Relationship) (*core.Relationship, bool, error) {
	// ON CONFLICT re-afirma: preserva created_at, refresca el resto.
	// xmax = 0 distingue INSERT real de UPDATE por conflicto.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO relationship (`+relCols+`)
		VALUES ($1, $2, $3, $4, 'active', $5, $6)
		ON CONFLICT (source_id, target_id, relationship_type) DO UPDATE
		SET origin_token_hash = EXCLUDED.origin_token_hash,
		    status = 'active',
		    updated_at = EXCLUDED.updated_at
		RETURNING `+relCols+`, (xmax = 0) AS inserted`,
		rel.SourceID, rel.TargetID, rel.RelationshipType, rel.OriginTokenHash,
		rel.CreatedAt, rel.UpdatedAt)

	var rec core.Relationship
	var status string
	var inserted bool
	if err := row.Scan(&rec.SourceID, &rec.TargetID, &rec.RelationshipType,
		&rec.OriginTokenHash, &status, &rec.CreatedAt, &rec.UpdatedAt, &inserted); err != nil {
		return nil, false, mapErr(err)
	}
	rec.Status = core.RelationshipStatus(status)
	return &rec, inserted, nil
}

func (r *relationshipRepo) Get(ctx context.Context, sourceID, targetID, relType string) (*core.Relationship, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+relCols+` FROM relationship
		WHERE source_id = $1 AND target_id = $2 AND relationship_type = $3`,
		sourceID, targetID, relType)
	return scanRelationship(row)
}

func (r *relationshipRepo) SetStatus(ctx context.Context, sourceID, targetID, relType string, st core.RelationshipStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE relationship SET status = $4, updated_at = now()
		WHERE source_id = $1 AND target_id = $2 AND relationship_type = $3
		  AND status <> $4`,
		sourceID, targetID, relType, string(st))
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *relationshipRepo) ListFrom(ctx context.Context, sourceID string) ([]core.Relationship, error) {
	return r.list(ctx, `
		SELECT `+relCols+` FROM relationship
		WHERE source_id = $1 AND status = 'active'
		ORDER BY created_at DESC`, sourceID)
}

func (r *relationshipRepo) ListTo(ctx context.Context, targetID string) ([]core.Relationship, error) {
	return r.list(ctx, `
		SELECT `+relCols+` FROM relationship
		WHERE target_id = $1 AND status = 'active'
		ORDER BY created_at DESC`, targetID)
}

func (r *relationshipRepo) ListByType(ctx context.Context, relType string) ([]core.Relationship, error) {
	return r.list(ctx, `
		SELECT `+relCols+` FROM relationship
		WHERE relationship_type = $1 AND status = 'active'
		ORDER BY created_at DESC`, relType)
}

func (r *relationshipRepo) ListByIdentity(ctx context.Context, identityID string) ([]core.Relationship, error) {
	return r.list(ctx, `
		SELECT `+relCols+` FROM relationship
		WHERE source_id = $1 OR target_id = $1`, identityID)
}

func (r *relationshipRepo) list(ctx context.Context, q string, arg any) ([]core.Relationship, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]core.Relationship, 0)
	for rows.Next() {
		rec, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, mapErr(rows.Err())
}

func (r *relationshipRepo) DeleteByIdentity(ctx context.Context, identityID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM relationship WHERE source_id = $1 OR target_id = $1`, identityID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *relationshipRepo) CountActive(ctx context.Context) (int64, map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT relationship_type, COUNT(*) FROM relationship
		WHERE status = 'active' GROUP BY relationship_type`)
	if err != nil {
		return 0, nil, mapErr(err)
	}
	defer rows.Close()

	var total int64
	byType := map[string]int64{}
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return 0, nil, mapErr(err)
		}
		byType[typ] = n
		total += n
	}
	return total, byType, mapErr(rows.Err())
}
