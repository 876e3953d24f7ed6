package fs

import (
	"context"
	"sort"

	"github.com/dropDatabas3/idlink/internal/core"
)

type relationshipRepo struct{ conn *fsConnection }

// relationshipsDoc es el formato del archivo relationships.yaml, keyed por
// "source|target|type". Los IDs son opacos pero nunca contienen '|' (los
// genera el service con uuid), así que la key compuesta es segura.
type relationshipsDoc struct {
	Relationships map[string]core.Relationship `yaml:"relationships"`
}

func relKey(sourceID, targetID, relType string) string {
	return sourceID + "|" + targetID + "|" + relType
}

func (r *relationshipRepo) load() (*relationshipsDoc, error) {
	doc := &relationshipsDoc{}
	if err := loadYAML(r.conn.relationshipsFile(), doc); err != nil {
		return nil, err
	}
	if doc.Relationships == nil {
		doc.Relationships = map[string]core.Relationship{}
	}
	return doc, nil
}

func (r *relationshipRepo) save(doc *relationshipsDoc) error {
	return saveYAML(r.conn.relationshipsFile(), doc)
}

func (r *relationshipRepo) Upsert(ctx context.Context, rel *core.Relationship) (*core.Relationship, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return nil, false, err
	}

	key := relKey(rel.SourceID, rel.TargetID, rel.RelationshipType)
	existing, exists := doc.Relationships[key]

	out := *rel
	created := !exists
	if exists {
		// Re-afirmación: preservar created_at, refrescar el resto
		out.CreatedAt = existing.CreatedAt
	}
	out.Status = core.RelationshipActive
	doc.Relationships[key] = out

	if err := r.save(doc); err != nil {
		return nil, false, err
	}
	return &out, created, nil
}

func (r *relationshipRepo) Get(ctx context.Context, sourceID, targetID, relType string) (*core.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Relationships[relKey(sourceID, targetID, relType)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &rec, nil
}

func (r *relationshipRepo) SetStatus(ctx context.Context, sourceID, targetID, relType string, st core.RelationshipStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return false, err
	}
	key := relKey(sourceID, targetID, relType)
	rec, ok := doc.Relationships[key]
	if !ok || rec.Status == st {
		return false, nil
	}
	rec.Status = st
	doc.Relationships[key] = rec
	if err := r.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (r *relationshipRepo) ListFrom(ctx context.Context, sourceID string) ([]core.Relationship, error) {
	return r.listActive(ctx, func(rec core.Relationship) bool { return rec.SourceID == sourceID })
}

func (r *relationshipRepo) ListTo(ctx context.Context, targetID string) ([]core.Relationship, error) {
	return r.listActive(ctx, func(rec core.Relationship) bool { return rec.TargetID == targetID })
}

func (r *relationshipRepo) ListByType(ctx context.Context, relType string) ([]core.Relationship, error) {
	return r.listActive(ctx, func(rec core.Relationship) bool { return rec.RelationshipType == relType })
}

func (r *relationshipRepo) listActive(ctx context.Context, match func(core.Relationship) bool) ([]core.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Relationship, 0)
	for _, rec := range doc.Relationships {
		if rec.Status == core.RelationshipActive && match(rec) {
			out = append(out, rec)
		}
	}
	// created_at descendente (recency-first); desempate estable
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return relKey(out[i].SourceID, out[i].TargetID, out[i].RelationshipType) <
				relKey(out[j].SourceID, out[j].TargetID, out[j].RelationshipType)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *relationshipRepo) ListByIdentity(ctx context.Context, identityID string) ([]core.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Relationship, 0)
	for _, rec := range doc.Relationships {
		if rec.SourceID == identityID || rec.TargetID == identityID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *relationshipRepo) DeleteByIdentity(ctx context.Context, identityID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return 0, err
	}
	var n int64
	for key, rec := range doc.Relationships {
		if rec.SourceID == identityID || rec.TargetID == identityID {
			delete(doc.Relationships, key)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := r.save(doc); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *relationshipRepo) CountActive(ctx context.Context) (int64, map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return 0, nil, err
	}
	var total int64
	byType := map[string]int64{}
	for _, rec := range doc.Relationships {
		if rec.Status == core.RelationshipActive {
			total++
			byType[rec.RelationshipType]++
		}
	}
	return total, byType, nil
}
