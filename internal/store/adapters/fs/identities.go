package fs

import (
	"context"
	"sort"

	"github.com/dropDatabas3/idlink/internal/core"
)

type identityRepo struct{ conn *fsConnection }

// identitiesDoc es el formato del archivo identities.yaml.
type identitiesDoc struct {
	Identities map[string]core.Identity `yaml:"identities"`
}

func (r *identityRepo) load() (*identitiesDoc, error) {
	doc := &identitiesDoc{}
	if err := loadYAML(r.conn.identitiesFile(), doc); err != nil {
		return nil, err
	}
	if doc.Identities == nil {
		doc.Identities = map[string]core.Identity{}
	}
	return doc, nil
}

func (r *identityRepo) save(doc *identitiesDoc) error {
	return saveYAML(r.conn.identitiesFile(), doc)
}

func (r *identityRepo) Create(ctx context.Context, id *core.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, exists := doc.Identities[id.ID]; exists {
		return core.ErrConflict
	}
	doc.Identities[id.ID] = *id
	return r.save(doc)
}

func (r *identityRepo) Get(ctx context.Context, id string) (*core.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Identities[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &rec, nil
}

func (r *identityRepo) Update(ctx context.Context, id *core.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Identities[id.ID]; !ok {
		return core.ErrNotFound
	}
	doc.Identities[id.ID] = *id
	return r.save(doc)
}

func (r *identityRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Identities[id]; !ok {
		return core.ErrNotFound
	}
	delete(doc.Identities, id)
	return r.save(doc)
}

func (r *identityRepo) ListByKind(ctx context.Context, kind core.IDKind) ([]core.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Identity, 0)
	for _, rec := range doc.Identities {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	// created_at ascendente; desempate por ID para orden estable
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *identityRepo) Count(ctx context.Context) (int64, map[core.IDKind]int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return 0, nil, err
	}
	byKind := map[core.IDKind]int64{}
	for _, rec := range doc.Identities {
		byKind[rec.Kind]++
	}
	return int64(len(doc.Identities)), byKind, nil
}
