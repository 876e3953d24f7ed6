package fs

import (
	"context"
	"sort"
	"time"

	"github.com/dropDatabas3/idlink/internal/core"
)

type tokenRepo struct{ conn *fsConnection }

// tokensDoc es el formato del archivo tokens.yaml, keyed por hash.
type tokensDoc struct {
	Tokens map[string]core.Token `yaml:"tokens"`
}

func (r *tokenRepo) load() (*tokensDoc, error) {
	doc := &tokensDoc{}
	if err := loadYAML(r.conn.tokensFile(), doc); err != nil {
		return nil, err
	}
	if doc.Tokens == nil {
		doc.Tokens = map[string]core.Token{}
	}
	return doc, nil
}

func (r *tokenRepo) save(doc *tokensDoc) error {
	return saveYAML(r.conn.tokensFile(), doc)
}

func (r *tokenRepo) Create(ctx context.Context, t *core.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, exists := doc.Tokens[t.Hash]; exists {
		return core.ErrConflict
	}
	doc.Tokens[t.Hash] = *t
	return r.save(doc)
}

func (r *tokenRepo) GetByHash(ctx context.Context, hash string) (*core.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Tokens[hash]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &rec, nil
}

func (r *tokenRepo) Update(ctx context.Context, t *core.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Tokens[t.Hash]; !ok {
		return core.ErrNotFound
	}
	doc.Tokens[t.Hash] = *t
	return r.save(doc)
}

func (r *tokenRepo) SetStatus(ctx context.Context, hash string, from []core.TokenStatus, to core.TokenStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.conn.mu.Lock()
	defer r.conn.mu.Unlock()

	doc, err := r.load()
	if err != nil {
		return false, err
	}
	rec, ok := doc.Tokens[hash]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if rec.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	rec.Status = to
	doc.Tokens[hash] = rec
	if err := r.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (r *tokenRepo) ListExpirable(ctx context.Context, cutoff time.Time) ([]core.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Token, 0)
	for _, rec := range doc.Tokens {
		if rec.Status == core.TokenActive && rec.ExpiresAt != nil && !rec.ExpiresAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

func (r *tokenRepo) ListByIdentity(ctx context.Context, identityID string) ([]core.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := make([]core.Token, 0)
	for _, rec := range doc.Tokens {
		if rec.SourceID == identityID || rec.TargetID == identityID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

func (r *tokenRepo) DeleteByIdentity(ctx context.Context, identityID string) (int64, error) {
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
	for hash, rec := range doc.Tokens {
		if rec.SourceID == identityID || rec.TargetID == identityID {
			delete(doc.Tokens, hash)
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

func (r *tokenRepo) CountByStatus(ctx context.Context) (map[core.TokenStatus]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.conn.mu.RLock()
	defer r.conn.mu.RUnlock()

	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	out := map[core.TokenStatus]int64{}
	for _, rec := range doc.Tokens {
		out[rec.Status]++
	}
	return out, nil
}
