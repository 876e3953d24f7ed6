package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	"github.com/dropDatabas3/idlink/internal/metrics"
	"github.com/dropDatabas3/idlink/internal/observability/logger"
)

// IdentityStore crea y resuelve identidades, y lleva el tracking de
// acceso (access_count, last_accessed_at) en cada lectura.
type IdentityStore struct{ s *Service }

// Create genera una identidad nueva con id "<kind>-<uuid4>".
// Falla con core.ErrInvalidKind si el kind no pertenece al set cerrado.
func (i *IdentityStore) Create(ctx context.Context, kind core.IDKind, metadata map[string]any) (*core.Identity, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}

	now := i.s.now()
	rec := &core.Identity{
		ID:             kind.Prefix() + "-" + uuid.NewString(),
		Kind:           kind,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	sctx, cancel := i.s.storeCtx(ctx)
	defer cancel()
	if err := i.s.conn.Identities().Create(sctx, rec); err != nil {
		return nil, i.s.storeErr("identity.create", err)
	}

	metrics.IdentitiesCreated.WithLabelValues(string(kind)).Inc()
	i.s.bus.Publish(events.Event{Type: events.IdentityCreated, IdentityID: rec.ID, Kind: string(kind)})
	i.s.log.Debug("identity created", logger.IdentityID(rec.ID), logger.Kind(string(kind)))
	return rec, nil
}

// Get resuelve una identidad e incrementa su access_count. El tracking
// es una mutación, así que la operación se serializa por key y la
// entrada de cache se invalida antes del write durable.
func (i *IdentityStore) Get(ctx context.Context, id string) (*core.Identity, error) {
	unlock := i.s.locks.lock(identityKey(id))
	defer unlock()

	rec, err := i.s.loadIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	rec.AccessCount++
	rec.LastAccessedAt = i.s.now()

	i.s.cache.Delete(identityKey(id))
	sctx, cancel := i.s.storeCtx(ctx)
	defer cancel()
	if err := i.s.conn.Identities().Update(sctx, rec); err != nil {
		return nil, i.s.storeErr("identity.update", err)
	}
	i.s.cacheIdentity(rec)
	return rec, nil
}

// UpdateMetadata mergea (key, value) en el metadata existente.
func (i *IdentityStore) UpdateMetadata(ctx context.Context, id, key string, value any) error {
	unlock := i.s.locks.lock(identityKey(id))
	defer unlock()

	sctx, cancel := i.s.storeCtx(ctx)
	defer cancel()
	rec, err := i.s.conn.Identities().Get(sctx, id)
	if err != nil {
		return i.s.storeErr("identity.get", err)
	}

	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	rec.Metadata[key] = value

	i.s.cache.Delete(identityKey(id))
	sctx2, cancel2 := i.s.storeCtx(ctx)
	defer cancel2()
	if err := i.s.conn.Identities().Update(sctx2, rec); err != nil {
		return i.s.storeErr("identity.update", err)
	}
	return nil
}

// ListByKind retorna un snapshot ordenado por created_at ascendente.
// Es un scan: respeta la cancelación/deadline del caller.
func (i *IdentityStore) ListByKind(ctx context.Context, kind core.IDKind) ([]core.Identity, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	out, err := i.s.conn.Identities().ListByKind(ctx, kind)
	if err != nil {
		return nil, i.s.storeErr("identity.list", err)
	}
	return out, nil
}

// PurgeResult reporta el alcance de un purge en cascada.
type PurgeResult struct {
	TokensDeleted        int64
	RelationshipsDeleted int64
}

// Purge elimina la identidad junto con todos los tokens y relaciones que
// la referencian. El id nunca se reutiliza. Las entradas de cache de cada
// registro afectado se invalidan antes de los deletes durables.
func (i *IdentityStore) Purge(ctx context.Context, id string) (*PurgeResult, error) {
	unlock := i.s.locks.lock(identityKey(id))
	defer unlock()

	sctx, cancel := i.s.storeCtx(ctx)
	defer cancel()
	if _, err := i.s.conn.Identities().Get(sctx, id); err != nil {
		return nil, i.s.storeErr("identity.get", err)
	}

	// Resolver los registros afectados para invalidar sus entradas
	toks, err := i.s.conn.Tokens().ListByIdentity(ctx, id)
	if err != nil {
		return nil, i.s.storeErr("token.list", err)
	}
	rels, err := i.s.conn.Relationships().ListByIdentity(ctx, id)
	if err != nil {
		return nil, i.s.storeErr("relationship.list", err)
	}
	for _, t := range toks {
		i.s.cache.Delete(tokenKey(t.Hash))
	}
	for _, r := range rels {
		i.s.cache.Delete(relCacheKey(r.SourceID, r.TargetID, r.RelationshipType))
	}
	i.s.cache.Delete(identityKey(id))

	res := &PurgeResult{}
	if res.TokensDeleted, err = i.s.conn.Tokens().DeleteByIdentity(ctx, id); err != nil {
		return nil, i.s.storeErr("token.delete", err)
	}
	if res.RelationshipsDeleted, err = i.s.conn.Relationships().DeleteByIdentity(ctx, id); err != nil {
		return nil, i.s.storeErr("relationship.delete", err)
	}
	sctx2, cancel2 := i.s.storeCtx(ctx)
	defer cancel2()
	if err := i.s.conn.Identities().Delete(sctx2, id); err != nil {
		return nil, i.s.storeErr("identity.delete", err)
	}

	i.s.log.Info("identity purged", logger.IdentityID(id),
		logger.Count(int(res.TokensDeleted+res.RelationshipsDeleted)))
	return res, nil
}

// loadIdentity es el read-through: cache primero, miss va al store con
// singleflight y re-popula.
func (s *Service) loadIdentity(ctx context.Context, id string) (*core.Identity, error) {
	key := identityKey(id)
	if b, ok := s.cache.Get(key); ok {
		var rec core.Identity
		if err := json.Unmarshal(b, &rec); err == nil {
			metrics.CacheHits.WithLabelValues("identity").Inc()
			return &rec, nil
		}
		s.cache.Delete(key)
	}
	metrics.CacheMisses.WithLabelValues("identity").Inc()

	v, err, _ := s.sf.Do(key, func() (any, error) {
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		rec, err := s.conn.Identities().Get(sctx, id)
		if err != nil {
			return nil, err
		}
		s.cacheIdentity(rec)
		return rec, nil
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, s.storeErr("identity.get", err)
	}
	cp := *(v.(*core.Identity))
	return &cp, nil
}
