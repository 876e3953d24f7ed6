package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	"github.com/dropDatabas3/idlink/internal/metrics"
	"github.com/dropDatabas3/idlink/internal/observability/logger"
)

// Graph materializa y consulta las aristas dirigidas creadas al redimir
// tokens.
type Graph struct{ s *Service }

// Redeem valida el token presentado y materializa (o re-afirma) la
// relación source→target del token. La identidad que presenta debe ser
// uno de los dos endpoints; si no, core.ErrUnauthorized.
//
// Dos redeems concurrentes del mismo token producen exactamente una
// fila: el upsert del store es atómico y el perdedor de la carrera
// observa la relación ya actualizada, no un error.
//
// La revocación posterior del token NO desactiva la relación ya
// materializada; el ciclo de vida de la relación es independiente del
// token que la originó.
func (g *Graph) Redeem(ctx context.Context, value, presenterID string) (*core.Relationship, error) {
	tok, err := g.s.Tokens().Validate(ctx, value)
	if err != nil {
		metrics.Redemptions.WithLabelValues("failed").Inc()
		return nil, err
	}

	if presenterID != tok.SourceID && presenterID != tok.TargetID {
		metrics.Redemptions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %s is not an endpoint of the token", core.ErrUnauthorized, presenterID)
	}

	key := relCacheKey(tok.SourceID, tok.TargetID, tok.RelationshipType)
	unlock := g.s.locks.lock(key)
	defer unlock()

	now := g.s.now()
	rel := &core.Relationship{
		SourceID:         tok.SourceID,
		TargetID:         tok.TargetID,
		RelationshipType: tok.RelationshipType,
		OriginTokenHash:  tok.Hash,
		Status:           core.RelationshipActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Invalidar antes del write durable
	g.s.cache.Delete(key)
	sctx, cancel := g.s.storeCtx(ctx)
	defer cancel()
	out, created, err := g.s.conn.Relationships().Upsert(sctx, rel)
	if err != nil {
		metrics.Redemptions.WithLabelValues("failed").Inc()
		return nil, g.s.storeErr("relationship.upsert", err)
	}
	g.s.cacheRelationship(out)

	result := "reaffirmed"
	if created {
		result = "created"
	}
	metrics.Redemptions.WithLabelValues(result).Inc()
	g.s.bus.Publish(events.Event{
		Type: events.RelationshipChanged, TokenHash: tok.Hash,
		SourceID: out.SourceID, TargetID: out.TargetID, RelationshipType: out.RelationshipType,
	})
	g.s.log.Info("token redeemed",
		logger.SourceID(out.SourceID), logger.TargetID(out.TargetID),
		logger.RelType(out.RelationshipType), logger.IdentityID(presenterID))
	return out, nil
}

// Remove desactiva la relación. Idempotente: true sólo si existía activa.
func (g *Graph) Remove(ctx context.Context, sourceID, targetID, relType string) (bool, error) {
	key := relCacheKey(sourceID, targetID, relType)
	unlock := g.s.locks.lock(key)
	defer unlock()

	g.s.cache.Delete(key)
	sctx, cancel := g.s.storeCtx(ctx)
	defer cancel()
	ok, err := g.s.conn.Relationships().SetStatus(sctx, sourceID, targetID, relType, core.RelationshipInactive)
	if err != nil {
		return false, g.s.storeErr("relationship.remove", err)
	}
	if ok {
		g.s.bus.Publish(events.Event{
			Type: events.RelationshipChanged,
			SourceID: sourceID, TargetID: targetID, RelationshipType: relType,
		})
	}
	return ok, nil
}

// Get resuelve una relación puntual (read-through).
func (g *Graph) Get(ctx context.Context, sourceID, targetID, relType string) (*core.Relationship, error) {
	key := relCacheKey(sourceID, targetID, relType)
	// Mismo stripe lock que Redeem/Remove: un miss nunca re-puebla la
	// cache con el estado previo a una mutación ya confirmada.
	unlock := g.s.locks.lock(key)
	defer unlock()

	if b, ok := g.s.cache.Get(key); ok {
		var rec core.Relationship
		if err := json.Unmarshal(b, &rec); err == nil {
			metrics.CacheHits.WithLabelValues("relationship").Inc()
			return &rec, nil
		}
		g.s.cache.Delete(key)
	}
	metrics.CacheMisses.WithLabelValues("relationship").Inc()

	v, err, _ := g.s.sf.Do(key, func() (any, error) {
		sctx, cancel := g.s.storeCtx(ctx)
		defer cancel()
		rec, err := g.s.conn.Relationships().Get(sctx, sourceID, targetID, relType)
		if err != nil {
			return nil, err
		}
		g.s.cacheRelationship(rec)
		return rec, nil
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, g.s.storeErr("relationship.get", err)
	}
	cp := *(v.(*core.Relationship))
	return &cp, nil
}

// LinkedFrom retorna las relaciones ACTIVE salientes de id, más
// recientes primero.
func (g *Graph) LinkedFrom(ctx context.Context, id string) ([]core.Relationship, error) {
	out, err := g.s.conn.Relationships().ListFrom(ctx, id)
	if err != nil {
		return nil, g.s.storeErr("relationship.list", err)
	}
	return out, nil
}

// LinkedTo retorna las relaciones ACTIVE entrantes a id, más recientes
// primero.
func (g *Graph) LinkedTo(ctx context.Context, id string) ([]core.Relationship, error) {
	out, err := g.s.conn.Relationships().ListTo(ctx, id)
	if err != nil {
		return nil, g.s.storeErr("relationship.list", err)
	}
	return out, nil
}

// ByType es un scan global filtrado por tipo, para uso administrativo.
// Respeta la cancelación del caller.
func (g *Graph) ByType(ctx context.Context, relType string) ([]core.Relationship, error) {
	out, err := g.s.conn.Relationships().ListByType(ctx, relType)
	if err != nil {
		return nil, g.s.storeErr("relationship.list", err)
	}
	return out, nil
}
