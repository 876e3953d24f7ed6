package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	"github.com/dropDatabas3/idlink/internal/metrics"
	"github.com/dropDatabas3/idlink/internal/observability/logger"
	tokens "github.com/dropDatabas3/idlink/internal/security/token"
)

// TokenStore emite, valida, extiende y revoca tokens de vinculación.
// El valor plano se retorna una única vez en Issue; después sólo existe
// el hash.
type TokenStore struct{ s *Service }

// Issue emite un token ACTIVE entre dos identidades existentes.
// ttl nil significa que el token no expira. Retorna el valor plano
// (irrecuperable después) y el registro persistido.
func (t *TokenStore) Issue(ctx context.Context, sourceID, targetID, relType string, ttl *time.Duration, metadata map[string]any) (string, *core.Token, error) {
	return t.issue(ctx, sourceID, targetID, relType, ttl, metadata, core.TokenActive)
}

// IssuePending emite un token en estado PENDING: no es redimible hasta
// Activate.
func (t *TokenStore) IssuePending(ctx context.Context, sourceID, targetID, relType string, ttl *time.Duration, metadata map[string]any) (string, *core.Token, error) {
	return t.issue(ctx, sourceID, targetID, relType, ttl, metadata, core.TokenPending)
}

func (t *TokenStore) issue(ctx context.Context, sourceID, targetID, relType string, ttl *time.Duration, metadata map[string]any, status core.TokenStatus) (string, *core.Token, error) {
	// Ambos endpoints deben existir. Lecturas de repo directas: la
	// resolución interna no cuenta como acceso del caller.
	sctx, cancel := t.s.storeCtx(ctx)
	defer cancel()
	if _, err := t.s.conn.Identities().Get(sctx, sourceID); err != nil {
		return "", nil, t.s.storeErr("identity.get", err)
	}
	if _, err := t.s.conn.Identities().Get(sctx, targetID); err != nil {
		return "", nil, t.s.storeErr("identity.get", err)
	}

	value, err := tokens.GenerateOpaqueToken(t.s.secretBytes)
	if err != nil {
		return "", nil, fmt.Errorf("token.issue: generate: %w", err)
	}

	now := t.s.now()
	rec := &core.Token{
		Hash:             tokens.Hash(value),
		SourceID:         sourceID,
		TargetID:         targetID,
		RelationshipType: relType,
		Status:           status,
		Metadata:         metadata,
		CreatedAt:        now,
	}
	if ttl != nil {
		exp := now.Add(*ttl)
		rec.ExpiresAt = &exp
	}

	sctx2, cancel2 := t.s.storeCtx(ctx)
	defer cancel2()
	if err := t.s.conn.Tokens().Create(sctx2, rec); err != nil {
		return "", nil, t.s.storeErr("token.create", err)
	}
	t.s.cacheToken(rec)

	metrics.TokensIssued.Inc()
	t.s.bus.Publish(events.Event{
		Type: events.TokenIssued, TokenHash: rec.Hash,
		SourceID: sourceID, TargetID: targetID, RelationshipType: relType,
	})
	t.s.log.Debug("token issued",
		logger.TokenHash(rec.Hash), logger.SourceID(sourceID), logger.TargetID(targetID))
	return value, rec, nil
}

// Validate re-hashea el valor presentado y resuelve el token. Falla con
// core.ErrInvalidToken si el token es desconocido, PENDING, revocado o
// expirado; el error deliberadamente no distingue el caso. Un token
// vencido por tiempo se transiciona a EXPIRED acá mismo (lazy expiry).
// En éxito incrementa use_count y last_used_at.
func (t *TokenStore) Validate(ctx context.Context, value string) (*core.Token, error) {
	hash := tokens.Hash(value)
	unlock := t.s.locks.lock(tokenKey(hash))
	defer unlock()

	rec, err := t.s.loadToken(ctx, hash)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			metrics.TokenValidations.WithLabelValues("invalid").Inc()
			return nil, core.ErrInvalidToken
		}
		return nil, err
	}

	// El registro resuelto debe corresponder al valor presentado
	if !tokens.Matches(value, rec.Hash) {
		metrics.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, core.ErrInvalidToken
	}

	if rec.Status != core.TokenActive {
		metrics.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, core.ErrInvalidToken
	}

	now := t.s.now()
	if rec.ExpiredAt(now) {
		t.lazyExpire(ctx, hash)
		metrics.TokenValidations.WithLabelValues("invalid").Inc()
		return nil, core.ErrInvalidToken
	}

	// Tracking de uso
	rec.UseCount++
	rec.LastUsedAt = &now
	t.s.cache.Delete(tokenKey(hash))
	sctx, cancel := t.s.storeCtx(ctx)
	defer cancel()
	if err := t.s.conn.Tokens().Update(sctx, rec); err != nil {
		return nil, t.s.storeErr("token.update", err)
	}
	t.s.cacheToken(rec)

	metrics.TokenValidations.WithLabelValues("ok").Inc()
	return rec, nil
}

// Revoke transiciona ACTIVE/PENDING→REVOKED. Idempotente: retorna true
// sólo si la transición ocurrió; false si el token ya era terminal o no
// existe. Nunca resucita un token terminal.
func (t *TokenStore) Revoke(ctx context.Context, value string) (bool, error) {
	hash := tokens.Hash(value)
	unlock := t.s.locks.lock(tokenKey(hash))
	defer unlock()

	t.s.cache.Delete(tokenKey(hash))
	sctx, cancel := t.s.storeCtx(ctx)
	defer cancel()
	ok, err := t.s.conn.Tokens().SetStatus(sctx, hash,
		[]core.TokenStatus{core.TokenActive, core.TokenPending}, core.TokenRevoked)
	if err != nil {
		return false, t.s.storeErr("token.revoke", err)
	}
	if ok {
		metrics.TokensRevoked.Inc()
		t.s.bus.Publish(events.Event{Type: events.TokenRevoked, TokenHash: hash})
		t.s.log.Info("token revoked", logger.TokenHash(hash))
	}
	return ok, nil
}

// Activate transiciona PENDING→ACTIVE. Falla con core.ErrNotFound si el
// token no existe y core.ErrInvalidState si no está PENDING.
func (t *TokenStore) Activate(ctx context.Context, value string) (*core.Token, error) {
	hash := tokens.Hash(value)
	unlock := t.s.locks.lock(tokenKey(hash))
	defer unlock()

	t.s.cache.Delete(tokenKey(hash))
	sctx, cancel := t.s.storeCtx(ctx)
	defer cancel()
	ok, err := t.s.conn.Tokens().SetStatus(sctx, hash,
		[]core.TokenStatus{core.TokenPending}, core.TokenActive)
	if err != nil {
		return nil, t.s.storeErr("token.activate", err)
	}
	if !ok {
		rec, gerr := t.s.conn.Tokens().GetByHash(sctx, hash)
		if gerr != nil {
			return nil, t.s.storeErr("token.get", gerr)
		}
		return nil, fmt.Errorf("%w: token is %s, not pending", core.ErrInvalidState, rec.Status)
	}

	rec, err := t.s.conn.Tokens().GetByHash(sctx, hash)
	if err != nil {
		return nil, t.s.storeErr("token.get", err)
	}
	t.s.cacheToken(rec)
	t.s.bus.Publish(events.Event{Type: events.TokenActivated, TokenHash: hash})
	return rec, nil
}

// Extend suma additional al expires_at de un token ACTIVE. Extender un
// token que no expira es un no-op que retorna true. Falla con
// core.ErrInvalidState si el token no está ACTIVE (incluido vencido por
// tiempo aún no barrido).
func (t *TokenStore) Extend(ctx context.Context, value string, additional time.Duration) (bool, error) {
	hash := tokens.Hash(value)
	unlock := t.s.locks.lock(tokenKey(hash))
	defer unlock()

	sctx, cancel := t.s.storeCtx(ctx)
	defer cancel()
	rec, err := t.s.conn.Tokens().GetByHash(sctx, hash)
	if err != nil {
		return false, t.s.storeErr("token.get", err)
	}
	if rec.Status != core.TokenActive {
		return false, fmt.Errorf("%w: token is %s", core.ErrInvalidState, rec.Status)
	}
	if rec.ExpiredAt(t.s.now()) {
		t.lazyExpire(ctx, hash)
		return false, fmt.Errorf("%w: token is expired", core.ErrInvalidState)
	}
	if rec.ExpiresAt == nil {
		// No expira: nada que extender
		return true, nil
	}

	exp := rec.ExpiresAt.Add(additional)
	rec.ExpiresAt = &exp

	t.s.cache.Delete(tokenKey(hash))
	sctx2, cancel2 := t.s.storeCtx(ctx)
	defer cancel2()
	if err := t.s.conn.Tokens().Update(sctx2, rec); err != nil {
		return false, t.s.storeErr("token.update", err)
	}
	t.s.cacheToken(rec)
	return true, nil
}

// SweepExpired transiciona a EXPIRED todos los tokens ACTIVE vencidos y
// retorna cuántos transicionó. Seguro de correr concurrente con Validate:
// cada transición toma el lock por token, así el Update de use-tracking
// de Validate nunca pisa un EXPIRED ya escrito con un status viejo.
func (t *TokenStore) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()

	list, err := t.s.conn.Tokens().ListExpirable(ctx, t.s.now())
	if err != nil {
		return 0, t.s.storeErr("token.sweep", err)
	}

	count := 0
	for i := range list {
		hash := list[i].Hash
		unlock := t.s.locks.lock(tokenKey(hash))
		t.s.cache.Delete(tokenKey(hash))
		sctx, cancel := t.s.storeCtx(ctx)
		ok, err := t.s.conn.Tokens().SetStatus(sctx, hash,
			[]core.TokenStatus{core.TokenActive}, core.TokenExpired)
		cancel()
		unlock()
		if err != nil {
			t.s.log.Warn("sweep: transition failed", logger.TokenHash(hash), logger.Err(err))
			continue
		}
		if ok {
			count++
			t.s.bus.Publish(events.Event{Type: events.TokenExpired, TokenHash: hash})
		}
	}

	metrics.TokensSwept.Add(float64(count))
	metrics.SweepDuration.Observe(float64(time.Since(start).Milliseconds()))
	if count > 0 {
		t.s.log.Info("sweep completed", logger.Count(count), logger.Duration(time.Since(start)))
	}
	return count, nil
}

// lazyExpire aplica la transición ACTIVE→EXPIRED fuera del sweep.
// Best-effort: si falla, el sweep la aplicará después.
func (t *TokenStore) lazyExpire(ctx context.Context, hash string) {
	t.s.cache.Delete(tokenKey(hash))
	sctx, cancel := t.s.storeCtx(ctx)
	defer cancel()
	ok, err := t.s.conn.Tokens().SetStatus(sctx, hash,
		[]core.TokenStatus{core.TokenActive}, core.TokenExpired)
	if err != nil {
		t.s.log.Warn("lazy expire failed", logger.TokenHash(hash), logger.Err(err))
		return
	}
	if ok {
		t.s.bus.Publish(events.Event{Type: events.TokenExpired, TokenHash: hash})
	}
}

// loadToken es el read-through de tokens por hash.
func (s *Service) loadToken(ctx context.Context, hash string) (*core.Token, error) {
	key := tokenKey(hash)
	if b, ok := s.cache.Get(key); ok {
		var rec core.Token
		if err := json.Unmarshal(b, &rec); err == nil {
			metrics.CacheHits.WithLabelValues("token").Inc()
			return &rec, nil
		}
		s.cache.Delete(key)
	}
	metrics.CacheMisses.WithLabelValues("token").Inc()

	v, err, _ := s.sf.Do(key, func() (any, error) {
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		rec, err := s.conn.Tokens().GetByHash(sctx, hash)
		if err != nil {
			return nil, err
		}
		s.cacheToken(rec)
		return rec, nil
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrNotFound
		}
		return nil, s.storeErr("token.get", err)
	}
	cp := *(v.(*core.Token))
	return &cp, nil
}
