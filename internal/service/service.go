// Package service implementa las operaciones del core sobre un
// store.Connection, con cache read-through delante del store durable,
// serialización por key de las mutaciones y timeouts acotados.
//
// El Service se construye una vez por proceso con sus dependencias
// explícitas (store, cache, bus) y se pasa a los collaborators; no hay
// estado global.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/idlink/internal/cache"
	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	"github.com/dropDatabas3/idlink/internal/metrics"
	"github.com/dropDatabas3/idlink/internal/observability/logger"
	"github.com/dropDatabas3/idlink/internal/store"
)

// Options ajusta el comportamiento del Service. Los zero values toman
// defaults razonables.
type Options struct {
	// OpTimeout acota cada llamada individual al store. Default 5s.
	OpTimeout time.Duration

	// CacheMaxTTL acota el TTL de toda entrada de cache. Default 5m.
	CacheMaxTTL time.Duration

	// SecretBytes es la entropía de los tokens emitidos. Default 32.
	SecretBytes int

	// Clock permite inyectar el reloj en tests. Default time.Now (UTC).
	Clock func() time.Time

	// Logger opcional; default logger.Named("service").
	Logger *zap.Logger
}

// Service agrupa los cuatro componentes del core sobre dependencias
// compartidas.
type Service struct {
	conn        store.Connection
	cache       cache.Cache
	bus         *events.Bus
	log         *zap.Logger
	opTimeout   time.Duration
	cacheMaxTTL time.Duration
	secretBytes int
	now         func() time.Time
	locks       keyedMutex
	sf          singleflight.Group
}

// New construye el Service con inyección explícita de dependencias.
func New(conn store.Connection, c cache.Cache, bus *events.Bus, opts Options) *Service {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 5 * time.Second
	}
	if opts.CacheMaxTTL <= 0 {
		opts.CacheMaxTTL = 5 * time.Minute
	}
	if opts.SecretBytes <= 0 {
		opts.SecretBytes = 32
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("service")
	}
	return &Service{
		conn:        conn,
		cache:       c,
		bus:         bus,
		log:         opts.Logger,
		opTimeout:   opts.OpTimeout,
		cacheMaxTTL: opts.CacheMaxTTL,
		secretBytes: opts.SecretBytes,
		now:         opts.Clock,
	}
}

// Identities retorna el Identity Store.
func (s *Service) Identities() *IdentityStore { return &IdentityStore{s: s} }

// Tokens retorna el Token Store.
func (s *Service) Tokens() *TokenStore { return &TokenStore{s: s} }

// Graph retorna el Relationship Graph.
func (s *Service) Graph() *Graph { return &Graph{s: s} }

// Stats retorna el Statistics Engine.
func (s *Service) Stats() *Stats { return &Stats{s: s} }

// Events retorna el bus de eventos para suscribirse a cambios.
func (s *Service) Events() *events.Bus { return s.bus }

// RunSweeper ejecuta el sweep de expiración periódicamente hasta que el
// contexto se cancele. Pensado para correr en una goroutine propia; el
// caller puede scopear el logger del loop vía logger.ToContext.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := logger.From(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Tokens().SweepExpired(ctx); err != nil {
				log.Warn("sweep failed", logger.Err(err))
			}
		}
	}
}

// ─── Helpers compartidos ───

// storeCtx acota una llamada individual al store.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// storeErr traduce fallos del store: los sentinels del core pasan tal
// cual; la cancelación del caller pasa tal cual; cualquier otro fallo
// (timeout incluido) se reporta como StoreUnavailable. El core no
// reintenta: reintentar un write no-idempotente duplicaría registros.
func (s *Service) storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrConflict) ||
		errors.Is(err, core.ErrInvalidState) || errors.Is(err, core.ErrInvalidKind) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	metrics.StoreErrors.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w: %v", op, core.ErrStoreUnavailable, err)
}

// Cache keys por record set.
func identityKey(id string) string { return "id:" + id }
func tokenKey(hash string) string  { return "tok:" + hash }
func relCacheKey(sourceID, targetID, relType string) string {
	return "rel:" + sourceID + "|" + targetID + "|" + relType
}

func (s *Service) cacheIdentity(rec *core.Identity) {
	if b, err := json.Marshal(rec); err == nil {
		s.cache.Set(identityKey(rec.ID), b, s.cacheMaxTTL)
	}
}

// cacheToken respeta la expiración real del token: el TTL de la entrada
// es min(expires_at-now, cacheMaxTTL) para no servir un token vencido
// aunque el sweep no haya corrido.
func (s *Service) cacheToken(rec *core.Token) {
	ttl := s.cacheMaxTTL
	if rec.ExpiresAt != nil {
		remaining := rec.ExpiresAt.Sub(s.now())
		if remaining <= 0 {
			return
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	if b, err := json.Marshal(rec); err == nil {
		s.cache.Set(tokenKey(rec.Hash), b, ttl)
	}
}

func (s *Service) cacheRelationship(rec *core.Relationship) {
	if b, err := json.Marshal(rec); err == nil {
		s.cache.Set(relCacheKey(rec.SourceID, rec.TargetID, rec.RelationshipType), b, s.cacheMaxTTL)
	}
}

// keyedMutex serializa mutaciones por key con locks en stripes.
// Dos keys distintas pueden compartir stripe; sólo cuesta contención,
// nunca correctness.
type keyedMutex struct {
	shards [64]sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.shards[h.Sum32()%uint32(len(k.shards))]
	m.Lock()
	return m.Unlock
}
