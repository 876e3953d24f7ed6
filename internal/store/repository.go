package store

import (
	"context"
	"time"

	"github.com/dropDatabas3/idlink/internal/core"
)

// IdentityRepository persiste identidades, keyed por id.
type IdentityRepository interface {
	// Create falla con core.ErrConflict si el id ya existe.
	Create(ctx context.Context, id *core.Identity) error

	// Get falla con core.ErrNotFound si no existe. No actualiza tracking
	// de acceso: eso es responsabilidad del service.
	Get(ctx context.Context, id string) (*core.Identity, error)

	// Update reemplaza el registro completo de forma atómica.
	Update(ctx context.Context, id *core.Identity) error

	// Delete elimina el registro. core.ErrNotFound si no existe.
	Delete(ctx context.Context, id string) error

	// ListByKind retorna un snapshot ordenado por created_at ascendente.
	ListByKind(ctx context.Context, kind core.IDKind) ([]core.Identity, error)

	// Count retorna total y desglose por kind.
	Count(ctx context.Context) (int64, map[core.IDKind]int64, error)
}

// TokenRepository persiste tokens, keyed por hash. Índices secundarios
// sobre (source_id, target_id) y sobre expires_at para el sweep.
type TokenRepository interface {
	// Create falla con core.ErrConflict si el hash ya existe.
	Create(ctx context.Context, t *core.Token) error

	// GetByHash falla con core.ErrNotFound si no existe.
	GetByHash(ctx context.Context, hash string) (*core.Token, error)

	// Update reemplaza el registro completo de forma atómica.
	Update(ctx context.Context, t *core.Token) error

	// SetStatus aplica una transición atómica de estado (check-and-set):
	// sólo transiciona si el estado actual está en from. Retorna true si
	// hubo transición, false si no (estado distinto o token inexistente).
	SetStatus(ctx context.Context, hash string, from []core.TokenStatus, to core.TokenStatus) (bool, error)

	// ListExpirable retorna los tokens ACTIVE con expires_at <= cutoff.
	ListExpirable(ctx context.Context, cutoff time.Time) ([]core.Token, error)

	// ListByIdentity retorna los tokens que referencian la identidad como
	// source o target. Usado por el purge en cascada.
	ListByIdentity(ctx context.Context, identityID string) ([]core.Token, error)

	// DeleteByIdentity elimina los tokens que referencian la identidad.
	DeleteByIdentity(ctx context.Context, identityID string) (int64, error)

	// CountByStatus retorna el desglose por estado.
	CountByStatus(ctx context.Context) (map[core.TokenStatus]int64, error)
}

// RelationshipRepository persiste relaciones, keyed por
// (source_id, target_id, relationship_type). Índices secundarios sobre
// source_id y target_id para ambas direcciones de traversal.
type RelationshipRepository interface {
	// Upsert crea la fila o, si ya existe, la re-afirma: status ACTIVE,
	// updated_at y origin_token_hash nuevos, created_at preservado. La
	// operación es atómica (dos redeems concurrentes producen una fila).
	// Retorna el registro resultante y true si la fila fue creada.
	Upsert(ctx context.Context, r *core.Relationship) (*core.Relationship, bool, error)

	// Get falla con core.ErrNotFound si no existe.
	Get(ctx context.Context, sourceID, targetID, relType string) (*core.Relationship, error)

	// SetStatus retorna true sólo si la fila existía y el estado cambió.
	SetStatus(ctx context.Context, sourceID, targetID, relType string, st core.RelationshipStatus) (bool, error)

	// ListFrom retorna las relaciones ACTIVE salientes de source,
	// ordenadas por created_at descendente (recency-first para UIs).
	ListFrom(ctx context.Context, sourceID string) ([]core.Relationship, error)

	// ListTo retorna las relaciones ACTIVE entrantes a target,
	// ordenadas por created_at descendente.
	ListTo(ctx context.Context, targetID string) ([]core.Relationship, error)

	// ListByType es un scan global filtrado por tipo (uso administrativo).
	ListByType(ctx context.Context, relType string) ([]core.Relationship, error)

	// ListByIdentity retorna las relaciones que tocan la identidad.
	ListByIdentity(ctx context.Context, identityID string) ([]core.Relationship, error)

	// DeleteByIdentity elimina las relaciones que tocan la identidad.
	DeleteByIdentity(ctx context.Context, identityID string) (int64, error)

	// CountActive retorna total de relaciones ACTIVE y desglose por tipo.
	CountActive(ctx context.Context) (int64, map[string]int64, error)
}
