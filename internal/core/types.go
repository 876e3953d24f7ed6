// Package core define los tipos de dominio del servicio de identidades y
// token-linking: Identity, Token y Relationship, junto con la taxonomía de
// errores compartida por stores, cache y servicios.
package core

import "time"

// IDKind es el tipo de una identidad. Set cerrado.
type IDKind string

const (
	KindClubhouse   IDKind = "clubhouse"
	KindUser        IDKind = "user"
	KindSession     IDKind = "session"
	KindQuest       IDKind = "quest"
	KindAchievement IDKind = "achievement"
	KindCustom      IDKind = "custom"
)

// IsValid retorna true si el kind pertenece al set cerrado.
func (k IDKind) IsValid() bool {
	switch k {
	case KindClubhouse, KindUser, KindSession, KindQuest, KindAchievement, KindCustom:
		return true
	}
	return false
}

// Prefix retorna el prefijo usado al generar IDs de este kind.
func (k IDKind) Prefix() string { return string(k) }

// Kinds retorna el set completo, en orden estable.
func Kinds() []IDKind {
	return []IDKind{KindClubhouse, KindUser, KindSession, KindQuest, KindAchievement, KindCustom}
}

// TokenStatus es el estado de un token. Transiciones monótonas:
// ACTIVE→EXPIRED (por tiempo), ACTIVE→REVOKED, PENDING→ACTIVE,
// PENDING→REVOKED. EXPIRED y REVOKED son terminales.
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenExpired TokenStatus = "expired"
	TokenRevoked TokenStatus = "revoked"
	TokenPending TokenStatus = "pending"
)

// Terminal retorna true si el estado no admite más transiciones.
func (s TokenStatus) Terminal() bool {
	return s == TokenExpired || s == TokenRevoked
}

// RelationshipStatus es el estado de una relación.
type RelationshipStatus string

const (
	RelationshipActive   RelationshipStatus = "active"
	RelationshipInactive RelationshipStatus = "inactive"
)

// Identity es una entidad direccionable única. El ID es inmutable y nunca
// se reutiliza, incluso después de un purge.
type Identity struct {
	ID             string         `json:"id" yaml:"id"`
	Kind           IDKind         `json:"kind" yaml:"kind"`
	Metadata       map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	LastAccessedAt time.Time      `json:"last_accessed_at" yaml:"last_accessed_at"`
	AccessCount    int64          `json:"access_count" yaml:"access_count"`
}

// Token autoriza materializar una relación entre dos identidades.
// El valor plano nunca se persiste: sólo el hash SHA-256 (base64url).
type Token struct {
	Hash             string         `json:"hash" yaml:"hash"`
	SourceID         string         `json:"source_id" yaml:"source_id"`
	TargetID         string         `json:"target_id" yaml:"target_id"`
	RelationshipType string         `json:"relationship_type" yaml:"relationship_type"`
	Status           TokenStatus    `json:"status" yaml:"status"`
	Metadata         map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at" yaml:"created_at"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	UseCount         int64          `json:"use_count" yaml:"use_count"`
	LastUsedAt       *time.Time     `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
}

// ExpiredAt retorna true si el token venció antes de now.
// ExpiresAt nil significa que no expira nunca.
func (t *Token) ExpiredAt(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// Relationship es una arista dirigida source→target con un tipo libre.
// A lo sumo una relación por (source_id, target_id, relationship_type).
type Relationship struct {
	SourceID         string             `json:"source_id" yaml:"source_id"`
	TargetID         string             `json:"target_id" yaml:"target_id"`
	RelationshipType string             `json:"relationship_type" yaml:"relationship_type"`
	OriginTokenHash  string             `json:"origin_token_hash" yaml:"origin_token_hash"`
	Status           RelationshipStatus `json:"status" yaml:"status"`
	CreatedAt        time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" yaml:"updated_at"`
}

// StatsSnapshot es una vista puntual best-effort sobre el store durable.
// No es transaccionalmente consistente con escritores concurrentes.
type StatsSnapshot struct {
	TotalIdentities     int64            `json:"total_identities"`
	IdentitiesByKind    map[IDKind]int64 `json:"identities_by_kind"`
	ActiveTokens        int64            `json:"active_tokens"`
	ExpiredTokens       int64            `json:"expired_tokens"`
	RevokedTokens       int64            `json:"revoked_tokens"`
	PendingTokens       int64            `json:"pending_tokens"`
	ActiveRelationships int64            `json:"active_relationships"`
	RelationshipsByType map[string]int64 `json:"relationships_by_type"`
	TakenAt             time.Time        `json:"taken_at"`
}
