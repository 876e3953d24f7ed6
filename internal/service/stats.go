package service

import (
	"context"

	"github.com/dropDatabas3/idlink/internal/core"
)

// Stats agrega conteos sobre el store durable. Lee el store y no el
// cache para no subcontar en misses.
type Stats struct{ s *Service }

// Snapshot retorna una vista puntual best-effort: no es atómica respecto
// de escritores concurrentes (eventually-accurate). Respeta la
// cancelación del caller: son scans.
func (st *Stats) Snapshot(ctx context.Context) (*core.StatsSnapshot, error) {
	total, byKind, err := st.s.conn.Identities().Count(ctx)
	if err != nil {
		return nil, st.s.storeErr("stats.identities", err)
	}
	byStatus, err := st.s.conn.Tokens().CountByStatus(ctx)
	if err != nil {
		return nil, st.s.storeErr("stats.tokens", err)
	}
	activeRels, byType, err := st.s.conn.Relationships().CountActive(ctx)
	if err != nil {
		return nil, st.s.storeErr("stats.relationships", err)
	}

	return &core.StatsSnapshot{
		TotalIdentities:     total,
		IdentitiesByKind:    byKind,
		ActiveTokens:        byStatus[core.TokenActive],
		ExpiredTokens:       byStatus[core.TokenExpired],
		RevokedTokens:       byStatus[core.TokenRevoked],
		PendingTokens:       byStatus[core.TokenPending],
		ActiveRelationships: activeRels,
		RelationshipsByType: byType,
		TakenAt:             st.s.now(),
	}, nil
}
