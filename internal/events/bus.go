// Package events implementa el bus de cambios del core: los services
// publican eventos tipados y cualquier número de listeners los consume.
// Publish nunca bloquea el camino crítico: un subscriber con el buffer
// lleno pierde el evento (contado en métricas).
package events

import (
	"sync"
	"time"

	"github.com/dropDatabas3/idlink/internal/metrics"
)

// Type identifica la clase de cambio.
type Type string

const (
	IdentityCreated     Type = "identity.created"
	TokenIssued         Type = "token.issued"
	TokenActivated      Type = "token.activated"
	TokenRevoked        Type = "token.revoked"
	TokenExpired        Type = "token.expired"
	RelationshipChanged Type = "relationship.changed"
)

// Event es un cambio publicado por el core. Sólo lleva referencias (IDs y
// hashes), nunca valores planos de token.
type Event struct {
	Type             Type      `json:"type"`
	At               time.Time `json:"at"`
	IdentityID       string    `json:"identity_id,omitempty"`
	Kind             string    `json:"kind,omitempty"`
	TokenHash        string    `json:"token_hash,omitempty"`
	SourceID         string    `json:"source_id,omitempty"`
	TargetID         string    `json:"target_id,omitempty"`
	RelationshipType string    `json:"relationship_type,omitempty"`
}

// Bus distribuye eventos a subscribers con buffer propio.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan Event{}}
}

// Subscribe registra un listener con el buffer dado y retorna su canal y
// una función de cancelación. Cancelar cierra el canal.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish entrega el evento a cada subscriber sin bloquear. Si el buffer
// de un subscriber está lleno, el evento se descarta para ese subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

// Close cierra el bus y todos los canales de subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
