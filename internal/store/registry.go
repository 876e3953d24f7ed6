// Package store provee el registry de adaptadores de persistencia y las
// interfaces de repositorio del dominio. El store durable es la única
// fuente de verdad; el cache nunca es autoritativo.
package store

import (
	"context"
	"sync"
)

// Adapter representa un adaptador de persistencia capaz de crear repositorios.
type Adapter interface {
	// Name retorna el nombre del adapter (ej: "fs", "postgres").
	Name() string

	// Connect establece conexión con el almacenamiento.
	Connect(ctx context.Context, cfg AdapterConfig) (Connection, error)
}

// Connection representa una conexión activa.
// Provee acceso a los tres record sets.
type Connection interface {
	// Name retorna el nombre del adapter.
	Name() string

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error

	Identities() IdentityRepository
	Tokens() TokenRepository
	Relationships() RelationshipRepository
}

// AdapterConfig es la configuración común de conexión.
type AdapterConfig struct {
	// FSRoot es el directorio raíz del adapter fs.
	FSRoot string

	// DSN es el connection string del adapter postgres.
	DSN      string
	Postgres struct {
		MaxOpenConns    int
		MinConns        int
		ConnMaxLifetime string
	}
}

var (
	regMu    sync.RWMutex
	adapters = map[string]Adapter{}
)

// RegisterAdapter registra un adapter. Llamado desde init() de cada adapter.
func RegisterAdapter(a Adapter) {
	regMu.Lock()
	defer regMu.Unlock()
	adapters[a.Name()] = a
}

// GetAdapter busca un adapter por nombre.
func GetAdapter(name string) (Adapter, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	a, ok := adapters[name]
	return a, ok
}
