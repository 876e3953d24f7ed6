// Package fs implementa el adapter FileSystem: un store embebido que
// persiste cada record set como un archivo YAML bajo un directorio raíz,
// con escrituras atómicas. Pensado para el proceso único del servicio;
// toda mutación pasa por el RWMutex de la conexión.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/idlink/internal/store"
	"github.com/dropDatabas3/idlink/internal/util/atomicwrite"
)

func init() {
	store.RegisterAdapter(&fsAdapter{})
}

type fsAdapter struct{}

func (a *fsAdapter) Name() string { return "fs" }

func (a *fsAdapter) Connect(ctx context.Context, cfg store.AdapterConfig) (store.Connection, error) {
	root := cfg.FSRoot
	if root == "" {
		root = "data"
	}

	// Verificar que existe, si no existe lo creamos automáticamente
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(root, 0755); mkErr != nil {
				return nil, fmt.Errorf("fs: failed to create root path %s: %w", root, mkErr)
			}
		} else {
			return nil, fmt.Errorf("fs: root path error: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("fs: root path is not a directory: %s", root)
	}

	return &fsConnection{root: root}, nil
}

// fsConnection representa una conexión activa al FileSystem.
// El mutex serializa todas las mutaciones; los reads toman RLock.
type fsConnection struct {
	root string
	mu   sync.RWMutex
}

func (c *fsConnection) Name() string { return "fs" }

func (c *fsConnection) Ping(ctx context.Context) error {
	_, err := os.Stat(c.root)
	return err
}

func (c *fsConnection) Close() error { return nil }

func (c *fsConnection) Identities() store.IdentityRepository {
	return &identityRepo{conn: c}
}

func (c *fsConnection) Tokens() store.TokenRepository {
	return &tokenRepo{conn: c}
}

func (c *fsConnection) Relationships() store.RelationshipRepository {
	return &relationshipRepo{conn: c}
}

// ─── Helpers ───

func (c *fsConnection) identitiesFile() string {
	return filepath.Join(c.root, "identities.yaml")
}

func (c *fsConnection) tokensFile() string {
	return filepath.Join(c.root, "tokens.yaml")
}

func (c *fsConnection) relationshipsFile() string {
	return filepath.Join(c.root, "relationships.yaml")
}

// loadYAML deserializa un archivo en out. Archivo ausente = record set vacío.
func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("fs: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("fs: parse %s: %w", path, err)
	}
	return nil
}

// saveYAML serializa y escribe de forma atómica.
func saveYAML(path string, in any) error {
	b, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("fs: marshal %s: %w", path, err)
	}
	if err := atomicwrite.AtomicWriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("fs: write %s: %w", path, err)
	}
	return nil
}
