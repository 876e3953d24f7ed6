package atomicwrite

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "doc.yaml")

	// crea directorios intermedios
	if err := AtomicWriteFile(path, []byte("uno"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "uno" {
		t.Fatalf("expected uno, got %s", b)
	}

	// sobrescribe el contenido completo
	if err := AtomicWriteFile(path, []byte("dos"), 0644); err != nil {
		t.Fatal(err)
	}
	b, _ = os.ReadFile(path)
	if string(b) != "dos" {
		t.Fatalf("expected dos, got %s", b)
	}

	// no quedan temporales huérfanos
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}
