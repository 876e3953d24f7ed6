package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.App.Env != "dev" {
		t.Fatalf("expected env dev, got %s", cfg.App.Env)
	}
	if cfg.Storage.Driver != "fs" {
		t.Fatalf("expected driver fs, got %s", cfg.Storage.Driver)
	}
	if cfg.Cache.Kind != "memory" {
		t.Fatalf("expected cache memory, got %s", cfg.Cache.Kind)
	}
	if cfg.Tokens.SecretBytes != 32 {
		t.Fatalf("expected 32 secret bytes, got %d", cfg.Tokens.SecretBytes)
	}
	if cfg.OpTimeout() != 5*time.Second {
		t.Fatalf("expected 5s op timeout, got %s", cfg.OpTimeout())
	}
	if cfg.CacheMaxTTL() != 5*time.Minute {
		t.Fatalf("expected 5m cache max ttl, got %s", cfg.CacheMaxTTL())
	}
	if cfg.SweepInterval() != time.Minute {
		t.Fatalf("expected 1m sweep interval, got %s", cfg.SweepInterval())
	}
	if cfg.Events.Buffer != 64 {
		t.Fatalf("expected events buffer 64, got %d", cfg.Events.Buffer)
	}
}

func TestLoad_FromYAML(t *testing.T) {
	p := writeConfig(t, `
app:
  env: prod
log:
  level: warn
storage:
  driver: fs
  fs:
    root: /tmp/idlink-data
  op_timeout: 2s
cache:
  kind: memory
  max_ttl: 30s
tokens:
  default_ttl: 12h
  secret_bytes: 48
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.App.Env != "prod" {
		t.Fatalf("expected prod, got %s", cfg.App.Env)
	}
	if cfg.Storage.FS.Root != "/tmp/idlink-data" {
		t.Fatalf("unexpected fs root: %s", cfg.Storage.FS.Root)
	}
	if cfg.OpTimeout() != 2*time.Second {
		t.Fatalf("expected 2s, got %s", cfg.OpTimeout())
	}
	if cfg.CacheMaxTTL() != 30*time.Second {
		t.Fatalf("expected 30s, got %s", cfg.CacheMaxTTL())
	}
	if cfg.Tokens.SecretBytes != 48 {
		t.Fatalf("expected 48, got %d", cfg.Tokens.SecretBytes)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	p := writeConfig(t, `
storage:
  driver: fs
  fs:
    root: from-file
`)
	t.Setenv("STORAGE_FS_ROOT", "from-env")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.FS.Root != "from-env" {
		t.Fatalf("env must win over file, got %s", cfg.Storage.FS.Root)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug, got %s", cfg.Log.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver": `
storage:
  driver: cassandra
`,
		"postgres sin dsn": `
storage:
  driver: postgres
`,
		"duración inválida": `
storage:
  op_timeout: pronto
`,
		"secret corto": `
tokens:
  secret_bytes: 8
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
