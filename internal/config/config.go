// Package config carga la configuración del servicio desde YAML con
// overrides por variables de entorno. Las duraciones se escriben como
// strings de time.ParseDuration ("30s", "5m").
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Storage struct {
		// fs | postgres
		Driver string `yaml:"driver"`
		FS     struct {
			Root string `yaml:"root"`
		} `yaml:"fs"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
		// OpTimeout acota cada llamada individual al store.
		OpTimeout string `yaml:"op_timeout"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
		// MaxTTL acota el TTL de toda entrada de cache; las entradas de
		// token usan min(expires_at-now, max_ttl).
		MaxTTL string `yaml:"max_ttl"`
	} `yaml:"cache"`

	Tokens struct {
		// DefaultTTL aplica cuando el caller no pasa TTL explícito en la
		// CLI. Vacío = no expira.
		DefaultTTL  string `yaml:"default_ttl"`
		SecretBytes int    `yaml:"secret_bytes"`
		// SweepInterval es el período del sweep de expiración.
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"tokens"`

	Events struct {
		Buffer int `yaml:"buffer"`
	} `yaml:"events"`
}

// Load lee el archivo YAML (opcional), aplica overrides de entorno y
// defaults, y valida.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("STORAGE_FS_ROOT"); v != "" {
		c.Storage.FS.Root = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("CACHE_KIND"); v != "" {
		c.Cache.Kind = v
	}
	if v := os.Getenv("CACHE_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CACHE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Redis.DB = n
		}
	}
	if v := os.Getenv("TOKENS_DEFAULT_TTL"); v != "" {
		c.Tokens.DefaultTTL = v
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "fs"
	}
	if c.Storage.FS.Root == "" {
		c.Storage.FS.Root = "data"
	}
	if c.Storage.OpTimeout == "" {
		c.Storage.OpTimeout = "5s"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.MaxTTL == "" {
		c.Cache.MaxTTL = "5m"
	}
	if c.Tokens.SecretBytes == 0 {
		c.Tokens.SecretBytes = 32
	}
	if c.Tokens.SweepInterval == "" {
		c.Tokens.SweepInterval = "1m"
	}
	if c.Events.Buffer == 0 {
		c.Events.Buffer = 64
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "fs", "file", "filesystem", "postgres", "pg", "postgresql":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" || c.Storage.Driver == "pg" || c.Storage.Driver == "postgresql" {
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn is required for postgres")
		}
	}
	for name, v := range map[string]string{
		"storage.op_timeout":    c.Storage.OpTimeout,
		"cache.max_ttl":         c.Cache.MaxTTL,
		"cache.memory.default_ttl": c.Cache.Memory.DefaultTTL,
		"tokens.sweep_interval": c.Tokens.SweepInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config: %s: invalid duration %q", name, v)
		}
	}
	if c.Tokens.DefaultTTL != "" {
		if _, err := time.ParseDuration(c.Tokens.DefaultTTL); err != nil {
			return fmt.Errorf("config: tokens.default_ttl: invalid duration %q", c.Tokens.DefaultTTL)
		}
	}
	if c.Tokens.SecretBytes < 16 {
		return fmt.Errorf("config: tokens.secret_bytes must be >= 16 (got %d)", c.Tokens.SecretBytes)
	}
	return nil
}

// OpTimeout retorna el timeout por operación de store ya parseado.
func (c *Config) OpTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Storage.OpTimeout)
	return d
}

// CacheMaxTTL retorna el TTL máximo de cache ya parseado.
func (c *Config) CacheMaxTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.MaxTTL)
	return d
}

// SweepInterval retorna el período del sweep ya parseado.
func (c *Config) SweepInterval() time.Duration {
	d, _ := time.ParseDuration(c.Tokens.SweepInterval)
	return d
}
