package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/idlink/internal/cache/memory"
	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	"github.com/dropDatabas3/idlink/internal/service"
	"github.com/dropDatabas3/idlink/internal/store"

	_ "github.com/dropDatabas3/idlink/internal/store/adapters/fs"
)

// fakeClock permite avanzar el tiempo en tests sin dormir.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *service.Service
	conn  store.Connection
	bus   *events.Bus
	clock *fakeClock
}

// newFixture arma un service completo sobre el adapter fs con cache en
// memoria y reloj falso.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	var cfg store.Config
	cfg.Driver = "fs"
	cfg.FS.Root = t.TempDir()
	conn, err := store.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}

	clock := newFakeClock()
	bus := events.NewBus()
	svc := service.New(conn, memory.New(time.Minute), bus, service.Options{
		Clock: clock.Now,
	})

	t.Cleanup(func() {
		bus.Close()
		_ = conn.Close()
	})
	return &fixture{svc: svc, conn: conn, bus: bus, clock: clock}
}

// mustIdentity crea una identidad o aborta el test.
func (f *fixture) mustIdentity(t *testing.T, kind core.IDKind) *core.Identity {
	t.Helper()
	rec, err := f.svc.Identities().Create(context.Background(), kind, nil)
	if err != nil {
		t.Fatalf("Create identity failed: %v", err)
	}
	return rec
}

// mustToken emite un token activo entre dos identidades nuevas y retorna
// el valor plano junto con los endpoints.
func (f *fixture) mustToken(t *testing.T, ttl *time.Duration) (value string, src, dst *core.Identity) {
	t.Helper()
	src = f.mustIdentity(t, core.KindUser)
	dst = f.mustIdentity(t, core.KindUser)
	value, _, err := f.svc.Tokens().Issue(context.Background(), src.ID, dst.ID, "follows", ttl, nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	return value, src, dst
}

func hour() *time.Duration {
	d := time.Hour
	return &d
}
