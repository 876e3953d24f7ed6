package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	tokens "github.com/dropDatabas3/idlink/internal/security/token"
)

func TestTokenIssue(t *testing.T) {
	f := newFixture(t)

	value, src, dst := f.mustToken(t, hour())
	if value == "" {
		t.Fatal("expected non-empty plaintext value")
	}

	// el store sólo conoce el hash, nunca el valor plano
	rec, err := f.conn.Tokens().GetByHash(context.Background(), tokens.Hash(value))
	if err != nil {
		t.Fatalf("token not persisted under its hash: %v", err)
	}
	if rec.Hash == value {
		t.Fatal("plaintext must not be the stored key")
	}
	if rec.SourceID != src.ID || rec.TargetID != dst.ID {
		t.Fatalf("unexpected endpoints: %s→%s", rec.SourceID, rec.TargetID)
	}
	if rec.Status != core.TokenActive {
		t.Fatalf("expected active, got %s", rec.Status)
	}
	if rec.ExpiresAt == nil {
		t.Fatal("expected expires_at with ttl")
	}

	// dos emisiones nunca comparten valor
	value2, _, err := f.svc.Tokens().Issue(context.Background(), src.ID, dst.ID, "follows", hour(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if value2 == value {
		t.Fatal("token values must be unique")
	}
}

func TestTokenIssue_UnknownEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := f.mustIdentity(t, core.KindUser)

	if _, _, err := f.svc.Tokens().Issue(ctx, src.ID, "user-nope", "follows", nil, nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown target, got %v", err)
	}
	if _, _, err := f.svc.Tokens().Issue(ctx, "user-nope", src.ID, "follows", nil, nil); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown source, got %v", err)
	}
}

func TestTokenIssue_NoTTLNeverExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, nil)

	f.clock.Advance(1000 * time.Hour)
	if _, err := f.svc.Tokens().Validate(ctx, value); err != nil {
		t.Fatalf("token without ttl must never expire: %v", err)
	}

	n, err := f.svc.Tokens().SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("sweep must ignore non-expiring tokens, swept %d", n)
	}
}

func TestTokenValidate_TracksUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, hour())

	rec, err := f.svc.Tokens().Validate(ctx, value)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if rec.UseCount != 1 {
		t.Fatalf("expected use_count 1, got %d", rec.UseCount)
	}
	if rec.LastUsedAt == nil {
		t.Fatal("expected last_used_at set")
	}

	rec, err = f.svc.Tokens().Validate(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	if rec.UseCount != 2 {
		t.Fatalf("expected use_count 2, got %d", rec.UseCount)
	}
}

func TestTokenValidate_Unknown(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.Tokens().Validate(context.Background(), "no-existe"); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, hour())

	// dentro de la ventana: válido
	f.clock.Advance(30 * time.Minute)
	if _, err := f.svc.Tokens().Validate(ctx, value); err != nil {
		t.Fatalf("expected valid within ttl: %v", err)
	}

	// pasada la ventana: inválido y transicionado a expired
	f.clock.Advance(31 * time.Minute)
	if _, err := f.svc.Tokens().Validate(ctx, value); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}

	rec, err := f.conn.Tokens().GetByHash(ctx, tokens.Hash(value))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != core.TokenExpired {
		t.Fatalf("expected lazy transition to expired, got %s", rec.Status)
	}
}

func TestTokenRevoke_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, hour())

	ok, err := f.svc.Tokens().Revoke(ctx, value)
	if err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if !ok {
		t.Fatal("expected true on first revoke")
	}

	ok, err = f.svc.Tokens().Revoke(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected false on second revoke")
	}

	// revocar un token desconocido no es error, sólo false
	ok, err = f.svc.Tokens().Revoke(ctx, "no-existe")
	if err != nil || ok {
		t.Fatalf("expected (false, nil) for unknown token, got (%v, %v)", ok, err)
	}

	// un token revocado nunca vuelve a validar
	if _, err := f.svc.Tokens().Validate(ctx, value); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
}

func TestTokenPendingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := f.mustIdentity(t, core.KindUser)
	dst := f.mustIdentity(t, core.KindUser)
	value, rec, err := f.svc.Tokens().IssuePending(ctx, src.ID, dst.ID, "follows", hour(), nil)
	if err != nil {
		t.Fatalf("IssuePending failed: %v", err)
	}
	if rec.Status != core.TokenPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}

	// pending no valida ni redime
	if _, err := f.svc.Tokens().Validate(ctx, value); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for pending, got %v", err)
	}

	act, err := f.svc.Tokens().Activate(ctx, value)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if act.Status != core.TokenActive {
		t.Fatalf("expected active after activate, got %s", act.Status)
	}

	// activar dos veces falla: ya no está pending
	if _, err := f.svc.Tokens().Activate(ctx, value); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double activate, got %v", err)
	}

	// ahora sí valida
	if _, err := f.svc.Tokens().Validate(ctx, value); err != nil {
		t.Fatalf("expected valid after activate: %v", err)
	}

	// activar un token inexistente es ErrNotFound
	if _, err := f.svc.Tokens().Activate(ctx, "no-existe"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenExtend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, hour())

	// extender corre la ventana: a los 90 minutos sigue válido
	ok, err := f.svc.Tokens().Extend(ctx, value, time.Hour)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if !ok {
		t.Fatal("expected true on extend")
	}
	f.clock.Advance(90 * time.Minute)
	if _, err := f.svc.Tokens().Validate(ctx, value); err != nil {
		t.Fatalf("expected valid after extend: %v", err)
	}

	// pasada la ventana extendida ya no
	f.clock.Advance(31 * time.Minute)
	if _, err := f.svc.Tokens().Validate(ctx, value); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken past extended window, got %v", err)
	}
	// y extender un token vencido es ErrInvalidState
	if _, err := f.svc.Tokens().Extend(ctx, value, time.Hour); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for expired token, got %v", err)
	}
}

func TestTokenExtend_NoExpiryIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, nil)

	ok, err := f.svc.Tokens().Extend(ctx, value, time.Hour)
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	if !ok {
		t.Fatal("extending a non-expiring token is a successful no-op")
	}

	rec, err := f.conn.Tokens().GetByHash(ctx, tokens.Hash(value))
	if err != nil {
		t.Fatal(err)
	}
	if rec.ExpiresAt != nil {
		t.Fatal("no-op extend must not add an expiry")
	}
}

func TestTokenExtend_RevokedFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	value, _, _ := f.mustToken(t, hour())
	if _, err := f.svc.Tokens().Revoke(ctx, value); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Tokens().Extend(ctx, value, time.Hour); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for revoked token, got %v", err)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v1, _, _ := f.mustToken(t, hour())
	v2, _, _ := f.mustToken(t, hour())
	v3, _, _ := f.mustToken(t, nil) // no expira
	// uno revocado antes de vencer: el sweep no lo toca
	if _, err := f.svc.Tokens().Revoke(ctx, v2); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(2 * time.Hour)
	n, err := f.svc.Tokens().SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}

	// idempotente: segunda pasada no encuentra nada
	n, err = f.svc.Tokens().SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 on second sweep, got %d", n)
	}

	rec, err := f.conn.Tokens().GetByHash(ctx, tokens.Hash(v1))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != core.TokenExpired {
		t.Fatalf("expected expired, got %s", rec.Status)
	}
	rec, err = f.conn.Tokens().GetByHash(ctx, tokens.Hash(v2))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != core.TokenRevoked {
		t.Fatalf("revoked must stay revoked, got %s", rec.Status)
	}
	if _, err := f.svc.Tokens().Validate(ctx, v3); err != nil {
		t.Fatalf("non-expiring token must survive the sweep: %v", err)
	}
}

func TestTokenEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src := f.mustIdentity(t, core.KindUser)
	dst := f.mustIdentity(t, core.KindUser)

	ch, cancel := f.bus.Subscribe(8)
	defer cancel()

	value, rec, err := f.svc.Tokens().Issue(ctx, src.ID, dst.ID, "follows", hour(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Tokens().Revoke(ctx, value); err != nil {
		t.Fatal(err)
	}

	want := []events.Type{events.TokenIssued, events.TokenRevoked}
	for _, typ := range want {
		select {
		case ev := <-ch:
			if ev.Type != typ {
				t.Fatalf("expected %s, got %s", typ, ev.Type)
			}
			if ev.TokenHash != rec.Hash {
				t.Fatalf("expected hash %s, got %s", rec.Hash, ev.TokenHash)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestSweepExpired_ConcurrentValidateDoesNotResurrect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.mustIdentity(t, core.KindUser)
	b := f.mustIdentity(t, core.KindUser)
	ttl := 10 * time.Minute
	value, rec, err := f.svc.Tokens().Issue(ctx, a.ID, b.ID, "follows", &ttl, nil)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Validaciones en vuelo mientras el token cruza su expiración y el
	// sweep lo transiciona
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = f.svc.Tokens().Validate(ctx, value)
				}
			}
		}()
	}

	f.clock.Advance(11 * time.Minute)
	if _, err := f.svc.Tokens().SweepExpired(ctx); err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	close(stop)
	wg.Wait()

	// EXPIRED es terminal: el Update de use-tracking de un Validate en
	// vuelo no puede pisar la transición con un status viejo
	got, err := f.conn.Tokens().GetByHash(ctx, rec.Hash)
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.Status != core.TokenExpired {
		t.Fatalf("expected expired in the durable store, got %s", got.Status)
	}
	n, err := f.svc.Tokens().SweepExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep must be a no-op: %v (%d)", err, n)
	}
	if _, err := f.svc.Tokens().Validate(ctx, value); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
