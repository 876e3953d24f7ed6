package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dropDatabas3/idlink/internal/core"
)

// Escenario completo: un clubhouse invita a un usuario, el usuario se
// vincula, la membresía se consulta en ambas direcciones y finalmente el
// usuario se purga.
func TestLifecycle_Membership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	club, err := f.svc.Identities().Create(ctx, core.KindClubhouse, map[string]any{"name": "hack"})
	if err != nil {
		t.Fatal(err)
	}
	user := f.mustIdentity(t, core.KindUser)

	// el clubhouse emite una invitación con vigencia de un día
	day := 24 * time.Hour
	invite, _, err := f.svc.Tokens().Issue(ctx, club.ID, user.ID, "member", &day, map[string]any{"role": "basic"})
	if err != nil {
		t.Fatal(err)
	}

	// el usuario redime horas después
	f.clock.Advance(6 * time.Hour)
	rel, err := f.svc.Graph().Redeem(ctx, invite, user.ID)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if rel.SourceID != club.ID || rel.TargetID != user.ID {
		t.Fatalf("unexpected membership edge: %s→%s", rel.SourceID, rel.TargetID)
	}

	// membresía visible desde ambos lados
	members, err := f.svc.Graph().LinkedFrom(ctx, club.ID)
	if err != nil || len(members) != 1 {
		t.Fatalf("expected 1 member, got %d (%v)", len(members), err)
	}
	memberships, err := f.svc.Graph().LinkedTo(ctx, user.ID)
	if err != nil || len(memberships) != 1 {
		t.Fatalf("expected 1 membership, got %d (%v)", len(memberships), err)
	}

	// la invitación vence al otro día: ya no redime, pero la membresía
	// sobrevive
	f.clock.Advance(day)
	if _, err := f.svc.Graph().Redeem(ctx, invite, user.ID); !errors.Is(err, core.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
	if _, err := f.svc.Graph().Get(ctx, club.ID, user.ID, "member"); err != nil {
		t.Fatalf("membership must survive token expiry: %v", err)
	}

	// el snapshot refleja el estado
	snap, err := f.svc.Stats().Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.ActiveRelationships != 1 || snap.RelationshipsByType["member"] != 1 {
		t.Fatalf("unexpected stats: %+v", snap)
	}

	// purgar al usuario borra su membresía pero no al clubhouse
	if _, err := f.svc.Identities().Purge(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	members, err = f.svc.Graph().LinkedFrom(ctx, club.ID)
	if err != nil || len(members) != 0 {
		t.Fatalf("expected no members after purge, got %d (%v)", len(members), err)
	}
	if _, err := f.svc.Identities().Get(ctx, club.ID); err != nil {
		t.Fatalf("clubhouse must survive: %v", err)
	}
}
