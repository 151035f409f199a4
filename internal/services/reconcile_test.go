package services

import (
	"context"
	"testing"
	"time"

	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/store"
)

func seedPending(t *testing.T, st *store.Memory, id, partyID, requester string) {
	t.Helper()
	err := st.CreateRequest(context.Background(), &models.JoinRequest{
		ID:          id,
		PartyID:     partyID,
		RequesterID: requester,
		Status:      models.RequestPending,
	})
	if err != nil {
		t.Fatalf("seed request %s: %v", id, err)
	}
}

func TestReconciler_Sweep_Orphans(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	open := e.mustCreateParty(t, "l1", 4)
	closed := e.mustCreateParty(t, "l2", 4)
	e.parties.SetStatus(ctx, closed.ID, "l2", models.PartyClosed)

	seedPending(t, e.store, "ok", open.ID, "u1")
	seedPending(t, e.store, "orphan", "deleted-party", "u2")
	seedPending(t, e.store, "stale", closed.ID, "u3")

	r := NewReconciler(e.store)
	report, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.CancelledOrphans != 2 {
		t.Errorf("cancelled orphans = %d, expected 2", report.CancelledOrphans)
	}

	ok, _ := e.store.GetRequest(ctx, "ok")
	if ok.Status != models.RequestPending {
		t.Errorf("healthy request = %s, expected pending", ok.Status)
	}
	for _, id := range []string{"orphan", "stale"} {
		cur, _ := e.store.GetRequest(ctx, id)
		if cur.Status != models.RequestCancelled {
			t.Errorf("request %s = %s, expected cancelled", id, cur.Status)
		}
	}
}

func TestReconciler_Sweep_Duplicates(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p1 := e.mustCreateParty(t, "l1", 4)
	p2 := e.mustCreateParty(t, "l2", 4)

	seedPending(t, e.store, "older", p1.ID, "rider")
	time.Sleep(2 * time.Millisecond)
	seedPending(t, e.store, "newer", p2.ID, "rider")

	r := NewReconciler(e.store)
	report, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.CancelledDuplicates != 1 {
		t.Errorf("cancelled duplicates = %d, expected 1", report.CancelledDuplicates)
	}

	older, _ := e.store.GetRequest(ctx, "older")
	if older.Status != models.RequestPending {
		t.Errorf("oldest request = %s, expected to survive", older.Status)
	}
	newer, _ := e.store.GetRequest(ctx, "newer")
	if newer.Status != models.RequestCancelled {
		t.Errorf("duplicate request = %s, expected cancelled", newer.Status)
	}
}

func TestReconciler_Sweep_SeatedRequesters(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	target := e.mustCreateParty(t, "l1", 4)
	home := e.mustCreateParty(t, "l2", 4)
	e.parties.TryAddMember(ctx, home.ID, "rider")

	// a pending request left behind by a rider who was seated elsewhere
	seedPending(t, e.store, "stale", target.ID, "rider")
	seedPending(t, e.store, "healthy", target.ID, "free-rider")

	r := NewReconciler(e.store)
	report, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.CancelledSeated != 1 {
		t.Errorf("cancelled seated = %d, expected 1", report.CancelledSeated)
	}

	stale, _ := e.store.GetRequest(ctx, "stale")
	if stale.Status != models.RequestCancelled {
		t.Errorf("stale request = %s, expected cancelled", stale.Status)
	}
	healthy, _ := e.store.GetRequest(ctx, "healthy")
	if healthy.Status != models.RequestPending {
		t.Errorf("healthy request = %s, expected pending", healthy.Status)
	}
}

func TestReconciler_Sweep_Violations(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	// corrupt state planted directly in the store: an overfull party and a
	// party whose leader is not a member
	e.store.CreateParty(ctx, &models.Party{
		ID:         "overfull",
		LeaderID:   "l1",
		MaxMembers: 2,
		Members:    models.StringList{"l1", "a", "b"},
		Status:     models.PartyOpen,
	})
	e.store.CreateParty(ctx, &models.Party{
		ID:         "leaderless",
		LeaderID:   "ghost",
		MaxMembers: 4,
		Members:    models.StringList{"a"},
		Status:     models.PartyOpen,
	})

	r := NewReconciler(e.store)
	report, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.Violations != 2 {
		t.Errorf("violations = %d, expected 2", report.Violations)
	}

	// detection only; the sweep never edits party membership
	p, _ := e.store.GetParty(ctx, "overfull")
	if len(p.Members) != 3 {
		t.Error("sweep must not rewrite party members")
	}
}

func TestReconciler_Sweep_CleanState(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	e.requests.Create(ctx, p.ID, "rider")

	r := NewReconciler(e.store)
	report, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if report.CancelledOrphans != 0 || report.CancelledDuplicates != 0 || report.Violations != 0 {
		t.Errorf("clean state produced corrections: %+v", report)
	}
}

func TestReconciler_StartStop(t *testing.T) {
	e := newEnv()

	r := NewReconciler(e.store)
	if err := r.Start("@every 1h"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Stop()

	if err := NewReconciler(e.store).Start("not a cron spec"); err == nil {
		t.Error("invalid cron spec should be rejected")
	}
}
