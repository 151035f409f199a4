package services

import (
	"context"
	"errors"
	"testing"

	"github.com/campuspool/backend/internal/models"
)

func TestRequestService_Create(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)

	req, err := e.requests.Create(ctx, p.ID, "rider")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.Status != models.RequestPending {
		t.Errorf("status = %s, expected pending", req.Status)
	}
	if req.LeaderID != "leader" {
		t.Errorf("leader snapshot = %s, expected leader", req.LeaderID)
	}
	if req.RequesterID != "rider" {
		t.Errorf("requester = %s, expected rider", req.RequesterID)
	}
}

func TestRequestService_Create_RetryIsIdempotent(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)

	first, err := e.requests.Create(ctx, p.ID, "rider")
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	second, err := e.requests.Create(ctx, p.ID, "rider")
	if err != nil {
		t.Fatalf("retried Create failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry returned %s, expected the existing request %s", second.ID, first.ID)
	}
}

func TestRequestService_Create_OnePendingPerRider(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p1 := e.mustCreateParty(t, "l1", 4)
	p2 := e.mustCreateParty(t, "l2", 4)

	if _, err := e.requests.Create(ctx, p1.ID, "rider"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	// a second pending against a different party is refused, not
	// auto-cancelled
	_, err := e.requests.Create(ctx, p2.ID, "rider")
	if !errors.Is(err, ErrAlreadyHasPendingRequest) {
		t.Errorf("err = %v, expected ErrAlreadyHasPendingRequest", err)
	}

	pending, _ := e.requests.PendingForUser(ctx, "rider")
	if pending == nil || pending.PartyID != p1.ID {
		t.Error("the original pending request should survive untouched")
	}

	// cancelling the old request frees the rider to court the other party
	if _, err := e.requests.Cancel(ctx, pending.ID, "rider"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := e.requests.Create(ctx, p2.ID, "rider"); err != nil {
		t.Errorf("request after cancel failed: %v", err)
	}
}

func TestRequestService_Create_MemberCannotRequest(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p1 := e.mustCreateParty(t, "l1", 4)
	p2 := e.mustCreateParty(t, "l2", 4)
	e.parties.TryAddMember(ctx, p1.ID, "rider")

	if _, err := e.requests.Create(ctx, p2.ID, "rider"); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("err = %v, expected ErrAlreadyMember", err)
	}
}

func TestRequestService_Create_AdvisoryChecks(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	if _, err := e.requests.Create(ctx, "missing", "rider"); !errors.Is(err, ErrPartyNotFound) {
		t.Errorf("missing party err = %v, expected ErrPartyNotFound", err)
	}

	closed := e.mustCreateParty(t, "l1", 4)
	e.parties.SetStatus(ctx, closed.ID, "l1", models.PartyClosed)
	if _, err := e.requests.Create(ctx, closed.ID, "rider"); !errors.Is(err, ErrPartyNotOpen) {
		t.Errorf("closed party err = %v, expected ErrPartyNotOpen", err)
	}

	full := e.mustCreateParty(t, "l2", 2)
	e.parties.TryAddMember(ctx, full.ID, "u1")
	if _, err := e.requests.Create(ctx, full.ID, "rider"); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("full party err = %v, expected ErrCapacityExceeded", err)
	}
}

func TestRequestService_Accept(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	resolved, err := e.requests.Accept(ctx, req.ID, "leader")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if resolved.Status != models.RequestAccepted {
		t.Errorf("status = %s, expected accepted", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Error("resolved request should carry resolved_at")
	}

	party, _ := e.parties.Get(ctx, p.ID)
	if !party.HasMember("rider") {
		t.Error("accepted rider should be a member")
	}
}

func TestRequestService_Accept_LeaderOnly(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	for _, actor := range []string{"rider", "stranger"} {
		if _, err := e.requests.Accept(ctx, req.ID, actor); !errors.Is(err, ErrNotLeader) {
			t.Errorf("Accept by %s err = %v, expected ErrNotLeader", actor, err)
		}
	}
}

func TestRequestService_Accept_FullParty_AutoDeclines(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	// A(3): leader + one seat taken leaves one seat. B and C both request;
	// accepting B fills the party, accepting C must fail and auto-decline.
	p := e.mustCreateParty(t, "leader", 3)
	e.parties.TryAddMember(ctx, p.ID, "early")

	reqB, _ := e.requests.Create(ctx, p.ID, "B")
	reqC, _ := e.requests.Create(ctx, p.ID, "C")

	if _, err := e.requests.Accept(ctx, reqB.ID, "leader"); err != nil {
		t.Fatalf("accept B failed: %v", err)
	}

	_, err := e.requests.Accept(ctx, reqC.ID, "leader")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("accept C err = %v, expected ErrCapacityExceeded", err)
	}

	// C's request must not stay pending against a full party
	cur, _ := e.store.GetRequest(ctx, reqC.ID)
	if cur.Status != models.RequestDeclined {
		t.Errorf("C's request = %s, expected declined", cur.Status)
	}

	party, _ := e.parties.Get(ctx, p.ID)
	if len(party.Members) != 3 {
		t.Errorf("members = %d, expected exactly max_members", len(party.Members))
	}
	if party.HasMember("C") {
		t.Error("C must not have been admitted")
	}
}

func TestRequestService_Accept_ClosedParty_AutoDeclines(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")
	e.parties.SetStatus(ctx, p.ID, "leader", models.PartyClosed)

	_, err := e.requests.Accept(ctx, req.ID, "leader")
	if !errors.Is(err, ErrPartyNotOpen) {
		t.Fatalf("err = %v, expected ErrPartyNotOpen", err)
	}

	cur, _ := e.store.GetRequest(ctx, req.ID)
	if cur.Status != models.RequestDeclined {
		t.Errorf("request = %s, expected declined", cur.Status)
	}
}

func TestRequestService_Accept_MissingParty_Terminalizes(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	// the party vanishes out from under the request
	if err := e.store.DeleteParty(ctx, p.ID); err != nil {
		t.Fatalf("delete party: %v", err)
	}

	_, err := e.requests.Accept(ctx, req.ID, "leader")
	if !errors.Is(err, ErrPartyNotFound) {
		t.Fatalf("err = %v, expected ErrPartyNotFound", err)
	}

	cur, _ := e.store.GetRequest(ctx, req.ID)
	if cur.Status != models.RequestCancelled {
		t.Errorf("orphan request = %s, expected cancelled", cur.Status)
	}
}

func TestRequestService_Accept_RequesterSeatedElsewhere_AutoDeclines(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	// the rider lands in another party through a racing admission
	other := e.mustCreateParty(t, "other", 4)
	if _, err := e.parties.TryAddMember(ctx, other.ID, "rider"); err != nil {
		t.Fatalf("seat rider elsewhere: %v", err)
	}

	_, err := e.requests.Accept(ctx, req.ID, "leader")
	if !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("accept err = %v, expected ErrAlreadyMember", err)
	}

	// the stale request must not stay pending, and the rider must still
	// belong to exactly one party
	cur, _ := e.store.GetRequest(ctx, req.ID)
	if cur.Status != models.RequestDeclined {
		t.Errorf("request = %s, expected declined", cur.Status)
	}
	memberships, _ := e.store.PartiesWithMember(ctx, "rider")
	if len(memberships) != 1 || memberships[0].ID != other.ID {
		t.Errorf("rider belongs to %d parties, expected only the racing one", len(memberships))
	}
	target, _ := e.parties.Get(ctx, p.ID)
	if target.HasMember("rider") {
		t.Error("rider must not have been admitted to the requested party")
	}
}

func TestRequestService_Accept_AlreadyResolved(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	if _, err := e.requests.Cancel(ctx, req.ID, "rider"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := e.requests.Accept(ctx, req.ID, "leader")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("err = %v, expected ErrAlreadyResolved", err)
	}
	party, _ := e.parties.Get(ctx, p.ID)
	if party.HasMember("rider") {
		t.Error("cancelled request must not admit the rider")
	}
}

func TestRequestService_Accept_RetryAfterSuccess(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	if _, err := e.requests.Accept(ctx, req.ID, "leader"); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	// a duplicate accept finds the request terminal and stops there
	_, err := e.requests.Accept(ctx, req.ID, "leader")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("duplicate accept err = %v, expected ErrAlreadyResolved", err)
	}

	party, _ := e.parties.Get(ctx, p.ID)
	count := 0
	for _, m := range party.Members {
		if m == "rider" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("rider appears %d times, expected once", count)
	}
}

func TestRequestService_Decline(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	if _, err := e.requests.Decline(ctx, req.ID, "rider"); !errors.Is(err, ErrNotLeader) {
		t.Errorf("requester decline err = %v, expected ErrNotLeader", err)
	}

	resolved, err := e.requests.Decline(ctx, req.ID, "leader")
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if resolved.Status != models.RequestDeclined {
		t.Errorf("status = %s, expected declined", resolved.Status)
	}

	party, _ := e.parties.Get(ctx, p.ID)
	if party.HasMember("rider") {
		t.Error("declined rider must not be a member")
	}

	// declined, the rider may immediately request elsewhere
	other := e.mustCreateParty(t, "other", 4)
	if _, err := e.requests.Create(ctx, other.ID, "rider"); err != nil {
		t.Errorf("rider should be free after decline, got %v", err)
	}
}

func TestRequestService_Decline_AfterPartyGone(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")
	e.store.DeleteParty(ctx, p.ID)

	// the denormalized leader id still authorizes the decline
	resolved, err := e.requests.Decline(ctx, req.ID, "leader")
	if err != nil {
		t.Fatalf("Decline after party gone failed: %v", err)
	}
	if resolved.Status != models.RequestDeclined {
		t.Errorf("status = %s, expected declined", resolved.Status)
	}
}

func TestRequestService_Cancel(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	if _, err := e.requests.Cancel(ctx, req.ID, "leader"); !errors.Is(err, ErrNotRequester) {
		t.Errorf("leader cancel err = %v, expected ErrNotRequester", err)
	}

	resolved, err := e.requests.Cancel(ctx, req.ID, "rider")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if resolved.Status != models.RequestCancelled {
		t.Errorf("status = %s, expected cancelled", resolved.Status)
	}

	// cancelling again is a no-op, not an error
	again, err := e.requests.Cancel(ctx, req.ID, "rider")
	if err != nil {
		t.Fatalf("repeat Cancel failed: %v", err)
	}
	if again.Status != models.RequestCancelled {
		t.Errorf("repeat status = %s, expected cancelled", again.Status)
	}
}

func TestRequestService_Cancel_AfterAccept(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")
	e.requests.Accept(ctx, req.ID, "leader")

	// too late: the accept won, and cancel reports the settled outcome
	got, err := e.requests.Cancel(ctx, req.ID, "rider")
	if err != nil {
		t.Fatalf("Cancel after accept failed: %v", err)
	}
	if got.Status != models.RequestAccepted {
		t.Errorf("status = %s, expected accepted to stand", got.Status)
	}
	party, _ := e.parties.Get(ctx, p.ID)
	if !party.HasMember("rider") {
		t.Error("membership from the winning accept must stand")
	}
}

func TestRequestService_PendingForUser(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	got, err := e.requests.PendingForUser(ctx, "rider")
	if err != nil {
		t.Fatalf("PendingForUser failed: %v", err)
	}
	if got != nil {
		t.Errorf("pending = %v, expected nil for a fresh user", got)
	}

	p := e.mustCreateParty(t, "leader", 4)
	req, _ := e.requests.Create(ctx, p.ID, "rider")

	got, err = e.requests.PendingForUser(ctx, "rider")
	if err != nil {
		t.Fatalf("PendingForUser failed: %v", err)
	}
	if got == nil || got.ID != req.ID {
		t.Errorf("pending = %v, expected %s", got, req.ID)
	}
}

func TestRequestService_PendingForParty(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	p := e.mustCreateParty(t, "leader", 4)
	e.requests.Create(ctx, p.ID, "r1")

	if _, err := e.requests.PendingForParty(ctx, p.ID, "r1"); !errors.Is(err, ErrNotLeader) {
		t.Errorf("non-leader inbox err = %v, expected ErrNotLeader", err)
	}

	inbox, err := e.requests.PendingForParty(ctx, p.ID, "leader")
	if err != nil {
		t.Fatalf("PendingForParty failed: %v", err)
	}
	if len(inbox) != 1 || inbox[0].RequesterID != "r1" {
		t.Errorf("inbox = %v, expected r1's request", inbox)
	}
}
