package enforce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/store"
)

// contendedStore makes the first n conditional writes lose their race by
// bumping the stored revision right before the put.
type contendedStore struct {
	*store.Memory
	conflicts int
}

func (s *contendedStore) PutParty(ctx context.Context, p *models.Party) error {
	if s.conflicts > 0 {
		s.conflicts--
		interloper, err := s.Memory.GetParty(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.Memory.PutParty(ctx, interloper); err != nil {
			return err
		}
	}
	return s.Memory.PutParty(ctx, p)
}

func fastRunner() *Runner {
	return &Runner{MaxAttempts: 4, Backoff: time.Millisecond}
}

func seedParty(t *testing.T, m *store.Memory) {
	t.Helper()
	err := m.CreateParty(context.Background(), &models.Party{
		ID:         "p1",
		LeaderID:   "leader",
		MaxMembers: 4,
		Members:    models.StringList{"leader"},
		Status:     models.PartyOpen,
	})
	if err != nil {
		t.Fatalf("seed party: %v", err)
	}
}

func TestRunner_Party_AppliesMutation(t *testing.T) {
	m := store.NewMemory()
	seedParty(t, m)

	p, err := fastRunner().Party(context.Background(), m, "p1", func(p *models.Party) error {
		p.AddMember("u1")
		return nil
	})
	if err != nil {
		t.Fatalf("Party failed: %v", err)
	}
	if !p.HasMember("u1") {
		t.Error("returned party should carry the mutation")
	}

	cur, _ := m.GetParty(context.Background(), "p1")
	if !cur.HasMember("u1") {
		t.Error("mutation was not persisted")
	}
}

func TestRunner_Party_RetriesOnConflict(t *testing.T) {
	m := store.NewMemory()
	seedParty(t, m)
	s := &contendedStore{Memory: m, conflicts: 2}

	calls := 0
	p, err := fastRunner().Party(context.Background(), s, "p1", func(p *models.Party) error {
		calls++
		p.AddMember("u1")
		return nil
	})
	if err != nil {
		t.Fatalf("Party failed after conflicts: %v", err)
	}
	if calls != 3 {
		t.Errorf("mutate ran %d times, expected 3 (two lost races, one win)", calls)
	}
	if !p.HasMember("u1") {
		t.Error("mutation lost after retries")
	}
}

func TestRunner_Party_ContentionExhausted(t *testing.T) {
	m := store.NewMemory()
	seedParty(t, m)
	s := &contendedStore{Memory: m, conflicts: 100}

	_, err := fastRunner().Party(context.Background(), s, "p1", func(p *models.Party) error {
		p.AddMember("u1")
		return nil
	})
	if !errors.Is(err, ErrContended) {
		t.Errorf("err = %v, expected ErrContended", err)
	}
}

func TestRunner_Party_MutateErrorAborts(t *testing.T) {
	m := store.NewMemory()
	seedParty(t, m)

	refused := errors.New("invariant violated")
	_, err := fastRunner().Party(context.Background(), m, "p1", func(p *models.Party) error {
		p.AddMember("u1") // mutation on the local copy only
		return refused
	})
	if !errors.Is(err, refused) {
		t.Fatalf("err = %v, expected the mutate error", err)
	}

	// a refused mutation never leaves a partial write behind
	cur, _ := m.GetParty(context.Background(), "p1")
	if cur.HasMember("u1") {
		t.Error("refused mutation must not be written")
	}
	if cur.Revision != 0 {
		t.Errorf("revision = %d, expected 0 (no write happened)", cur.Revision)
	}
}

func TestRunner_Party_NotFound(t *testing.T) {
	m := store.NewMemory()

	_, err := fastRunner().Party(context.Background(), m, "missing", func(p *models.Party) error {
		return nil
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, expected ErrNotFound", err)
	}
}

func TestRunner_Party_ContextCancelled(t *testing.T) {
	m := store.NewMemory()
	seedParty(t, m)
	s := &contendedStore{Memory: m, conflicts: 100}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{MaxAttempts: 4, Backoff: time.Second}
	_, err := r.Party(ctx, s, "p1", func(p *models.Party) error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, expected context.Canceled", err)
	}
}

func TestRunner_Request_RetriesThenResolves(t *testing.T) {
	m := store.NewMemory()
	err := m.CreateRequest(context.Background(), &models.JoinRequest{
		ID:          "r1",
		PartyID:     "p1",
		RequesterID: "u1",
		Status:      models.RequestPending,
	})
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}

	req, err := fastRunner().Request(context.Background(), m, "r1", func(r *models.JoinRequest) error {
		r.Status = models.RequestAccepted
		return nil
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if req.Status != models.RequestAccepted {
		t.Errorf("status = %s, expected accepted", req.Status)
	}

	cur, _ := m.GetRequest(context.Background(), "r1")
	if cur.Revision != 1 {
		t.Errorf("revision = %d, expected 1", cur.Revision)
	}
}
