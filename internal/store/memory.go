package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campuspool/backend/internal/models"
)

// Memory is an in-process Store with the same conditional-write semantics as
// the database-backed one. It backs tests and the embedded (no external
// database) mode.
type Memory struct {
	mu       sync.RWMutex
	parties  map[string]*models.Party
	requests map[string]*models.JoinRequest
}

func NewMemory() *Memory {
	return &Memory{
		parties:  make(map[string]*models.Party),
		requests: make(map[string]*models.JoinRequest),
	}
}

func copyParty(p *models.Party) *models.Party {
	cp := *p
	cp.Members = append(models.StringList{}, p.Members...)
	cp.Tags = append(models.StringList{}, p.Tags...)
	return &cp
}

func copyRequest(r *models.JoinRequest) *models.JoinRequest {
	cp := *r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

func (m *Memory) GetParty(ctx context.Context, id string) (*models.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.parties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyParty(p), nil
}

func (m *Memory) CreateParty(ctx context.Context, p *models.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.parties[p.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.parties[p.ID] = copyParty(p)
	return nil
}

func (m *Memory) PutParty(ctx context.Context, p *models.Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.parties[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != p.Revision {
		return ErrRevisionConflict
	}
	p.Revision++
	p.UpdatedAt = time.Now()
	m.parties[p.ID] = copyParty(p)
	return nil
}

func (m *Memory) DeleteParty(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.parties[id]; !ok {
		return ErrNotFound
	}
	delete(m.parties, id)
	return nil
}

func (m *Memory) ListParties(ctx context.Context, statuses ...models.PartyStatus) ([]models.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Party
	for _, p := range m.parties {
		if len(statuses) > 0 && !statusIn(p.Status, statuses) {
			continue
		}
		out = append(out, *copyParty(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	return out, nil
}

func (m *Memory) PartiesWithMember(ctx context.Context, uid string) ([]models.Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Party
	for _, p := range m.parties {
		if p.Status == models.PartyArrived {
			continue
		}
		if p.HasMember(uid) {
			out = append(out, *copyParty(p))
		}
	}
	return out, nil
}

func (m *Memory) GetRequest(ctx context.Context, id string) (*models.JoinRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRequest(r), nil
}

func (m *Memory) CreateRequest(ctx context.Context, r *models.JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[r.ID]; ok {
		return ErrAlreadyExists
	}
	r.CreatedAt = time.Now()
	m.requests[r.ID] = copyRequest(r)
	return nil
}

func (m *Memory) PutRequest(ctx context.Context, r *models.JoinRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.requests[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != r.Revision {
		return ErrRevisionConflict
	}
	r.Revision++
	m.requests[r.ID] = copyRequest(r)
	return nil
}

func (m *Memory) PendingRequestForUser(ctx context.Context, uid string) (*models.JoinRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.JoinRequest
	for _, r := range m.requests {
		if r.RequesterID != uid || r.Status != models.RequestPending {
			continue
		}
		if found == nil || r.CreatedAt.Before(found.CreatedAt) {
			found = r
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return copyRequest(found), nil
}

func (m *Memory) PendingRequestsForParty(ctx context.Context, partyID string) ([]models.JoinRequest, error) {
	return m.requestsForParty(partyID, true)
}

func (m *Memory) RequestsForParty(ctx context.Context, partyID string) ([]models.JoinRequest, error) {
	return m.requestsForParty(partyID, false)
}

func (m *Memory) requestsForParty(partyID string, pendingOnly bool) ([]models.JoinRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.JoinRequest
	for _, r := range m.requests {
		if r.PartyID != partyID {
			continue
		}
		if pendingOnly && r.Status != models.RequestPending {
			continue
		}
		out = append(out, *copyRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) PendingRequests(ctx context.Context) ([]models.JoinRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.JoinRequest
	for _, r := range m.requests {
		if r.Status == models.RequestPending {
			out = append(out, *copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) TerminalizeRequests(ctx context.Context, ids []string, status models.RequestStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	now := time.Now()
	for _, chunk := range Chunk(ids) {
		for _, id := range chunk {
			r, ok := m.requests[id]
			if !ok || r.Status != models.RequestPending {
				continue
			}
			r.Status = status
			r.ResolvedAt = &now
			r.Revision++
			n++
		}
	}
	return n, nil
}

func statusIn(s models.PartyStatus, statuses []models.PartyStatus) bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}
