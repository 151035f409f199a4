package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuspool/backend/internal/enforce"
	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/store"
	"github.com/campuspool/backend/pkg/logger"

	"github.com/google/uuid"
)

// PartyService is the party registry: it is the only writer of a party's
// member set and status.
type PartyService struct {
	store   store.Store
	runner  *enforce.Runner
	emitter *Emitter
	queue   TaskQueue
}

func NewPartyService(st store.Store, queue TaskQueue, emitter *Emitter) *PartyService {
	return &PartyService{
		store:   st,
		runner:  enforce.New(),
		emitter: emitter,
		queue:   queue,
	}
}

type CreatePartyRequest struct {
	Departure     models.Place `json:"departure" binding:"required"`
	Destination   models.Place `json:"destination" binding:"required"`
	DepartureTime time.Time    `json:"departure_time" binding:"required"`
	MaxMembers    int          `json:"max_members" binding:"required"`
	Tags          []string     `json:"tags"`
	Detail        string       `json:"detail"`
}

func (r *CreatePartyRequest) validate() error {
	if r.MaxMembers < models.MinPartySize || r.MaxMembers > models.MaxPartySize {
		return fmt.Errorf("%w: max_members must be between %d and %d",
			ErrValidation, models.MinPartySize, models.MaxPartySize)
	}
	if r.Departure.Name == "" || r.Destination.Name == "" {
		return fmt.Errorf("%w: departure and destination are required", ErrValidation)
	}
	if r.Departure.Name == r.Destination.Name {
		return fmt.Errorf("%w: departure and destination must differ", ErrValidation)
	}
	if len(r.Tags) > models.MaxPartyTags {
		return fmt.Errorf("%w: at most %d tags", ErrValidation, models.MaxPartyTags)
	}
	if r.DepartureTime.IsZero() {
		return fmt.Errorf("%w: departure_time is required", ErrValidation)
	}
	return nil
}

// Create opens a new party with leaderID as its sole member.
func (s *PartyService) Create(ctx context.Context, leaderID string, req *CreatePartyRequest) (*models.Party, error) {
	if leaderID == "" {
		return nil, fmt.Errorf("%w: leader id is required", ErrValidation)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	// One party per user: the "current party" of a user is derived by
	// membership query, so it has to stay unique.
	existing, err := s.store.PartiesWithMember(ctx, leaderID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyMember
	}

	// An outstanding join request binds the rider to its target party. If
	// this rider opened their own party now, a racing accept could seat
	// them in two parties at once.
	if _, err := s.store.PendingRequestForUser(ctx, leaderID); err == nil {
		return nil, ErrAlreadyHasPendingRequest
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	party := &models.Party{
		ID:            uuid.NewString(),
		LeaderID:      leaderID,
		Departure:     req.Departure,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		MaxMembers:    req.MaxMembers,
		Members:       models.StringList{leaderID},
		Tags:          models.StringList(req.Tags),
		Detail:        req.Detail,
		Status:        models.PartyOpen,
	}

	if err := s.store.CreateParty(ctx, party); err != nil {
		return nil, err
	}

	LogInfo("party", "create", "party created", party.ID, leaderID, nil)
	s.emitter.EmitSystemEvent(ctx, party.ID,
		fmt.Sprintf("Party chat to %s opened", party.Destination.Name))

	return party, nil
}

// ListOpen returns the live party board: open parties are joinable, closed
// ones stay visible but refuse new members, arrived ones are gone.
func (s *PartyService) ListOpen(ctx context.Context) ([]models.Party, error) {
	return s.store.ListParties(ctx, models.PartyOpen, models.PartyClosed)
}

func (s *PartyService) Get(ctx context.Context, id string) (*models.Party, error) {
	p, err := s.store.GetParty(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPartyNotFound
	}
	return p, err
}

// PartyOf derives the user's current party by membership query. There is no
// stored back-reference to fall out of sync.
func (s *PartyService) PartyOf(ctx context.Context, uid string) (*models.Party, error) {
	parties, err := s.store.PartiesWithMember(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(parties) == 0 {
		return nil, ErrPartyNotFound
	}
	return &parties[0], nil
}

// TryAddMember adds userID to the party. The capacity check runs against a
// read taken immediately before the conditional write; "is there room" is the
// one question that can never be answered from cached state.
func (s *PartyService) TryAddMember(ctx context.Context, partyID, userID string) (*models.Party, error) {
	p, err := s.runner.Party(ctx, s.store, partyID, func(p *models.Party) error {
		if p.Status != models.PartyOpen {
			return ErrPartyNotOpen
		}
		if p.HasMember(userID) {
			return ErrAlreadyMember
		}
		if p.IsFull() {
			return ErrCapacityExceeded
		}
		p.AddMember(userID)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}

	LogInfo("party", "add_member", "member added", partyID, userID, nil)
	s.emitter.EmitSystemEvent(ctx, partyID, fmt.Sprintf("%s joined the party", userID))
	s.emitter.EmitMembershipChanged(ctx, partyID)

	if p.IsFull() {
		s.enqueue(&CascadeTask{
			Type:     TaskTypePartyFilled,
			PartyID:  partyID,
			Members:  p.Members,
			DestName: p.Destination.Name,
		})
	}
	return p, nil
}

// RemoveMember handles a voluntary leave. A leader who is the last member
// dissolves the party; a leader with members remaining is refused, so
// leadership never silently vanishes. Returns nil when the party was
// dissolved as a side effect.
func (s *PartyService) RemoveMember(ctx context.Context, partyID, userID string) (*models.Party, error) {
	cur, err := s.store.GetParty(ctx, partyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID == cur.LeaderID {
		if len(cur.Members) > 1 {
			return nil, ErrLeaderCannotLeave
		}
		if err := s.Delete(ctx, partyID, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	// Removing an absent member is a harmless no-op, which keeps the
	// operation retryable after an unknown-outcome timeout.
	p, err := s.runner.Party(ctx, s.store, partyID, func(p *models.Party) error {
		p.RemoveMember(userID)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}

	LogInfo("party", "remove_member", "member left", partyID, userID, nil)
	s.enqueue(&CascadeTask{
		Type:    TaskTypeMemberLeft,
		PartyID: partyID,
		UserID:  userID,
	})
	return p, nil
}

// SetStatus advances the party lifecycle. Transitions are strictly monotonic;
// anything else is refused before a write happens.
func (s *PartyService) SetStatus(ctx context.Context, partyID, actorID string, next models.PartyStatus) (*models.Party, error) {
	if next != models.PartyClosed && next != models.PartyArrived {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}

	p, err := s.runner.Party(ctx, s.store, partyID, func(p *models.Party) error {
		if p.LeaderID != actorID {
			return ErrNotLeader
		}
		if !p.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}
		p.Status = next
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPartyNotFound
		}
		return nil, err
	}

	LogInfo("party", "set_status", string(next), partyID, actorID, nil)
	s.enqueue(&CascadeTask{
		Type:    TaskTypeStatusChanged,
		PartyID: partyID,
		Status:  next,
	})
	return p, nil
}

// Delete dissolves the party. Only the leader may do this. The cascade is
// handed off before the row is removed; the deletion wins even if cleanup
// lags, because orphaned pending requests are self-healing.
func (s *PartyService) Delete(ctx context.Context, partyID, actorID string) error {
	p, err := s.store.GetParty(ctx, partyID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrPartyNotFound
	}
	if err != nil {
		return err
	}
	if p.LeaderID != actorID {
		return ErrNotLeader
	}

	s.enqueue(&CascadeTask{
		Type:     TaskTypePartyDeleted,
		PartyID:  partyID,
		ActorID:  actorID,
		Members:  p.Members,
		DestName: p.Destination.Name,
	})

	if err := s.store.DeleteParty(ctx, partyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// another device of the leader won the race; the cascade ran
			return nil
		}
		return err
	}

	LogInfo("party", "delete", "party deleted", partyID, actorID, nil)
	return nil
}

func (s *PartyService) enqueue(task *CascadeTask) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(task); err != nil {
		logger.Error().Err(err).Str("type", task.Type).Str("party_id", task.PartyID).
			Msg("failed to enqueue cascade task")
		LogError("cascade", "enqueue", err.Error(), task.PartyID, "", task)
	}
}
