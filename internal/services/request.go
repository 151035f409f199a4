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

// RequestService is the join-request manager: it is the only writer of a
// request's status. Member adds ride through PartyService, never through a
// side channel, so the causal chain stays explicit.
type RequestService struct {
	store   store.Store
	parties *PartyService
	runner  *enforce.Runner
	emitter *Emitter
}

func NewRequestService(st store.Store, parties *PartyService, emitter *Emitter) *RequestService {
	return &RequestService{
		store:   st,
		parties: parties,
		runner:  enforce.New(),
		emitter: emitter,
	}
}

// Create files a pending join request for requesterID against partyID.
//
// The capacity and status pre-checks here are advisory: they only stop
// obviously futile requests. Between this check and a later accept, another
// rider may take the last seat; the authoritative check is the fresh re-read
// inside TryAddMember at accept time.
func (s *RequestService) Create(ctx context.Context, partyID, requesterID string) (*models.JoinRequest, error) {
	if partyID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: party id and requester id are required", ErrValidation)
	}

	// One outstanding request per rider, globally. A pending request for the
	// same party is returned as-is so a retried tap stays idempotent.
	if pending, err := s.store.PendingRequestForUser(ctx, requesterID); err == nil {
		if pending.PartyID == partyID {
			return pending, nil
		}
		// The manager refuses rather than auto-cancelling; dropping the old
		// request is the rider's call, not ours.
		return nil, ErrAlreadyHasPendingRequest
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// A rider who already sits in a party cannot court another one.
	memberships, err := s.store.PartiesWithMember(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if len(memberships) > 0 {
		return nil, ErrAlreadyMember
	}

	party, err := s.store.GetParty(ctx, partyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, err
	}
	if party.Status != models.PartyOpen {
		return nil, ErrPartyNotOpen
	}
	if party.IsFull() {
		return nil, ErrCapacityExceeded
	}

	req := &models.JoinRequest{
		ID:          uuid.NewString(),
		PartyID:     partyID,
		LeaderID:    party.LeaderID, // leader at request time
		RequesterID: requesterID,
		Status:      models.RequestPending,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	LogInfo("request", "create", "join request filed", partyID, requesterID, nil)
	s.emitter.EmitMembershipChanged(ctx, partyID)
	return req, nil
}

// Accept resolves a pending request in the requester's favor. Only the
// party's current leader may call it. The member add happens first, against a
// fresh capacity read; losing that race auto-declines the request so nothing
// stays pending against a full party.
func (s *RequestService) Accept(ctx context.Context, requestID, actorID string) (*models.JoinRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.Status.Terminal() {
		return nil, ErrAlreadyResolved
	}

	party, err := s.store.GetParty(ctx, req.PartyID)
	if errors.Is(err, store.ErrNotFound) {
		// The party is gone; terminalize the orphan so it stops looking
		// actionable. This is the self-healing path for lagged cleanup.
		s.terminalize(ctx, requestID, models.RequestCancelled)
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, err
	}
	if party.LeaderID != actorID {
		return nil, ErrNotLeader
	}

	// The requester may have been seated elsewhere since the request was
	// filed (a racing accept, or a party opened before the request existed).
	// Admitting them here would put one rider in two parties, so the
	// request is declined instead.
	memberships, err := s.store.PartiesWithMember(ctx, req.RequesterID)
	if err != nil {
		return nil, err
	}
	for i := range memberships {
		if memberships[i].ID != req.PartyID {
			if done, derr := s.terminalize(ctx, requestID, models.RequestDeclined); derr == nil && done {
				LogInfo("request", "auto_decline", "requester already in another party", req.PartyID, req.RequesterID, nil)
				s.emitter.EmitMembershipChanged(ctx, req.PartyID)
			}
			return nil, ErrAlreadyMember
		}
	}

	_, addErr := s.parties.TryAddMember(ctx, req.PartyID, req.RequesterID)
	switch {
	case addErr == nil, errors.Is(addErr, ErrAlreadyMember):
		// already a member counts as success for an accept retry
	case errors.Is(addErr, ErrCapacityExceeded), errors.Is(addErr, ErrPartyNotOpen):
		// the request lost the race for the seat; it must not stay pending
		if done, derr := s.terminalize(ctx, requestID, models.RequestDeclined); derr == nil && done {
			LogInfo("request", "auto_decline", addErr.Error(), req.PartyID, req.RequesterID, nil)
			s.emitter.EmitMembershipChanged(ctx, req.PartyID)
		}
		return nil, addErr
	case errors.Is(addErr, ErrPartyNotFound):
		s.terminalize(ctx, requestID, models.RequestCancelled)
		return nil, ErrPartyNotFound
	default:
		return nil, addErr
	}

	resolved, err := s.resolve(ctx, requestID, models.RequestAccepted)
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			// A cancel landed between the member add and the status write.
			// Whoever wrote last owns the outcome, so take the member back
			// out; the removal is idempotent and best-effort.
			if cur, gerr := s.store.GetRequest(ctx, requestID); gerr == nil &&
				cur.Status == models.RequestCancelled {
				if _, rerr := s.parties.RemoveMember(ctx, req.PartyID, req.RequesterID); rerr != nil &&
					!errors.Is(rerr, ErrPartyNotFound) {
					logger.Warn().Err(rerr).Str("request_id", requestID).
						Msg("could not undo member add after cancelled accept")
				}
			}
		}
		return nil, err
	}

	LogInfo("request", "accept", "join request accepted", req.PartyID, req.RequesterID, nil)
	return resolved, nil
}

// Decline resolves a pending request against the requester. Leader-only; the
// denormalized leader id is used so a request can still be declined after its
// party vanished.
func (s *RequestService) Decline(ctx context.Context, requestID, actorID string) (*models.JoinRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.LeaderID != actorID {
		return nil, ErrNotLeader
	}

	resolved, err := s.resolve(ctx, requestID, models.RequestDeclined)
	if err != nil {
		return nil, err
	}

	LogInfo("request", "decline", "join request declined", req.PartyID, req.RequesterID, nil)
	s.emitter.EmitMembershipChanged(ctx, req.PartyID)
	return resolved, nil
}

// Cancel withdraws the requester's own pending request. Calling it on an
// already-terminal request is a no-op, not an error, so retries are safe even
// when an accept is in flight.
func (s *RequestService) Cancel(ctx context.Context, requestID, actorID string) (*models.JoinRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID {
		return nil, ErrNotRequester
	}
	if req.Status.Terminal() {
		return req, nil
	}

	resolved, err := s.resolve(ctx, requestID, models.RequestCancelled)
	if errors.Is(err, ErrAlreadyResolved) {
		// lost the race to an accept or decline; idempotent no-op
		return s.getRequest(ctx, requestID)
	}
	if err != nil {
		return nil, err
	}

	LogInfo("request", "cancel", "join request cancelled", req.PartyID, req.RequesterID, nil)
	s.emitter.EmitMembershipChanged(ctx, req.PartyID)
	return resolved, nil
}

// PendingForUser returns the user's outstanding request, or nil.
func (s *RequestService) PendingForUser(ctx context.Context, uid string) (*models.JoinRequest, error) {
	req, err := s.store.PendingRequestForUser(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return req, err
}

// PendingForParty returns the leader's inbox, oldest first.
func (s *RequestService) PendingForParty(ctx context.Context, partyID, actorID string) ([]models.JoinRequest, error) {
	party, err := s.store.GetParty(ctx, partyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPartyNotFound
	}
	if err != nil {
		return nil, err
	}
	if party.LeaderID != actorID {
		return nil, ErrNotLeader
	}
	return s.store.PendingRequestsForParty(ctx, partyID)
}

func (s *RequestService) getRequest(ctx context.Context, id string) (*models.JoinRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	return req, err
}

// resolve moves a pending request into a terminal state via the conditional
// write loop. A request found terminal on the fresh read yields
// ErrAlreadyResolved.
func (s *RequestService) resolve(ctx context.Context, requestID string, status models.RequestStatus) (*models.JoinRequest, error) {
	req, err := s.runner.Request(ctx, s.store, requestID, func(r *models.JoinRequest) error {
		if r.Status.Terminal() {
			return ErrAlreadyResolved
		}
		now := time.Now()
		r.Status = status
		r.ResolvedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	return req, err
}

// terminalize is resolve without the caller caring about race losses.
// Returns whether this call performed the transition.
func (s *RequestService) terminalize(ctx context.Context, requestID string, status models.RequestStatus) (bool, error) {
	_, err := s.resolve(ctx, requestID, status)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrAlreadyResolved) || errors.Is(err, ErrRequestNotFound) {
		return false, nil
	}
	return false, err
}
