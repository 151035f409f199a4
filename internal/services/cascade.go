package services

import (
	"context"
	"fmt"
	"time"

	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/store"
	"github.com/campuspool/backend/pkg/logger"
)

const (
	cascadeMaxAttempts = 3
	cascadeBackoff     = 200 * time.Millisecond
)

// CascadeService executes the cleanup fan-out after terminal party
// transitions. Steps are best-effort and isolated: one failing step never
// aborts the rest, and nothing here ever reverses the primary transition
// that triggered it. Steps that exhaust their retries are written to the
// system log for the reconciler.
type CascadeService struct {
	store   store.Store
	emitter *Emitter
}

func NewCascadeService(st store.Store, emitter *Emitter) *CascadeService {
	return &CascadeService{store: st, emitter: emitter}
}

// Process dispatches one cascade task. It always returns nil: every failure
// mode is logged and left to the reconciler, because re-running the whole
// task (the queue's retry unit) is idempotent but pointless once the
// individual steps have had their own retry budget.
func (s *CascadeService) Process(ctx context.Context, task *CascadeTask) error {
	switch task.Type {
	case TaskTypePartyDeleted:
		s.partyDeleted(ctx, task)
	case TaskTypeMemberLeft:
		s.memberLeft(ctx, task)
	case TaskTypePartyFilled:
		s.partyFilled(ctx, task)
	case TaskTypeStatusChanged:
		s.statusChanged(ctx, task)
	default:
		logger.Warn().Str("type", task.Type).Msg("unknown cascade task type")
	}
	return nil
}

func (s *CascadeService) partyDeleted(ctx context.Context, task *CascadeTask) {
	// Step 1: cancel every pending request still aimed at the dead party.
	s.retryStep(ctx, "cancel_pending", task.PartyID, func() error {
		pending, err := s.store.PendingRequestsForParty(ctx, task.PartyID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		ids := make([]string, 0, len(pending))
		for _, r := range pending {
			ids = append(ids, r.ID)
		}
		n, err := s.store.TerminalizeRequests(ctx, ids, models.RequestCancelled)
		if err != nil {
			return err
		}
		logger.Info().Int("cancelled", n).Str("party_id", task.PartyID).
			Msg("cancelled pending requests for deleted party")
		return nil
	})

	// Step 2: tell each remaining member the party is gone.
	for _, member := range task.Members {
		if member == task.ActorID {
			continue
		}
		s.emitter.EmitSystemEvent(ctx, task.PartyID,
			fmt.Sprintf("The party to %s was disbanded; %s has been removed", task.DestName, member))
	}

	s.emitter.EmitMembershipChanged(ctx, task.PartyID)
}

func (s *CascadeService) memberLeft(ctx context.Context, task *CascadeTask) {
	s.emitter.EmitSystemEvent(ctx, task.PartyID,
		fmt.Sprintf("%s left the party", task.UserID))
	s.emitter.EmitMembershipChanged(ctx, task.PartyID)
}

func (s *CascadeService) partyFilled(ctx context.Context, task *CascadeTask) {
	// No pending request is auto-declined here: whether the freed-up logic
	// should offer the seat elsewhere is a product decision, and the accept
	// path already declines on its own fresh capacity read.
	s.emitter.EmitSystemEvent(ctx, task.PartyID,
		fmt.Sprintf("The party to %s is now full", task.DestName))
	s.emitter.EmitMembershipChanged(ctx, task.PartyID)
}

func (s *CascadeService) statusChanged(ctx context.Context, task *CascadeTask) {
	switch task.Status {
	case models.PartyClosed:
		s.emitter.EmitSystemEvent(ctx, task.PartyID, "Recruiting closed")
	case models.PartyArrived:
		s.emitter.EmitSystemEvent(ctx, task.PartyID, "The party has arrived")
	}
	s.emitter.EmitMembershipChanged(ctx, task.PartyID)
}

// retryStep runs fn with bounded exponential backoff. A step that still
// fails is recorded for reconciliation and dropped.
func (s *CascadeService) retryStep(ctx context.Context, name, partyID string, fn func() error) {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return
		}
		if attempt == cascadeMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(cascadeBackoff << (attempt - 1)):
			continue
		}
		break
	}

	logger.Error().Err(err).Str("step", name).Str("party_id", partyID).
		Msg("cascade step failed after retries")
	LogError("cascade", name, err.Error(), partyID, "", nil)
}
