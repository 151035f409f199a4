package services

import (
	"context"
	"errors"

	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/store"
	"github.com/campuspool/backend/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Reconciler is the periodic self-healing sweep. The coordination protocol
// accepts narrow race windows; this job makes sure whatever slips through
// them is detected and corrected after the fact.
type Reconciler struct {
	store store.Store
	cron  *cron.Cron
}

func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Start schedules the sweep with the given cron spec.
func (r *Reconciler) Start(spec string) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(spec, func() {
		report, err := r.Sweep(context.Background())
		if err != nil {
			logger.Error().Err(err).Msg("reconciliation sweep failed")
			return
		}
		if report.CancelledOrphans > 0 || report.CancelledDuplicates > 0 ||
			report.CancelledSeated > 0 || report.Violations > 0 {
			logger.Info().
				Int("cancelled_orphans", report.CancelledOrphans).
				Int("cancelled_duplicates", report.CancelledDuplicates).
				Int("cancelled_seated", report.CancelledSeated).
				Int("violations", report.Violations).
				Msg("reconciliation sweep corrected state")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	logger.Infof("[Reconciler] Scheduler started, spec: %s", spec)
	return nil
}

func (r *Reconciler) Stop() {
	if r.cron != nil {
		r.cron.Stop()
	}
}

type SweepReport struct {
	CancelledOrphans    int // pending requests whose party is gone or terminal
	CancelledDuplicates int // extra pending requests beyond one per rider
	CancelledSeated     int // pending requests of riders already in another party
	Violations          int // party invariant violations, logged for operators
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	pending, err := r.store.PendingRequests(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []string
	var duplicates []string
	var seated []string
	seenRequester := make(map[string]bool)

	for _, req := range pending {
		party, err := r.store.GetParty(ctx, req.PartyID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			orphans = append(orphans, req.ID)
			continue
		case err != nil:
			return nil, err
		case party.Status != models.PartyOpen:
			// the status machine never returns to open, so these requests
			// can never be accepted
			orphans = append(orphans, req.ID)
			continue
		}

		// A rider already seated in some other party can never be accepted
		// here without ending up in two parties at once.
		memberships, err := r.store.PartiesWithMember(ctx, req.RequesterID)
		if err != nil {
			return nil, err
		}
		elsewhere := false
		for i := range memberships {
			if memberships[i].ID != req.PartyID {
				elsewhere = true
				break
			}
		}
		if elsewhere {
			seated = append(seated, req.ID)
			continue
		}

		// One pending request per rider; the oldest one stays.
		if seenRequester[req.RequesterID] {
			duplicates = append(duplicates, req.ID)
			continue
		}
		seenRequester[req.RequesterID] = true
	}

	if len(orphans) > 0 {
		n, err := r.store.TerminalizeRequests(ctx, orphans, models.RequestCancelled)
		if err != nil {
			return nil, err
		}
		report.CancelledOrphans = n
	}
	if len(duplicates) > 0 {
		n, err := r.store.TerminalizeRequests(ctx, duplicates, models.RequestCancelled)
		if err != nil {
			return nil, err
		}
		report.CancelledDuplicates = n
		LogWarning("reconcile", "duplicate_pending",
			"cancelled duplicate pending requests", "", "", duplicates)
	}
	if len(seated) > 0 {
		n, err := r.store.TerminalizeRequests(ctx, seated, models.RequestCancelled)
		if err != nil {
			return nil, err
		}
		report.CancelledSeated = n
		LogWarning("reconcile", "requester_seated",
			"cancelled pending requests of riders already in another party", "", "", seated)
	}

	// Party invariants are checked but not auto-corrected; an overfull party
	// or an absent leader needs a human decision about who stays.
	parties, err := r.store.ListParties(ctx)
	if err != nil {
		return nil, err
	}
	for i := range parties {
		p := &parties[i]
		if len(p.Members) > p.MaxMembers {
			report.Violations++
			LogError("reconcile", "over_capacity",
				"party exceeds max members", p.ID, "", map[string]int{
					"members": len(p.Members), "max": p.MaxMembers,
				})
		}
		if !p.HasMember(p.LeaderID) {
			report.Violations++
			LogError("reconcile", "leader_missing",
				"party leader is not a member", p.ID, p.LeaderID, nil)
		}
	}

	return report, nil
}
