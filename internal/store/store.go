// Package store is the persistence boundary of the coordination engine.
//
// The contract deliberately mirrors what a managed document store offers:
// atomicity covers one document (one row) at a time, and nothing here ever
// spans a Party and a JoinRequest in a single write. Conditional puts carry
// the revision the caller read; a stale revision fails with
// ErrRevisionConflict and the caller re-reads.
package store

import (
	"context"
	"errors"

	"github.com/campuspool/backend/internal/models"
)

var (
	ErrNotFound         = errors.New("store: not found")
	ErrAlreadyExists    = errors.New("store: already exists")
	ErrRevisionConflict = errors.New("store: revision conflict")
)

// BulkChunkSize caps how many documents a single bulk statement may touch.
const BulkChunkSize = 500

type Store interface {
	PartyStore
	RequestStore
}

type PartyStore interface {
	// GetParty returns a fresh copy of the party.
	GetParty(ctx context.Context, id string) (*models.Party, error)
	CreateParty(ctx context.Context, p *models.Party) error
	// PutParty writes p back conditionally on the revision it was read at.
	// On success p.Revision is advanced to the stored value.
	PutParty(ctx context.Context, p *models.Party) error
	DeleteParty(ctx context.Context, id string) error
	// ListParties returns parties in the given statuses, soonest departure
	// first. With no statuses, all parties are returned.
	ListParties(ctx context.Context, statuses ...models.PartyStatus) ([]models.Party, error)
	// PartiesWithMember returns non-arrived parties that uid belongs to.
	PartiesWithMember(ctx context.Context, uid string) ([]models.Party, error)
}

type RequestStore interface {
	GetRequest(ctx context.Context, id string) (*models.JoinRequest, error)
	CreateRequest(ctx context.Context, r *models.JoinRequest) error
	// PutRequest writes r back conditionally on its read revision.
	PutRequest(ctx context.Context, r *models.JoinRequest) error
	// PendingRequestForUser returns the user's single outstanding request,
	// or ErrNotFound.
	PendingRequestForUser(ctx context.Context, uid string) (*models.JoinRequest, error)
	// PendingRequestsForParty returns the leader's inbox, oldest first.
	PendingRequestsForParty(ctx context.Context, partyID string) ([]models.JoinRequest, error)
	// RequestsForParty returns every request targeting the party.
	RequestsForParty(ctx context.Context, partyID string) ([]models.JoinRequest, error)
	// PendingRequests returns all pending requests, oldest first. Used by
	// the reconciliation sweep.
	PendingRequests(ctx context.Context) ([]models.JoinRequest, error)
	// TerminalizeRequests moves each still-pending request in ids to status,
	// chunked to BulkChunkSize per statement. Requests that already reached
	// a terminal state are left untouched. Returns how many transitioned.
	TerminalizeRequests(ctx context.Context, ids []string, status models.RequestStatus) (int, error)
}

// Chunk splits ids into slices of at most BulkChunkSize.
func Chunk(ids []string) [][]string {
	var out [][]string
	for len(ids) > BulkChunkSize {
		out = append(out, ids[:BulkChunkSize])
		ids = ids[BulkChunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
