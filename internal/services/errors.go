package services

import "errors"

// Every public operation returns one of these as its failure outcome. They
// are expected, frequent results under concurrency ("someone beat you to
// it"), and the HTTP layer renders each as a normal displayable response.
var (
	// Validation: rejected before any write, the caller corrects input.
	ErrValidation = errors.New("validation failed")

	// Not found: the referenced document no longer exists. Stale client
	// state, not a fatal condition.
	ErrPartyNotFound   = errors.New("party not found")
	ErrRequestNotFound = errors.New("join request not found")

	// Invariant conflicts.
	ErrCapacityExceeded         = errors.New("party is already full")
	ErrPartyNotOpen             = errors.New("party is not open for joining")
	ErrAlreadyMember            = errors.New("user already belongs to a party")
	ErrAlreadyHasPendingRequest = errors.New("user already has a pending join request")
	ErrInvalidTransition        = errors.New("party status cannot move backwards")

	// Benign race loss: another actor resolved the request first.
	ErrAlreadyResolved = errors.New("join request was already resolved")

	// Authorization of the operation's actor, passed in explicitly.
	ErrNotLeader         = errors.New("only the party leader may perform this action")
	ErrNotRequester      = errors.New("only the requester may cancel this request")
	ErrLeaderCannotLeave = errors.New("leader cannot leave while other members remain")
)
