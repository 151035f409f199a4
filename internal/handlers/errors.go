package handlers

import (
	"errors"

	"github.com/campuspool/backend/internal/enforce"
	"github.com/campuspool/backend/internal/services"
	"github.com/campuspool/backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// respondServiceError maps the service error taxonomy onto HTTP outcomes.
// Conflict-class errors are ordinary, displayable results of losing a race;
// the client re-fetches and offers the user a fresh choice.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		response.Error(c, response.NewBadRequest(err.Error()))
	case errors.Is(err, services.ErrPartyNotFound),
		errors.Is(err, services.ErrRequestNotFound):
		response.Error(c, response.NewNotFound(err.Error()))
	case errors.Is(err, services.ErrNotLeader),
		errors.Is(err, services.ErrNotRequester),
		errors.Is(err, services.ErrLeaderCannotLeave):
		response.Error(c, response.NewForbidden(err.Error()))
	case errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrPartyNotOpen),
		errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrAlreadyHasPendingRequest),
		errors.Is(err, services.ErrAlreadyResolved),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, enforce.ErrContended):
		response.Error(c, response.NewConflict(err.Error()))
	default:
		response.Error(c, response.NewServerError(err.Error()))
	}
}
