package handlers

import (
	"errors"

	"github.com/campuspool/backend/internal/middleware"
	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/services"
	"github.com/campuspool/backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PartyHandler struct {
	partyService *services.PartyService
}

func NewPartyHandler(partyService *services.PartyService) *PartyHandler {
	return &PartyHandler{partyService: partyService}
}

// Create opens a new party led by the caller
// POST /api/parties
func (h *PartyHandler) Create(c *gin.Context) {
	var req services.CreatePartyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	party, err := h.partyService.Create(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Created(c, party)
}

// List returns the live party board (open and closed, arrived excluded)
// GET /api/parties
func (h *PartyHandler) List(c *gin.Context) {
	parties, err := h.partyService.ListOpen(c.Request.Context())
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, parties)
}

// Mine returns the caller's current party, derived by membership query
// GET /api/parties/mine
func (h *PartyHandler) Mine(c *gin.Context) {
	party, err := h.partyService.PartyOf(c.Request.Context(), middleware.GetUserID(c))
	if errors.Is(err, services.ErrPartyNotFound) {
		response.Success(c, nil)
		return
	}
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, party)
}

// GetByID returns a party by id
// GET /api/parties/:id
func (h *PartyHandler) GetByID(c *gin.Context) {
	party, err := h.partyService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, party)
}

// Leave removes the caller from the party. A leader leaving alone dissolves
// the party.
// POST /api/parties/:id/leave
func (h *PartyHandler) Leave(c *gin.Context) {
	party, err := h.partyService.RemoveMember(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if party == nil {
		response.Success(c, gin.H{"dissolved": true})
		return
	}
	response.Success(c, party)
}

type setStatusRequest struct {
	Status models.PartyStatus `json:"status" binding:"required"`
}

// SetStatus advances the party lifecycle (open -> closed -> arrived)
// PUT /api/parties/:id/status
func (h *PartyHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	party, err := h.partyService.SetStatus(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, party)
}

// Delete dissolves the party; leader-only, cascades cleanup
// DELETE /api/parties/:id
func (h *PartyHandler) Delete(c *gin.Context) {
	if err := h.partyService.Delete(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"message": "party deleted"})
}
