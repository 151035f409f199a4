package handlers

import (
	"github.com/campuspool/backend/internal/middleware"
	"github.com/campuspool/backend/internal/services"
	"github.com/campuspool/backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requestService *services.RequestService
}

func NewRequestHandler(requestService *services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

type createRequestBody struct {
	PartyID string `json:"party_id" binding:"required"`
}

// Create files a join request for the caller
// POST /api/requests
func (h *RequestHandler) Create(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	req, err := h.requestService.Create(c.Request.Context(), body.PartyID, middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Created(c, req)
}

// Pending returns the caller's outstanding request, or null
// GET /api/requests/pending
func (h *RequestHandler) Pending(c *gin.Context) {
	req, err := h.requestService.PendingForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, req)
}

// Accept resolves a request in the requester's favor; leader-only
// POST /api/requests/:id/accept
func (h *RequestHandler) Accept(c *gin.Context) {
	req, err := h.requestService.Accept(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, req)
}

// Decline resolves a request against the requester; leader-only
// POST /api/requests/:id/decline
func (h *RequestHandler) Decline(c *gin.Context) {
	req, err := h.requestService.Decline(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, req)
}

// Cancel withdraws the caller's own request; idempotent
// POST /api/requests/:id/cancel
func (h *RequestHandler) Cancel(c *gin.Context) {
	req, err := h.requestService.Cancel(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, req)
}

// Inbox returns pending requests for a party; leader-only
// GET /api/parties/:id/requests
func (h *RequestHandler) Inbox(c *gin.Context) {
	requests, err := h.requestService.PendingForParty(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, requests)
}
