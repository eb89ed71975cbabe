package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"celulas/membership/internal/model"
	"celulas/membership/internal/service"
	"celulas/membership/pkg/response"
)

type InvitationHandler struct {
	invitations service.InvitationService
	authService service.AuthService
}

func NewInvitationHandler(invitations service.InvitationService, authService service.AuthService) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, authService: authService}
}

// invitationPreview is what an unauthenticated visitor learns about a code.
type invitationPreview struct {
	Code          string     `json:"code"`
	Role          model.Role `json:"role"`
	Description   string     `json:"description,omitempty"`
	GroupID       *uuid.UUID `json:"group_id,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
	RemainingUses int        `json:"remaining_uses"`
}

type RedeemInvitationRequest struct {
	Code string `json:"code" binding:"required,max=64"`
}

// Validate answers whether a code could be redeemed right now. Advisory only.
func (h *InvitationHandler) Validate(c *gin.Context) {
	result, err := h.invitations.Validate(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeServiceError(c, err, "failed to validate invitation code")
		return
	}
	if !result.Valid() {
		writeServiceError(c, result.Reason.Err(), "failed to validate invitation code")
		return
	}

	inv := result.Code
	response.Success(c, invitationPreview{
		Code:          inv.Code,
		Role:          inv.Role,
		Description:   inv.Description,
		GroupID:       inv.GroupID,
		ExpiresAt:     inv.ExpiresAt,
		RemainingUses: inv.RemainingUses(),
	})
}

// Redeem lets a signed-in account redeem a code it did not use at signup.
func (h *InvitationHandler) Redeem(c *gin.Context) {
	userID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	var req RedeemInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	grant, err := h.authService.RedeemForUser(c.Request.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(c, err, "failed to redeem invitation code")
		return
	}

	response.Success(c, grant)
}
