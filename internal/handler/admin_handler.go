package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"celulas/membership/internal/model"
	"celulas/membership/internal/service"
	"celulas/membership/pkg/response"
)

type AdminHandler struct {
	invitations service.InvitationService
	groups      service.GroupService
}

func NewAdminHandler(invitations service.InvitationService, groups service.GroupService) *AdminHandler {
	return &AdminHandler{invitations: invitations, groups: groups}
}

type CreateInvitationCodeRequest struct {
	Role        string     `json:"role" binding:"required,invitation_role"`
	Description string     `json:"description" binding:"max=255"`
	MaxUses     int        `json:"max_uses" binding:"required,min=1"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
}

type ListInvitationCodesQuery struct {
	Redeemable bool `form:"redeemable"`
}

type SendInvitationLinkRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,max=128"`
}

// invitationView adds the shareable link to a stored code.
type invitationView struct {
	*model.InvitationCode
	RemainingUses int    `json:"remaining_uses"`
	Link          string `json:"link"`
}

func (h *AdminHandler) view(inv *model.InvitationCode) invitationView {
	return invitationView{
		InvitationCode: inv,
		RemainingUses:  inv.RemainingUses(),
		Link:           h.invitations.Link(inv.Code),
	}
}

// CreateInvitationCode issues a new code and returns it with its link.
func (h *AdminHandler) CreateInvitationCode(c *gin.Context) {
	issuerID, err := getUserIDFromContext(c)
	if err != nil {
		response.Unauthorized(c, "invalid user context")
		return
	}

	var req CreateInvitationCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	var ttl time.Duration
	if req.ExpiresAt != nil {
		ttl = time.Until(*req.ExpiresAt)
		if ttl <= 0 {
			response.BadRequest(c, "expires_at must be in the future")
			return
		}
	}

	inv, err := h.invitations.Generate(c.Request.Context(), service.GenerateInput{
		Role:        model.Role(req.Role),
		Description: req.Description,
		MaxUses:     req.MaxUses,
		TTL:         ttl,
		IssuerID:    &issuerID,
		GroupID:     req.GroupID,
	})
	if err != nil {
		writeServiceError(c, err, "failed to create invitation code")
		return
	}

	response.Success(c, h.view(inv))
}

func (h *AdminHandler) ListInvitationCodes(c *gin.Context) {
	var q ListInvitationCodesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "invalid query: "+err.Error())
		return
	}

	codes, err := h.invitations.List(c.Request.Context(), q.Redeemable)
	if err != nil {
		response.InternalError(c, "failed to list invitation codes")
		return
	}

	views := make([]invitationView, 0, len(codes))
	for i := range codes {
		views = append(views, h.view(&codes[i]))
	}
	response.Success(c, views)
}

func (h *AdminHandler) GetInvitationCode(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	inv, err := h.invitations.Get(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, "failed to get invitation code")
		return
	}

	response.Success(c, h.view(inv))
}

func (h *AdminHandler) DeactivateInvitationCode(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.invitations.Deactivate(c.Request.Context(), id); err != nil {
		writeServiceError(c, err, "failed to deactivate invitation code")
		return
	}

	response.Success(c, nil)
}

func (h *AdminHandler) ListRedemptions(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	redemptions, err := h.invitations.ListRedemptions(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err, "failed to list redemptions")
		return
	}

	response.Success(c, redemptions)
}

func (h *AdminHandler) SendInvitationLink(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req SendInvitationLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.invitations.SendLink(c.Request.Context(), id, req.Email); err != nil {
		writeServiceError(c, err, "failed to send invitation link")
		return
	}

	response.Success(c, nil)
}

func (h *AdminHandler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	group, err := h.groups.Create(c.Request.Context(), req.Name)
	if err != nil {
		writeServiceError(c, err, "failed to create group")
		return
	}

	response.Success(c, group)
}

func (h *AdminHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list groups")
		return
	}

	response.Success(c, groups)
}
