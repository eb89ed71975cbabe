package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"celulas/membership/internal/handler/middleware"
	"celulas/membership/internal/service"
	"celulas/membership/pkg/response"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"max=128"`
	InviteCode  string `json:"invite_code" binding:"max=64"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		InviteCode:  req.InviteCode,
	})
	if err != nil {
		// The account exists and is signed in; only the code was lost.
		if result != nil && errors.Is(err, service.ErrInvitationUnavailable) {
			response.ErrorWithData(c, http.StatusBadRequest, 400, service.ErrInvitationUnavailable.Error(), result)
			return
		}
		writeServiceError(c, err, "registration failed")
		return
	}

	response.Success(c, result)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	tokenSet, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err, "login failed")
		return
	}

	response.Success(c, tokenSet)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	tokenSet, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(c, err, "token refresh failed")
		return
	}

	response.Success(c, tokenSet)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeServiceError(c, err, "logout failed")
		return
	}

	response.Success(c, nil)
}

// Me returns the profile behind the current access token.
func (h *AuthHandler) Me(c *gin.Context) {
	session, err := h.authService.GetSession(c.Request.Context(), c.GetString(middleware.ContextKeyAccessToken))
	if err != nil {
		response.InternalError(c, "failed to load session")
		return
	}
	if session == nil {
		response.Unauthorized(c, "no active session")
		return
	}

	response.Success(c, session.User)
}
