package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"celulas/membership/internal/handler/middleware"
	"celulas/membership/internal/service"
	"celulas/membership/pkg/response"
)

var ErrNoClaims = errors.New("claims not found in context")

func getUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		return uuid.Nil, ErrNoClaims
	}
	return uuid.Parse(claims.Subject)
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps service sentinels onto the API envelope. Every
// invitation refusal renders the same message.
func writeServiceError(c *gin.Context, err error, internalErrMsg string) {
	switch {
	case errors.Is(err, service.ErrInvitationUnavailable):
		response.BadRequest(c, service.ErrInvitationUnavailable.Error())
	case errors.Is(err, service.ErrInviteCodeRequired),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrInvalidMaxUses),
		errors.Is(err, service.ErrInvalidTTL),
		errors.Is(err, service.ErrGroupNotAllowed),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrInvalidEmail):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrRefreshTokenInvalid):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrUserDisabled):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrInvitationCodeNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrIdentityAlreadyExists),
		errors.Is(err, service.ErrGroupExists),
		errors.Is(err, service.ErrRoleDowngrade):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrMailerNotConfigured):
		response.ServiceUnavailable(c, err.Error())
	default:
		_ = c.Error(err)
		response.InternalError(c, internalErrMsg)
	}
}
