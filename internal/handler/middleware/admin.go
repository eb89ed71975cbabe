package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"celulas/membership/internal/model"
	"celulas/membership/pkg/response"
)

// AdminAuth admits users listed in adminUserIDs or whose token carries a role
// that may administer invitations (admin, pastor).
// Must be used after JWTAuth middleware.
func AdminAuth(adminUserIDs []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(adminUserIDs))
	for _, id := range adminUserIDs {
		allowed[id] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}

		if _, err := uuid.Parse(claims.Subject); err != nil {
			response.Unauthorized(c, "invalid user id")
			c.Abort()
			return
		}

		_, listed := allowed[claims.Subject]
		if !listed && !model.Role(claims.Role).CanAdminister() {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
